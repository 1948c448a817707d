package fetch

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trovelabs/trove/config"
	"github.com/trovelabs/trove/hub"
	"github.com/trovelabs/trove/layout"
	"github.com/trovelabs/trove/manifest"
)

const localExt = ".glb"

var (
	ErrInvalidModelID         = errors.New("invalid model id")
	ErrUnresolved             = errors.New("could not determine a download path")
	ErrModeUnsupported        = errors.New("unsupported download mode")
	ErrFixedResolutionMissing = errors.New("fixed mode requires a resolution")
)

// Policy selects which stored variant of a model to fetch. Zero fields fall
// back to the configured defaults, so Policy{} means "do what the config
// says."
type Policy struct {
	Mode       string
	Resolution int
}

// Stats reports the outcome of a bounded batch.
type Stats struct {
	Downloaded int
	Scanned    int
}

// Downloader resolves model IDs to remote paths and fetches them. The layout
// set and metadata index are built once at construction and shared read-only
// across every call; downloads themselves run strictly one at a time.
type Downloader struct {
	cfg       *config.Config
	hub       *hub.Client
	layouts   *layout.Set
	index     *manifest.Index
	outputDir string
	logger    *slog.Logger
}

// New builds a Downloader from a loaded configuration. Callers construct one
// per configuration and reuse it, which keeps the metadata index loaded
// across calls.
func New(cfg *config.Config, hc *hub.Client, logger *slog.Logger) (*Downloader, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.WithGroup("fetch")

	layouts, err := layout.NewSet(cfg.Layouts, cfg.ResolutionLayouts, cfg.FallbackBucketLayout)
	if err != nil {
		return nil, err
	}

	var idx *manifest.Index
	if cfg.MetadataPath != "" {
		idx, err = manifest.Load(cfg.MetadataPath)
		if err != nil {
			return nil, err
		}
		if idx == nil {
			logger.Warn("Metadata manifest not found, metadata-assisted resolution will be skipped",
				"path", cfg.MetadataPath)
		} else {
			logger.Info("Loaded metadata index", "path", cfg.MetadataPath, "entries", idx.Len())
		}
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, errors.Wrap(err, "could not create output directory")
	}

	return &Downloader{
		cfg:       cfg,
		hub:       hc,
		layouts:   layouts,
		index:     idx,
		outputDir: cfg.OutputDir,
		logger:    logger,
	}, nil
}

// normalizePolicy fills a per-call policy from config defaults and validates
// it. A resolution only travels with fixed mode; highest-available always
// scans via the fallback layout.
func (d *Downloader) normalizePolicy(pol Policy) (Policy, error) {
	if pol.Mode == "" {
		pol.Mode = d.cfg.Mode
	}
	pol.Mode = strings.ToLower(pol.Mode)
	if pol.Mode != config.ModeHighestAvailable && pol.Mode != config.ModeFixed {
		return Policy{}, errors.Wrapf(ErrModeUnsupported, "%q", pol.Mode)
	}

	if pol.Mode == config.ModeFixed {
		if pol.Resolution == 0 {
			pol.Resolution = d.cfg.FixedResolution
		}
		if pol.Resolution == 0 {
			return Policy{}, ErrFixedResolutionMissing
		}
	} else {
		pol.Resolution = 0
	}

	return pol, nil
}

// DownloadOne fetches a single model and returns the local path. Metadata
// resolution runs first; only when it yields nothing does the bucket scan
// take over.
func (d *Downloader) DownloadOne(ctx context.Context, rawID string, pol Policy) (string, error) {
	modelID, err := NormalizeModelID(rawID)
	if err != nil {
		return "", err
	}
	pol, err = d.normalizePolicy(pol)
	if err != nil {
		return "", err
	}

	destName := modelID + localExt

	if owner, repoPath, ok := d.resolveFromIndex(modelID, pol); ok {
		d.logger.Info("Downloading via metadata path", "model_id", modelID, "path", repoPath, "repo", owner.RepoID)
		return d.transfer(ctx, owner, repoPath, destName)
	}

	return d.scanBuckets(ctx, modelID, pol, destName)
}

// DownloadMany processes a batch in input order. Per-ID failures are logged
// with the offending raw input and skipped, so one bad entry never aborts
// the rest; the batch always completes.
func (d *Downloader) DownloadMany(ctx context.Context, rawIDs []string, pol Policy) {
	for _, raw := range rawIDs {
		if ctx.Err() != nil {
			d.logger.Warn("Batch interrupted", "error", ctx.Err())
			return
		}
		local, err := d.DownloadOne(ctx, raw, pol)
		if err != nil {
			d.logger.Warn("Download failed", "raw_id", raw, "error", err)
			continue
		}
		d.logger.Info("Downloaded", "raw_id", raw, "path", local)
	}
}

// DownloadUpToN reads raw entries from src until n new models have been
// downloaded or the source runs out. Entries whose expected local file
// already exists are skipped without touching the network; unparseable or
// failing entries are logged and skipped. Skips and failures still count as
// scanned, so the caller can tell how deep into the source the run went.
func (d *Downloader) DownloadUpToN(ctx context.Context, n int, src io.Reader, pol Policy) (Stats, error) {
	var stats Stats
	scanner := bufio.NewScanner(src)
	for stats.Downloaded < n && scanner.Scan() {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		stats.Scanned++

		modelID, err := NormalizeModelID(raw)
		if err != nil {
			d.logger.Warn("Skipping entry with no model ID", "raw_id", raw, "error", err)
			continue
		}

		local := d.expectedPath(modelID)
		if _, err := os.Stat(local); err == nil {
			d.logger.Debug("Already downloaded, skipping", "model_id", modelID, "path", local)
			continue
		}

		local, err = d.DownloadOne(ctx, raw, pol)
		if err != nil {
			d.logger.Warn("Download failed", "raw_id", raw, "error", err)
			continue
		}
		stats.Downloaded++
		d.logger.Info("Downloaded", "model_id", modelID, "path", local, "have", stats.Downloaded, "want", n)
	}
	if err := scanner.Err(); err != nil {
		return stats, errors.Wrap(err, "reading id source")
	}
	return stats, nil
}

// ExpectedLocalPath reports where a model lands in the output directory. It
// never touches the network; the existence of this path is the sole signal
// that a model was already downloaded.
func (d *Downloader) ExpectedLocalPath(rawID string) (string, error) {
	modelID, err := NormalizeModelID(rawID)
	if err != nil {
		return "", err
	}
	return d.expectedPath(modelID), nil
}

func (d *Downloader) expectedPath(modelID string) string {
	return filepath.Join(d.outputDir, modelID+localExt)
}

func (d *Downloader) transfer(ctx context.Context, owner layout.Layout, repoPath, destName string) (string, error) {
	ref := hub.FileRef{RepoID: owner.RepoID, RepoType: owner.RepoType, Path: repoPath}
	return hub.WithRetries(ctx, d.logger, func() (string, error) {
		return d.hub.Fetch(ctx, ref, d.outputDir, destName)
	})
}
