package fetch

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trovelabs/trove/config"
	"github.com/trovelabs/trove/hub"
	"github.com/trovelabs/trove/layout"
)

type pathCandidate struct {
	resolution int
	repoPath   string
	layout     layout.Layout
}

// resolveFromIndex is the metadata-assisted half of resolution. It reports
// ok=false when the index is absent, the model is unknown, none of its
// listed paths maps to a configured layout, or a fixed target has no exact
// match; the caller then falls back to bucket scanning. In fixed mode the
// first exact resolution match wins; in highest-available mode the maximum
// (resolution, path) pair wins, path string breaking ties deterministically.
func (d *Downloader) resolveFromIndex(modelID string, pol Policy) (layout.Layout, string, bool) {
	rec, ok := d.index.Lookup(modelID)
	if !ok {
		return layout.Layout{}, "", false
	}

	var candidates []pathCandidate
	for _, repoPath := range rec.GLBPaths {
		owner, ok := d.layouts.ForBasePath(repoPath)
		if !ok {
			d.logger.Debug("Metadata path matches no layout, ignoring", "model_id", modelID, "path", repoPath)
			continue
		}
		candidates = append(candidates, pathCandidate{
			resolution: ParseResolution(repoPath),
			repoPath:   repoPath,
			layout:     owner,
		})
	}
	if len(candidates) == 0 {
		return layout.Layout{}, "", false
	}

	if pol.Mode == config.ModeFixed {
		for _, c := range candidates {
			if c.resolution == pol.Resolution {
				return c.layout, c.repoPath, true
			}
		}
		return layout.Layout{}, "", false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.resolution > best.resolution ||
			(c.resolution == best.resolution && c.repoPath > best.repoPath) {
			best = c
		}
	}
	// A best resolution of 0 still wins: a known path beats a blind scan.
	return best.layout, best.repoPath, true
}

// scanBuckets is the fallback: probe every bucket of the chosen layout in
// ascending order until the model turns up. Bucket membership is not
// derivable from the ID, so the probe is linear. Each hit is already a
// completed transfer; a not-found moves to the next bucket, anything else
// aborts the scan.
func (d *Downloader) scanBuckets(ctx context.Context, modelID string, pol Policy, destName string) (string, error) {
	var scanLayout layout.Layout
	var ok bool
	if pol.Resolution != 0 {
		scanLayout, ok = d.layouts.ForResolution(pol.Resolution)
	} else {
		scanLayout, ok = d.layouts.Fallback()
	}
	if !ok || !scanLayout.SupportsBucketScan() {
		return "", errors.Wrapf(ErrUnresolved,
			"model %s has no metadata path and no bucket-enabled layout applies", modelID)
	}

	d.logger.Info("Scanning buckets", "model_id", modelID, "layout", scanLayout.Name, "buckets", scanLayout.BucketCount)

	base := scanLayout.NormalizedBaseDir()
	var lastErr error
	for i := 0; i < scanLayout.BucketCount; i++ {
		repoPath := base + "/" + scanLayout.BucketName(i) + "/" + modelID + scanLayout.FilenameSuffix
		local, err := d.transfer(ctx, scanLayout, repoPath, destName)
		if err == nil {
			return local, nil
		}
		if errors.Is(err, hub.ErrNotFound) {
			lastErr = err
			continue
		}
		return "", err
	}

	return "", fmt.Errorf("%w: model %s not found in any of %d buckets of layout %s: %w",
		ErrUnresolved, modelID, scanLayout.BucketCount, scanLayout.Name, lastErr)
}
