package hub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL  = "https://huggingface.co"
	DefaultRevision = "main"

	RepoTypeDataset = "dataset"
	RepoTypeModel   = "model"

	defaultTimeout    = 5 * time.Minute
	defaultRetryAfter = 2 * time.Second
	maxErrorBodyBytes = 8 * 1024
)

var ErrNotFound = errors.New("remote object not found")

// ErrRateLimited is returned when the hub answers 429. Callers normally let
// WithRetries sleep it out rather than handling it directly.
type ErrRateLimited struct {
	Message    string
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limited: %s (retry after %v)", e.Message, e.RetryAfter)
}

// FileRef identifies one file inside a remote repository.
type FileRef struct {
	RepoID   string
	RepoType string
	Path     string
}

type Config struct {
	BaseURL   string        // Defaults to DefaultBaseURL
	Revision  string        // Defaults to DefaultRevision
	Token     string        // Bearer token, empty for anonymous access
	Timeout   time.Duration // Per-request timeout, zero for the default
	RateLimit float64       // Requests per second, zero disables throttling
	RateBurst int
	Logger    *slog.Logger
}

// Client fetches repository files over the hub's raw-content endpoint.
type Client struct {
	baseURL    *url.URL
	revision   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a hub client.
func New(cfg *Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	clientLogger := logger.WithGroup("hub_client")

	baseURLStr := cfg.BaseURL
	if baseURLStr == "" {
		baseURLStr = DefaultBaseURL
	}
	baseURL, err := url.Parse(baseURLStr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse base URL '%s'", baseURLStr)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base URL '%s' must include a scheme and host", baseURLStr)
	}

	revision := cfg.Revision
	if revision == "" {
		revision = DefaultRevision
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	clientLogger.Debug("Hub client initialized", "base_url", baseURL.String(), "revision", revision, "authenticated", cfg.Token != "")

	return &Client{
		baseURL:    baseURL,
		revision:   revision,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     clientLogger,
	}, nil
}

// resolveURL builds the raw-content URL for a file reference. Dataset
// repositories resolve under /datasets/<repo>; model repositories resolve at
// the root.
func (c *Client) resolveURL(ref FileRef) string {
	repoPath := ref.RepoID
	if ref.RepoType == RepoTypeDataset || ref.RepoType == "" {
		repoPath = "datasets/" + ref.RepoID
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s",
		strings.TrimRight(c.baseURL.String(), "/"),
		escapePath(repoPath),
		url.PathEscape(c.revision),
		escapePath(ref.Path))
}

// escapePath escapes each path segment while keeping the separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// Fetch downloads one file into destDir and returns the local path. An empty
// destName means the remote basename. The body streams to a temp file that
// is renamed into place, so a partial download never lands at the final
// path. A 404 maps to ErrNotFound, a 429 to *ErrRateLimited; anything else
// non-2xx fails with the response body in the error.
func (c *Client) Fetch(ctx context.Context, ref FileRef, destDir, destName string) (string, error) {
	if ref.RepoID == "" {
		return "", fmt.Errorf("repo id cannot be empty")
	}
	if ref.Path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if destName == "" {
		destName = path.Base(ref.Path)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errors.Wrap(err, "rate limiter wait")
		}
	}

	fileURL := c.resolveURL(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", errors.Wrapf(err, "could not create request for %s", fileURL)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	c.logger.Debug("Fetching remote object", "url", fileURL, "dest", destName)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "request to %s failed", fileURL)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", errors.Wrapf(ErrNotFound, "%s: %s", ref.RepoID, ref.Path)
	case resp.StatusCode == http.StatusTooManyRequests:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", &ErrRateLimited{
			Message:    strings.TrimSpace(string(body)),
			RetryAfter: retryAfter(resp),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", fmt.Errorf("bad status code from hub for %s: %d, body: %s",
			ref.Path, resp.StatusCode, string(body))
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", errors.Wrap(err, "could not create destination directory")
	}

	tempFile, err := os.CreateTemp(destDir, "download-*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "could not create temp file for download")
	}
	defer os.Remove(tempFile.Name())

	written, err := io.Copy(tempFile, resp.Body)
	if err != nil {
		tempFile.Close()
		return "", errors.Wrapf(err, "could not write %s to temp file", destName)
	}
	if err := tempFile.Close(); err != nil {
		return "", errors.Wrap(err, "could not close temp file")
	}

	finalPath := filepath.Join(destDir, destName)
	if err := os.Rename(tempFile.Name(), finalPath); err != nil {
		return "", errors.Wrap(err, "could not move download to final destination")
	}

	c.logger.Debug("Fetched remote object", "path", finalPath, "bytes", written)
	return finalPath, nil
}

// retryAfter honors the Retry-After header when it carries whole seconds.
func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}
