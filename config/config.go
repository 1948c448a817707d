package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ModeHighestAvailable = "highest_available"
	ModeFixed            = "fixed"
)

const (
	DefaultOutputDir = "downloaded_models"
)

// Layout describes one remote storage layout: which repository a family of
// assets lives in and how its paths are shaped. Bucket fields are optional;
// a layout with all three set can be probed bucket by bucket.
type Layout struct {
	RepoID         string `yaml:"repo_id"`
	RepoType       string `yaml:"repo_type,omitempty"`
	BaseDir        string `yaml:"base_dir"`
	FilenameSuffix string `yaml:"filename_suffix,omitempty"`
	BucketFormat   string `yaml:"bucket_format,omitempty"`
	BucketCount    int    `yaml:"bucket_count,omitempty"`
}

type RateLimiterConfig struct {
	Limit float64 `yaml:"limit"` // Requests per second, zero disables throttling
	Burst int     `yaml:"burst"` // Burst size
}

type Hub struct {
	BaseURL               string            `yaml:"base_url,omitempty"`
	Revision              string            `yaml:"revision,omitempty"`
	TokenEnv              string            `yaml:"token_env,omitempty"`
	RequestTimeoutSeconds int               `yaml:"request_timeout_seconds,omitempty"`
	RateLimiter           RateLimiterConfig `yaml:"rate_limiter"`
}

// ManifestRemote locates the metadata manifest on the hub for bootstrapping.
type ManifestRemote struct {
	RepoID   string `yaml:"repo_id,omitempty"`
	RepoType string `yaml:"repo_type,omitempty"`
	Path     string `yaml:"path,omitempty"`
}

type Logging struct {
	Level string `yaml:"level,omitempty"`
}

type Config struct {
	Mode                 string            `yaml:"mode"`
	FixedResolution      int               `yaml:"fixed_resolution,omitempty"`
	OutputDir            string            `yaml:"output_dir"`
	MetadataPath         string            `yaml:"metadata_path,omitempty"`
	TextdataPath         string            `yaml:"textdata_path,omitempty"`
	Logging              Logging           `yaml:"logging"`
	Layouts              map[string]Layout `yaml:"layouts"`
	ResolutionLayouts    map[int]string    `yaml:"resolution_layouts,omitempty"`
	FallbackBucketLayout string            `yaml:"fallback_bucket_layout,omitempty"`
	Hub                  Hub               `yaml:"hub"`
	ManifestRemote       ManifestRemote    `yaml:"manifest_remote"`
}

var (
	ErrConfigFileUnreadable     = errors.New("config file is unreadable")
	ErrConfigFileUnmarshallable = errors.New("config file is unmarshallable")
	ErrModeUnsupported          = errors.New("mode must be 'highest_available' or 'fixed'")
	ErrFixedResolutionMissing   = errors.New("fixed_resolution is required when mode is 'fixed'")
)

// LoadConfig reads and validates the configuration file. Relative paths in
// the file resolve against the file's own directory, so a config can travel
// with its metadata and id list.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, ErrConfigFileUnreadable
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, ErrConfigFileUnmarshallable
	}

	if cfg.Mode == "" {
		cfg.Mode = ModeHighestAvailable
	}
	cfg.Mode = strings.ToLower(cfg.Mode)
	if cfg.Mode != ModeHighestAvailable && cfg.Mode != ModeFixed {
		return nil, ErrModeUnsupported
	}

	if cfg.Mode == ModeFixed && cfg.FixedResolution == 0 {
		return nil, ErrFixedResolutionMissing
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}

	baseDir, err := filepath.Abs(filepath.Dir(configFile))
	if err != nil {
		return nil, ErrConfigFileUnreadable
	}
	cfg.OutputDir = resolveAgainst(baseDir, cfg.OutputDir)
	if cfg.MetadataPath != "" {
		cfg.MetadataPath = resolveAgainst(baseDir, cfg.MetadataPath)
	}
	if cfg.TextdataPath != "" {
		cfg.TextdataPath = resolveAgainst(baseDir, cfg.TextdataPath)
	}

	return &cfg, nil
}

func resolveAgainst(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// GenerateConfig returns a starter configuration with placeholder values.
// Writing it to disk is left to the caller.
func GenerateConfig() (*Config, error) {
	cfg := Config{
		Mode:            ModeHighestAvailable,
		FixedResolution: 1024,
		OutputDir:       DefaultOutputDir,
		MetadataPath:    "metadata.json",
		TextdataPath:    "model_ids.txt",
		Logging: Logging{
			Level: "info",
		},
		Layouts:           make(map[string]Layout),
		ResolutionLayouts: map[int]string{1024: "glb_1k"},
		Hub: Hub{
			BaseURL:               "https://huggingface.co",
			Revision:              "main",
			TokenEnv:              "TROVE_HUB_TOKEN",
			RequestTimeoutSeconds: 300,
			RateLimiter:           RateLimiterConfig{Limit: 10.0, Burst: 10},
		},
		ManifestRemote: ManifestRemote{
			RepoID:   "please_change_this/your-dataset",
			RepoType: "dataset",
			Path:     "metadata.json",
		},
		FallbackBucketLayout: "glb_1k",
	}

	cfg.Layouts["glb_1k"] = Layout{
		RepoID:         "please_change_this/your-dataset-1k",
		RepoType:       "dataset",
		BaseDir:        "glbs/glbs_1k",
		FilenameSuffix: "_1024.glb",
		BucketFormat:   "000-%03d",
		BucketCount:    89,
	}
	// A second, bucket-less layout so metadata paths outside the 1k tree
	// still map to a repository.
	cfg.Layouts["glb_full"] = Layout{
		RepoID:   "please_change_this/your-dataset",
		RepoType: "dataset",
		BaseDir:  "glbs/full",
	}

	return &cfg, nil
}
