package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trovelabs/trove/config"
	"github.com/trovelabs/trove/fetch"
	"github.com/trovelabs/trove/hub"
)

var (
	logger  *slog.Logger
	rootLog *log.Logger

	configPath   string
	modeOverride string
	resolution   int
	outOverride  string
	verbose      bool
)

func init() {
	rootLog = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	logger = slog.New(rootLog)

	flag.StringVar(&configPath, "config", "config.yaml", "path to the trove config file")
	flag.StringVar(&modeOverride, "mode", "", "override download mode (highest_available or fixed)")
	flag.IntVar(&resolution, "resolution", 0, "target resolution for fixed mode")
	flag.StringVar(&outOverride, "out", "", "override the output path")
	flag.BoolVar(&verbose, "verbose", false, "enable debug logging")
}

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	if verbose {
		rootLog.SetLevel(log.DebugLevel)
	}

	if command == "init" {
		handleInit(cmdArgs)
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config %s: %v\n", configPath, err)
		os.Exit(1)
	}

	if !verbose {
		setLevelFromConfig(cfg)
	}

	switch command {
	case "get":
		handleGet(cfg, cmdArgs)
	case "fill":
		handleFill(cfg, cmdArgs)
	case "manifest":
		handleManifest(cfg, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func setLevelFromConfig(cfg *config.Config) {
	switch cfg.Logging.Level {
	case "debug":
		rootLog.SetLevel(log.DebugLevel)
	case "info", "":
		rootLog.SetLevel(log.InfoLevel)
	case "warn":
		rootLog.SetLevel(log.WarnLevel)
	case "error":
		rootLog.SetLevel(log.ErrorLevel)
	default:
		color.HiYellow("Unknown log level %q, using info", cfg.Logging.Level)
		rootLog.SetLevel(log.InfoLevel)
	}
}

func getHubClient(cfg *config.Config) *hub.Client {
	token := ""
	if cfg.Hub.TokenEnv != "" {
		token = os.Getenv(cfg.Hub.TokenEnv)
	}
	hc, err := hub.New(&hub.Config{
		BaseURL:   cfg.Hub.BaseURL,
		Revision:  cfg.Hub.Revision,
		Token:     token,
		Timeout:   time.Duration(cfg.Hub.RequestTimeoutSeconds) * time.Second,
		RateLimit: cfg.Hub.RateLimiter.Limit,
		RateBurst: cfg.Hub.RateLimiter.Burst,
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating hub client: %v\n", err)
		os.Exit(1)
	}
	return hc
}

func newDownloader(cfg *config.Config) *fetch.Downloader {
	if outOverride != "" {
		cfg.OutputDir = outOverride
	}
	d, err := fetch.New(cfg, getHubClient(cfg), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing downloader: %v\n", err)
		os.Exit(1)
	}
	return d
}

func policyFromFlags() fetch.Policy {
	return fetch.Policy{
		Mode:       modeOverride,
		Resolution: resolution,
	}
}

func handleGet(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: trovec get <model-id> [<model-id>...]\n")
		os.Exit(1)
	}

	d := newDownloader(cfg)
	pol := policyFromFlags()
	ctx := context.Background()

	if len(args) == 1 {
		local, err := d.DownloadOne(ctx, args[0], pol)
		if err != nil {
			switch {
			case errors.Is(err, fetch.ErrInvalidModelID):
				fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Invalid model ID:"), err)
			case errors.Is(err, fetch.ErrUnresolved):
				fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Not found:"), err)
			default:
				fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Download failed:"), err)
			}
			os.Exit(1)
		}
		printDownloaded(local)
		return
	}

	d.DownloadMany(ctx, args, pol)
	color.HiGreen("Done")
}

func handleFill(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: trovec fill <count> [<id-list-file>]\n")
		os.Exit(1)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		fmt.Fprintf(os.Stderr, "Count must be a positive integer, got %q\n", args[0])
		os.Exit(1)
	}

	listPath := cfg.TextdataPath
	if len(args) > 1 {
		listPath = args[1]
	}
	if listPath == "" {
		fmt.Fprintf(os.Stderr, "No id list file given and no textdata_path in config\n")
		os.Exit(1)
	}

	src, err := os.Open(listPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening id list %s: %v\n", listPath, err)
		os.Exit(1)
	}
	defer src.Close()

	d := newDownloader(cfg)
	stats, err := d.DownloadUpToN(context.Background(), n, src, policyFromFlags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error filling from %s: %v\n", listPath, err)
		os.Exit(1)
	}
	fmt.Printf("Done. Downloaded %s, scanned %s entries.\n",
		color.GreenString("%d", stats.Downloaded),
		color.CyanString("%d", stats.Scanned))
}

func handleManifest(cfg *config.Config, args []string) {
	if len(args) != 0 {
		fmt.Fprintf(os.Stderr, "Usage: trovec manifest\n")
		os.Exit(1)
	}
	if cfg.ManifestRemote.RepoID == "" || cfg.ManifestRemote.Path == "" {
		fmt.Fprintf(os.Stderr, "Config is missing the manifest_remote block\n")
		os.Exit(1)
	}
	if cfg.MetadataPath == "" && outOverride == "" {
		fmt.Fprintf(os.Stderr, "Config is missing metadata_path and no -out given\n")
		os.Exit(1)
	}

	dest := cfg.MetadataPath
	if outOverride != "" {
		dest = outOverride
	}

	hc := getHubClient(cfg)
	ref := hub.FileRef{
		RepoID:   cfg.ManifestRemote.RepoID,
		RepoType: cfg.ManifestRemote.RepoType,
		Path:     cfg.ManifestRemote.Path,
	}
	ctx := context.Background()
	local, err := hub.WithRetries(ctx, logger, func() (string, error) {
		return hc.Fetch(ctx, ref, filepath.Dir(dest), filepath.Base(dest))
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error downloading manifest: %v\n", err)
		os.Exit(1)
	}
	printDownloaded(local)
}

func handleInit(args []string) {
	path := configPath
	if len(args) > 0 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "Refusing to overwrite existing config at %s\n", path)
		os.Exit(1)
	}

	cfg, err := config.GenerateConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating config: %v\n", err)
		os.Exit(1)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshalling config: %v\n", err)
		os.Exit(1)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating directory %s: %v\n", dir, err)
			os.Exit(1)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote starter config to %s. Edit the repo IDs before use.\n", path)
	color.HiGreen("OK")
}

func printDownloaded(local string) {
	info, err := os.Stat(local)
	if err != nil {
		fmt.Printf("Downloaded to %s\n", local)
		return
	}
	fmt.Printf("Downloaded to %s (%s)\n", local, humanize.Bytes(uint64(info.Size())))
	color.HiGreen("OK")
}

func printUsage() {
	fmt.Println("Usage: trovec [flags] <command> [args...]")
	fmt.Println("Commands:")
	fmt.Printf("  %s <model-id> [<model-id>...]  - download one or more models\n", color.GreenString("get"))
	fmt.Printf("  %s <count> [<id-list-file>]    - download until <count> new models are present\n", color.GreenString("fill"))
	fmt.Printf("  %s                           - download the metadata manifest\n", color.GreenString("manifest"))
	fmt.Printf("  %s [<path>]                      - write a starter config file\n", color.GreenString("init"))
	fmt.Println("Flags:")
	fmt.Printf("  %s   - path to the config file (default config.yaml)\n", color.CyanString("-config"))
	fmt.Printf("  %s     - override download mode: highest_available or fixed\n", color.CyanString("-mode"))
	fmt.Printf("  %s - target resolution for fixed mode\n", color.CyanString("-resolution"))
	fmt.Printf("  %s      - override the output path\n", color.CyanString("-out"))
	fmt.Printf("  %s  - enable debug logging\n", color.CyanString("-verbose"))
}
