// Command wheelport publishes a folder of package files to an object
// storage container, maintaining the container manifest and link index
// alongside the files.
//
// Usage:
//
//	wheelport [flags] <local-folder>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wheelport/wheelport/internal/config"
	"github.com/wheelport/wheelport/internal/logging"
	"github.com/wheelport/wheelport/internal/metrics"
	"github.com/wheelport/wheelport/internal/server"
	"github.com/wheelport/wheelport/internal/store"
	"github.com/wheelport/wheelport/internal/uploader"
)

const defaultConfigPath = "wheelport.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath, "path to the configuration file")
	container := flag.String("container", "", "container to publish into (overrides config)")
	provider := flag.String("provider", "", "store provider: aws, gcs, azure, minio, local, memory (overrides config)")
	workers := flag.Int("workers", 0, "concurrent upload workers (overrides config)")
	retries := flag.Int("retries", -1, "retries after a failed publish attempt (overrides config)")
	noIndex := flag.Bool("no-index", false, "do not regenerate index.html")
	noPrune := flag.Bool("no-prune", false, "do not delete superseded dev builds")
	showURL := flag.Bool("show-url", false, "print the container public URL after publishing")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logFormat := flag.String("log-format", "", "log format: text or json (overrides config)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		return 2
	}
	localDir := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Running without a config file is fine as long as the user
		// did not point at one explicitly.
		if *configPath == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
		} else {
			fmt.Fprintf(os.Stderr, "wheelport: %v\n", err)
			return 1
		}
	}

	// Flags override the file.
	if *container != "" {
		cfg.Container = *container
	}
	if *provider != "" {
		cfg.Provider = *provider
	}
	if *workers > 0 {
		cfg.Upload.Workers = *workers
	}
	if *retries >= 0 {
		cfg.Upload.MaxRetries = *retries
	}
	if *noIndex {
		cfg.Upload.UpdateIndex = false
	}
	if *noPrune {
		cfg.Upload.PruneDev = false
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opener, err := store.NewOpener(cfg)
	if err != nil {
		slog.Error("Store setup failed", "provider", cfg.Provider, "error", err)
		return 1
	}
	slog.Info("Store provider initialized", "provider", cfg.Provider, "container", cfg.Container)

	var srv *server.Server
	if cfg.Metrics.Enabled {
		metrics.Register()
		srv = server.New()
		go func() {
			if err := srv.ListenAndServe(cfg.Metrics.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Debug listener failed", "addr", cfg.Metrics.Listen, "error", err)
			}
		}()
	}

	u := uploader.New(uploader.Config{
		Opener:      opener,
		Workers:     cfg.Upload.Workers,
		UpdateIndex: cfg.Upload.UpdateIndex,
		PruneDev:    cfg.Upload.PruneDev,
		MaxRetries:  cfg.Upload.MaxRetries,
		RetryDelay:  time.Duration(cfg.Upload.RetryDelaySeconds) * time.Second,
	})

	err = u.Publish(ctx, localDir, cfg.Container)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Debug listener shutdown failed", "error", err)
		}
		cancel()
	}

	if err != nil {
		slog.Error("Publish failed", "container", cfg.Container, "error", err)
		return 1
	}
	slog.Info("Publish complete", "container", cfg.Container)

	if *showURL {
		url, err := publicURL(ctx, opener, cfg.Container)
		if err != nil {
			slog.Warn("Container public URL unavailable", "provider", cfg.Provider, "error", err)
		} else {
			fmt.Println(url)
		}
	}
	return 0
}

// publicURL asks the store for the container's public address. Not
// every provider has one; it is an optional capability.
func publicURL(ctx context.Context, opener store.Opener, container string) (string, error) {
	st, err := opener.Open(ctx)
	if err != nil {
		return "", err
	}
	defer st.Close()

	purl, ok := st.(store.PublicURLer)
	if !ok {
		return "", errors.New("store provider does not expose a public URL")
	}
	return purl.PublicURL(ctx, container)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: wheelport [flags] <local-folder>

Publishes the package files of <local-folder> to an object storage
container, updates the container manifest (metadata.json) and
regenerates the link index (index.html).

Flags:
`)
	flag.PrintDefaults()
}
