// Command smartkey-server runs a SmartKey credential registry over HTTP.
//
// The server wires the configured credential store, the event journal and
// the optional replay ledger into a registry, completes the store authority
// handover and serves the versioned JSON API.
//
// Usage:
//
//	smartkey-server [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-listen string     Listen address (overrides config)
//	-log-level string  Log level: debug, info, warn, error
//	-store string      Store driver: memory, file, sqlite, postgres
//	-dsn string        Store file path or data source name
//	-journal string    Path of the CBOR event journal
//	-discover          Advertise the registry over mDNS
//
// Examples:
//
//	# In-memory registry with explicit addresses
//	smartkey-server -config registry.yaml
//
//	# SQLite-backed registry with a journal
//	smartkey-server -config registry.yaml -store sqlite -dsn keys.db -journal events.cbor
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

	"github.com/smartkey-protocol/smartkey-go/pkg/config"
)

var (
	configFile  = flag.String("config", "", "Configuration file path")
	listen      = flag.String("listen", "", "Listen address")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	storeDriver = flag.String("store", "", "Store driver: memory, file, sqlite, postgres")
	dsn         = flag.String("dsn", "", "Store file path or data source name")
	journalPath = flag.String("journal", "", "Path of the CBOR event journal")
	discover    = flag.Bool("discover", false, "Advertise the registry over mDNS")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "smartkey-server: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "smartkey-server: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// applyFlags layers explicitly set flags over the loaded configuration.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Server.ListenAddress = *listen
		case "log-level":
			cfg.Log.Level = *logLevel
		case "store":
			cfg.Store.Driver = *storeDriver
		case "dsn":
			cfg.Store.DSN = *dsn
		case "journal":
			cfg.Journal.Path = *journalPath
		case "discover":
			cfg.Discovery.Enabled = *discover
		}
	})
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close resources", "error", err)
		}
	}()

	adv, err := a.advertise(ctx)
	if err != nil {
		logger.Warn("mDNS advertisement failed", "error", err)
	}
	if adv != nil {
		defer adv.Stop()
	}

	go a.runMaintenance(ctx, maintenanceInterval)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           a.api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("registry listening",
			"addr", cfg.Server.ListenAddress,
			"registry", a.registry.Address().Hex(),
			"manufacturer", a.registry.Manufacturer().Hex(),
			"store", cfg.Store.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
