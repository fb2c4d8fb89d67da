package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/smartkey-protocol/smartkey-go/pkg/api"
	"github.com/smartkey-protocol/smartkey-go/pkg/config"
	"github.com/smartkey-protocol/smartkey-go/pkg/delegation"
	"github.com/smartkey-protocol/smartkey-go/pkg/discovery"
	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
	"github.com/smartkey-protocol/smartkey-go/pkg/journal"
	"github.com/smartkey-protocol/smartkey-go/pkg/registry"
	"github.com/smartkey-protocol/smartkey-go/pkg/storage"
	"github.com/smartkey-protocol/smartkey-go/pkg/version"
)

// app is a fully wired registry server.
type app struct {
	config   config.Config
	logger   *slog.Logger
	store    storage.Store
	registry *registry.Registry
	api      *api.Server
	ledger   delegation.ReplayLedger
	events   *journal.MultiLogger

	closers []io.Closer
}

// maintenanceInterval is how often expired replay entries are purged and
// file-backed stores are flushed.
const maintenanceInterval = time.Minute

// newLogger builds the operational logger from the log settings.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStore opens the configured backend.
func openStore(ctx context.Context, cfg config.StoreConfig, deployer identity.Address) (storage.Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return storage.NewMemoryStore(deployer), nil
	case config.StoreFile:
		fs, err := storage.OpenFileStore(cfg.DSN, deployer)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case config.StoreSQLite, config.StorePostgres:
		driver := storage.DriverSQLite
		if cfg.Driver == config.StorePostgres {
			driver = storage.DriverPostgres
		}
		ss, err := storage.OpenSQLStore(ctx, driver, cfg.DSN, deployer)
		if err != nil {
			return nil, err
		}
		return ss, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newApp wires the store, journal, replay ledger, registry and API from cfg,
// and hands the store authority to the registry if the deployer still holds it.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{config: cfg, logger: logger}

	store, err := openStore(ctx, cfg.Store, cfg.DeployerAddress())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.events = journal.NewMultiLogger(journal.NewSlogAdapter(logger))
	if cfg.Journal.Path != "" {
		fl, err := journal.NewFileLogger(cfg.Journal.Path, journal.WithErrorLogger(logger))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		a.events.Add(fl)
		a.closers = append(a.closers, fl)
	}

	var ledger delegation.ReplayLedger
	if cfg.Replay.Enabled {
		ledger, err = a.openReplayLedger(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.ledger = ledger
	}

	reg, err := registry.New(store, registry.Config{
		Address:        cfg.RegistryAddress(),
		Manufacturer:   cfg.ManufacturerAddress(),
		DefaultTimeout: cfg.Registry.DefaultTimeout,
		Events:         a.events,
		ReplayLedger:   ledger,
		ReplayTTL:      cfg.Replay.TTL,
		Logger:         logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry = reg

	if err := a.claimAuthority(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.api = api.NewServer(reg, api.ServerConfig{Logger: logger})
	return a, nil
}

func (a *app) openReplayLedger(ctx context.Context) (delegation.ReplayLedger, error) {
	switch a.config.Replay.Backend {
	case config.ReplaySQL:
		sqlStore, ok := a.store.(*storage.SQLStore)
		if !ok {
			return nil, errors.New("sql replay ledger needs a SQL store")
		}
		ledger, err := delegation.NewSQLReplayLedger(ctx, sqlStore.DB(), a.config.Replay.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open replay ledger: %w", err)
		}
		return ledger, nil
	default:
		return delegation.NewMemoryReplayLedger(a.config.Replay.TTL, a.config.Replay.MaxEntries), nil
	}
}

// claimAuthority completes the two-phase initialisation.
func (a *app) claimAuthority(ctx context.Context) error {
	current, err := a.store.Authority(ctx)
	if err != nil {
		return err
	}
	switch current {
	case a.registry.Address():
		return nil
	case a.config.DeployerAddress():
		if err := a.store.TransferAuthority(ctx, current, a.registry.Address()); err != nil {
			return fmt.Errorf("failed to hand authority to the registry: %w", err)
		}
		a.logger.Info("store authority transferred", "from", current.Hex(), "to", a.registry.Address().Hex())
		return a.save()
	default:
		return fmt.Errorf("store authority %s is held by neither the deployer nor the registry", current.Hex())
	}
}

// save flushes file-backed stores.
func (a *app) save() error {
	if fs, ok := a.store.(*storage.FileStore); ok {
		return fs.Save()
	}
	return nil
}

// runMaintenance purges the SQL replay ledger and saves file stores until
// ctx is done.
func (a *app) runMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.maintain(ctx)
		}
	}
}

func (a *app) maintain(ctx context.Context) {
	if sql, ok := a.ledger.(*delegation.SQLReplayLedger); ok {
		n, err := sql.Purge(ctx)
		if err != nil {
			a.logger.Warn("replay ledger purge failed", "error", err)
		} else if n > 0 {
			a.logger.Debug("replay ledger purged", "count", n)
		}
	}
	if err := a.save(); err != nil {
		a.logger.Warn("store save failed", "error", err)
	}
}

// advertise announces the registry over mDNS when enabled.
func (a *app) advertise(ctx context.Context) (*discovery.Advertiser, error) {
	if !a.config.Discovery.Enabled {
		return nil, nil
	}

	adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{TTL: discovery.DefaultTTL})
	info := &discovery.RegistryInfo{
		Instance:     discovery.InstanceName(a.config.Discovery.Instance, a.registry.Address()),
		Port:         listenPort(a.config.Server.ListenAddress),
		Registry:     a.registry.Address(),
		Manufacturer: a.registry.Manufacturer(),
		Version:      version.MustCurrent().Major,
	}
	if err := adv.Advertise(ctx, info); err != nil {
		return nil, err
	}
	a.logger.Info("advertising registry", "instance", info.Instance, "port", info.Port)
	return adv, nil
}

// Close saves and releases every resource.
func (a *app) Close() error {
	var errs []error
	if err := a.save(); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// listenPort extracts the port of a listen address, or 0.
func listenPort(addr string) uint16 {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		port = strings.TrimPrefix(addr, ":")
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(n)
}
