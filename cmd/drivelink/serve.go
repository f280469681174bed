package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/drivelink/internal/api"
	"github.com/mattjoyce/drivelink/internal/config"
	"github.com/mattjoyce/drivelink/internal/driver"
	"github.com/mattjoyce/drivelink/internal/events"
	"github.com/mattjoyce/drivelink/internal/journal"
	"github.com/mattjoyce/drivelink/internal/lock"
	"github.com/mattjoyce/drivelink/internal/log"
	"github.com/mattjoyce/drivelink/internal/storage"
)

// session is a driver with the lock and journal it needs.
type session struct {
	cfg     *config.Config
	lock    *lock.PIDLock
	journal *journal.Journal
	hub     *events.Hub
	driver  *driver.Driver
	closeDB func() error
}

// openSession takes the controller lock, opens the journal and connects to
// the remote engine.
func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	logger := log.WithComponent("main")

	pidLock, err := lock.Acquire(cfg.LockFile())
	if err != nil {
		return nil, err
	}
	logger.Debug("acquired PID lock", "path", pidLock.Path())

	db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
	if err != nil {
		_ = pidLock.Release()
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j := journal.New(db)
	hub := events.NewHub(cfg.API.EventBuffer)

	d, err := driver.Open(ctx, cfg, j, hub)
	if err != nil {
		_ = db.Close()
		_ = pidLock.Release()
		return nil, err
	}
	return &session{cfg: cfg, lock: pidLock, journal: j, hub: hub, driver: d, closeDB: db.Close}, nil
}

func (s *session) Close() error {
	err := s.driver.Close()
	if dbErr := s.closeDB(); err == nil {
		err = dbErr
	}
	_ = s.lock.Release()
	return err
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return exitError
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitError
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	attrs := []any{"version", version, "mode", cfg.Remote.Mode}
	if cfg.SourcePath != "" {
		if fp, err := config.Fingerprint(cfg.SourcePath); err == nil {
			attrs = append(attrs, "config", cfg.SourcePath, "config_fingerprint", fp)
		}
	}
	logger.Info("drivelink starting", attrs...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return exitError
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("shutdown reported an error", "error", err)
		}
		logger.Info("drivelink stopped")
	}()

	if !cfg.API.Enabled {
		logger.Info("API disabled; holding the remote connection until interrupted")
		<-ctx.Done()
		return exitOK
	}

	srv := api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.APIKey}, s.driver, s.journal, s.hub, log.WithComponent("api"))
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("API server failed", "error", err)
		return exitError
	}
	return exitOK
}
