package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ibeckermayer/rina/internal/api"
	"github.com/ibeckermayer/rina/internal/app"
	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path, err := config.ConfigPath()
	if err != nil {
		return fmt.Errorf("failed to locate config: %w", err)
	}
	cfg, created, err := loadOrCreateConfig(path)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	if created {
		log.Info("created default config", zap.String("path", path))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			log.Error("failed to flush state on shutdown", zap.Error(err))
		}
	}()

	rt.Scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.App.Run(gctx)
	})
	if cfg.Status.ListenAddr != "" {
		srv := api.NewServer(cfg.Status.ListenAddr, rt.App, log)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	log.Info("rina starting", zap.Int("agents", len(rt.Agents)))
	return g.Wait()
}

// loadOrCreateConfig loads the config file, writing the defaults on first run.
func loadOrCreateConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.LoadFile(path)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("failed to load config: %w", err)
	}

	cfg = config.Default()
	if err := cfg.SaveFile(path); err != nil {
		return nil, false, fmt.Errorf("failed to save default config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, true, nil
}
