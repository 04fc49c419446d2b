package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/leadhunter-backend/internal/app"
	"github.com/unclebandit/leadhunter-backend/internal/config"
	"github.com/unclebandit/leadhunter-backend/internal/logger"
)

func main() {
	cfg, envFile, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	if !envFile {
		log.Info("No .env file found, relying on OS environment variables")
	}
	if cfg.AMQPURL == "" {
		log.Warn("AMQP_URL not set; this worker will only run the scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to build application", zap.Error(err))
	}
	log.Info("Worker running, waiting for delivery events")
	if err := run(ctx, a); err != nil {
		log.Fatal("Worker stopped with error", zap.Error(err))
	}
}

// run consumes delivery events and drives the scheduler until ctx is done.
func run(ctx context.Context, a *app.App) error {
	if err := a.StartSubscriber(); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Runner().Run(ctx) })

	err := g.Wait()
	if cerr := a.Close(); cerr != nil {
		a.Log.Warn("Failed to close backends", zap.Error(cerr))
	}
	return err
}
