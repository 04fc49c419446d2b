// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to build application", zap.Error(err))
	}
	if err := run(ctx, a, ":"+cfg.Port); err != nil {
		log.Fatal("Server stopped with error", zap.Error(err))
	}
}

// run serves the API until ctx is done. Delivery events are consumed here
// only when they travel over the in-memory queue; with AMQP the worker owns
// the consumer.
func run(ctx context.Context, a *app.App, addr string) error {
	if a.Config.AMQPURL == "" {
		if err := a.StartSubscriber(); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("Server running", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if a.Config.SchedulerEnabled {
		g.Go(func() error { return a.Runner().Run(ctx) })
	}

	err := g.Wait()
	if cerr := a.Close(); cerr != nil {
		a.Log.Warn("Failed to close backends", zap.Error(cerr))
	}
	return err
}
