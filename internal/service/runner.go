package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Cycler runs one scheduling cycle.
type Cycler interface {
	RunCycle(ctx context.Context) (*CycleReport, error)
}

// Runner triggers a Cycler on a fixed interval, starting immediately.
type Runner struct {
	Cycler   Cycler
	Interval time.Duration
	Log      *zap.Logger
}

func NewRunner(c Cycler, interval time.Duration, log *zap.Logger) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{Cycler: c, Interval: interval, Log: log}
}

// Run blocks until ctx is done. A cycle in progress finishes before Run
// returns.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.Log.Info("Scheduler running", zap.Duration("interval", r.Interval))
	for {
		if _, err := r.Cycler.RunCycle(ctx); err != nil && ctx.Err() == nil {
			r.Log.Error("Auto cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.Log.Info("Scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}
