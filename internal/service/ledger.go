package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/clock"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
)

// RunLedger appends one immutable entry per stage execution.
type RunLedger struct {
	Runs  repository.RunRepositoryInterface
	Clock clock.Clock
	Log   *zap.Logger
}

func NewRunLedger(runs repository.RunRepositoryInterface, clk clock.Clock, log *zap.Logger) *RunLedger {
	return &RunLedger{Runs: runs, Clock: clk, Log: log}
}

// Record writes the entry even when ctx is already cancelled, so an
// interrupted stage still leaves a trace. A failed write is logged and
// yields a nil run.
func (l *RunLedger) Record(ctx context.Context, campaignID string, runType model.RunType, status model.RunStatus, summary string) *model.CampaignRun {
	run := &model.CampaignRun{
		CampaignID:    campaignID,
		RunType:       runType,
		Status:        status,
		ResultSummary: summary,
		CreatedAt:     l.Clock.Now(),
	}
	if err := l.Runs.Create(context.WithoutCancel(ctx), run); err != nil {
		l.Log.Error("Failed to append campaign run",
			zap.String("campaign_id", campaignID),
			zap.String("run_type", string(runType)),
			zap.String("status", string(status)),
			zap.Error(err))
		return nil
	}
	l.Log.Info("Campaign run recorded",
		zap.String("campaign_id", campaignID),
		zap.String("run_type", string(runType)),
		zap.String("status", string(status)),
		zap.String("summary", summary))
	return run
}

// History returns the newest entries first.
func (l *RunLedger) History(ctx context.Context, campaignID string, limit int) ([]*model.CampaignRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return l.Runs.ListByCampaign(ctx, campaignID, limit)
}
