package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/clock"
	"github.com/unclebandit/leadhunter-backend/internal/lifecycle"
	"github.com/unclebandit/leadhunter-backend/internal/lock"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
)

// DefaultLockTTL bounds how long one scheduler may hold a campaign.
const DefaultLockTTL = 15 * time.Minute

type CycleReport struct {
	CampaignsProcessed     int      `json:"campaigns_processed"`
	HuntsRun               int      `json:"hunts_run"`
	EmailBatchesSent       int      `json:"email_batches_sent"`
	FollowupBatchesRun     int      `json:"followup_batches_run"`
	FollowupsSent          int      `json:"followups_sent"`
	TotalProspectsFound    int      `json:"total_prospects_found"`
	TotalEmailsSent        int      `json:"total_emails_sent"`
	CampaignsSkippedLocked int      `json:"campaigns_skipped_locked"`
	Errors                 []string `json:"errors,omitempty"`
}

func (r *CycleReport) fail(campaignID, stage string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("campaign %s %s: %v", campaignID, stage, err))
}

// Scheduler is the AutoScheduler: one cycle runs hunt, send and follow-up
// for every due active campaign, one campaign at a time.
type Scheduler struct {
	Store    *repository.Store
	Hunt     *HuntService
	Send     *SendService
	Followup *FollowupService
	Ledger   *RunLedger
	Locker   lock.Locker
	Clock    clock.Clock
	Log      *zap.Logger
	LockTTL  time.Duration
}

// RunCycle processes every due campaign. Per-campaign failures land in the
// report; only failing to list campaigns is returned as an error.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{}
	campaigns, err := s.Store.Campaigns.ListDue(ctx, s.Clock.Now())
	if err != nil {
		return report, fmt.Errorf("list due campaigns: %w", err)
	}

	for _, c := range campaigns {
		if ctx.Err() != nil {
			break
		}
		s.processLocked(ctx, c, report)
	}

	s.Log.Info("Auto cycle finished",
		zap.Int("campaigns_processed", report.CampaignsProcessed),
		zap.Int("hunts_run", report.HuntsRun),
		zap.Int("email_batches_sent", report.EmailBatchesSent),
		zap.Int("followups_sent", report.FollowupsSent),
		zap.Int("campaigns_skipped_locked", report.CampaignsSkippedLocked),
		zap.Int("errors", len(report.Errors)))
	return report, ctx.Err()
}

func (s *Scheduler) processLocked(ctx context.Context, c *model.Campaign, report *CycleReport) {
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	release, ok, err := s.Locker.TryLock(ctx, "campaign:"+c.ID, ttl)
	if err != nil {
		report.fail(c.ID, "lock", err)
		return
	}
	if !ok {
		report.CampaignsSkippedLocked++
		s.Log.Info("Campaign locked by another scheduler", zap.String("campaign_id", c.ID))
		return
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.Log.Warn("Failed to release campaign lock", zap.String("campaign_id", c.ID), zap.Error(err))
		}
	}()
	s.process(ctx, c, report)
}

func (s *Scheduler) process(ctx context.Context, c *model.Campaign, report *CycleReport) {
	now := s.Clock.Now()
	report.CampaignsProcessed++

	if c.LastRunAt == nil || now.Sub(*c.LastRunAt) >= lifecycle.HuntInterval {
		err := s.guard(ctx, c.ID, model.RunHunt, func() error {
			res, err := s.Hunt.Run(ctx, c.ID, System)
			if err != nil {
				return err
			}
			report.HuntsRun++
			report.TotalProspectsFound += res.ProspectsFound
			return nil
		})
		if err != nil {
			report.fail(c.ID, "hunt", err)
		}
	}

	if c.SendWeekends || !lifecycle.IsWeekend(now) {
		err := s.guard(ctx, c.ID, model.RunEmail, func() error {
			ready, err := s.Store.Prospects.CountReadyToSend(ctx, c.ID)
			if err != nil || ready == 0 {
				return err
			}
			res, err := s.Send.Run(ctx, c.ID, System)
			if err != nil {
				return err
			}
			report.EmailBatchesSent++
			report.TotalEmailsSent += res.EmailsSent
			return nil
		})
		if err != nil {
			report.fail(c.ID, "send", err)
		}
	}

	if c.EnableFollowups {
		err := s.guard(ctx, c.ID, model.RunFollowup, func() error {
			due, err := s.Followup.Due(ctx, c, s.Clock.Now())
			if err != nil || len(due) == 0 {
				return err
			}
			res, err := s.Followup.Run(ctx, c.ID, System)
			if err != nil {
				return err
			}
			report.FollowupBatchesRun++
			report.FollowupsSent += res.FollowupsSent
			return nil
		})
		if err != nil {
			report.fail(c.ID, "followup", err)
		}
	}

	// advance regardless of outcome so a stuck campaign cannot hog every tick
	next := now.Add(lifecycle.HuntInterval)
	if err := s.Store.Campaigns.SetScheduleStart(context.WithoutCancel(ctx), c.ID, next); err != nil {
		report.fail(c.ID, "schedule", err)
	}
}

// guard runs fn and converts a panic into an error ledger entry.
func (s *Scheduler) guard(ctx context.Context, campaignID string, stage model.RunType, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.Log.Error("Stage panicked", zap.String("campaign_id", campaignID), zap.String("stage", string(stage)), zap.Any("panic", r))
			if s.Ledger != nil {
				s.Ledger.Record(ctx, campaignID, stage, model.RunError, err.Error())
			}
		}
	}()
	return fn()
}
