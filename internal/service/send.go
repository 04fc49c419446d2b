package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/clock"
	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/lifecycle"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
)

type SendResult struct {
	CampaignID          string             `json:"campaign_id"`
	EmailsSent          int                `json:"emails_sent"`
	EmailsFailed        int                `json:"emails_failed"`
	RemainingDailyLimit int                `json:"remaining_daily_limit"`
	NextEligibleSend    time.Time          `json:"next_eligible_send"`
	Message             string             `json:"message,omitempty"`
	Status              model.RunStatus    `json:"status"`
	Details             []ProspectOutcome  `json:"details"`
	Run                 *model.CampaignRun `json:"run,omitempty"`
}

// SendService delivers initial outreach to email_ready prospects within the
// campaign's daily budget, highest score first.
type SendService struct {
	Store      *repository.Store
	Dispatcher *Dispatcher
	Ledger     *RunLedger
	Clock      clock.Clock
	Log        *zap.Logger
}

func (s *SendService) Run(ctx context.Context, campaignID string, caller Caller) (*SendResult, error) {
	c, err := s.Store.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := authorize(c, caller); err != nil {
		return nil, err
	}
	if c.Status != model.CampaignActive {
		return nil, fmt.Errorf("%w: status %s", appErrors.ErrNotRunnable, c.Status)
	}
	if !s.Dispatcher.Configured() {
		run := s.Ledger.Record(ctx, c.ID, model.RunEmail, model.RunError, "mail sender not configured")
		return &SendResult{CampaignID: c.ID, Status: model.RunError, Run: run}, appErrors.ErrNotConfigured
	}

	log := s.Log.With(zap.String("campaign_id", c.ID), zap.String("stage", "send"))
	now := s.Clock.Now()
	limit := c.SendLimit()
	res := &SendResult{CampaignID: c.ID, Status: model.RunSuccess, Details: []ProspectOutcome{}}

	if !c.SendWeekends && lifecycle.IsWeekend(now) {
		res.RemainingDailyLimit = limit
		res.NextEligibleSend = lifecycle.NextWeekdayMorning(now)
		res.Message = "Weekend sending disabled"
		return res, nil
	}

	since := lifecycle.Midnight(now)
	sentToday, err := s.Store.SentEmails.CountForCampaignSince(ctx, c.ID, since)
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("count sends today: %w", err))
	}
	remaining := max(0, limit-sentToday)
	if remaining == 0 {
		res.NextEligibleSend = lifecycle.NextEligibleSend(now, c.SendWeekends)
		res.Message = "Daily limit reached"
		return res, nil
	}

	ready, err := s.Store.Prospects.ListReadyToSend(ctx, c.ID, remaining)
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("select ready prospects: %w", err))
	}

	for _, p := range ready {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, res, err)
		}
		// quota is re-read from durable state before every send
		count, err := s.Store.SentEmails.CountForCampaignSince(ctx, c.ID, since)
		if err != nil {
			return s.fail(ctx, res, fmt.Errorf("count sends today: %w", err))
		}
		if count >= limit {
			res.Details = append(res.Details, ProspectOutcome{ProspectID: p.ID, Status: lifecycle.OutcomeDailyLimit})
			break
		}

		outcome, stop := s.sendOne(ctx, c, p, log)
		res.Details = append(res.Details, outcome)
		switch outcome.Status {
		case lifecycle.OutcomeSent:
			res.EmailsSent++
		case lifecycle.OutcomeNoEmail, lifecycle.OutcomeNoDraft, lifecycle.OutcomeFailed:
			res.EmailsFailed++
		}
		if stop {
			res.Status = model.RunPartial
			break
		}
	}

	if err := s.Store.Campaigns.AddContacted(ctx, c.ID, res.EmailsSent, now); err != nil {
		log.Error("Failed to update campaign counters", zap.Error(err))
		res.Status = model.RunPartial
	}
	res.RemainingDailyLimit = max(0, limit-(sentToday+res.EmailsSent))
	res.NextEligibleSend = lifecycle.NextEligibleSend(now, c.SendWeekends)

	var sum Summary
	sum.Int("emails_sent", res.EmailsSent)
	sum.Int("emails_failed", res.EmailsFailed)
	sum.Int("remaining_daily_limit", res.RemainingDailyLimit)
	res.Run = s.Ledger.Record(ctx, c.ID, model.RunEmail, res.Status, sum.String())

	log.Info("Send batch finished",
		zap.Int("emails_sent", res.EmailsSent),
		zap.Int("emails_failed", res.EmailsFailed),
		zap.Int("remaining_daily_limit", res.RemainingDailyLimit))
	return res, nil
}

// sendOne dispatches the initial email to p. stop reports that the batch
// must end here.
func (s *SendService) sendOne(ctx context.Context, c *model.Campaign, p *model.Prospect, log *zap.Logger) (ProspectOutcome, bool) {
	out := ProspectOutcome{ProspectID: p.ID}
	if model.NormalizeEmail(p.Email) == "" {
		out.Status = lifecycle.OutcomeNoEmail
		return out, false
	}
	draft, err := s.Store.Drafts.LatestPending(ctx, p.ID)
	if err != nil {
		out.Status, out.Error = lifecycle.OutcomeFailed, err.Error()
		return out, false
	}
	if draft == nil {
		out.Status = lifecycle.OutcomeNoDraft
		return out, false
	}

	now := s.Clock.Now()
	if err := lifecycle.CheckInitialSend(p, now, s.Dispatcher.cooldown()); err != nil {
		out.Status = outcomeFor(err)
		return out, false
	}

	claimed, err := s.Store.Prospects.ClaimInitialSend(ctx, p.ID, now, now.Add(-SendClaimTTL))
	if err != nil {
		out.Status, out.Error = lifecycle.OutcomeFailed, err.Error()
		return out, false
	}
	if !claimed {
		// another run is sending to or has already contacted this prospect
		out.Status = lifecycle.OutcomeConflict
		return out, false
	}

	subject := draft.Subject("Quick note for " + model.NormalizeEmail(p.Email))
	if _, err := s.Dispatcher.Dispatch(ctx, p, draft, subject, draft.Body); err != nil {
		s.Dispatcher.release(ctx, p.ID)
		out.Status, out.Error = outcomeFor(err), err.Error()
		if errors.Is(err, appErrors.ErrPlatformLimit) {
			return out, true
		}
		log.Warn("Initial send failed", zap.String("prospect_id", p.ID), zap.Error(err))
		return out, false
	}

	lifecycle.ApplyInitialSend(p, c, now)
	out.Status = lifecycle.OutcomeSent
	if err := s.Store.Prospects.MarkContacted(ctx, p); err != nil {
		// the email went out; the claim stays until it expires
		log.Error("Prospect update after send did not apply", zap.String("prospect_id", p.ID), zap.Error(err))
		out.Error = err.Error()
	}
	return out, false
}

// fail records an error entry for an unexpected failure and returns the
// partial result alongside the error.
func (s *SendService) fail(ctx context.Context, res *SendResult, err error) (*SendResult, error) {
	res.Status = model.RunError
	if res.EmailsSent > 0 {
		if uerr := s.Store.Campaigns.AddContacted(context.WithoutCancel(ctx), res.CampaignID, res.EmailsSent, s.Clock.Now()); uerr != nil {
			s.Log.Error("Failed to update campaign counters", zap.String("campaign_id", res.CampaignID), zap.Error(uerr))
		}
	}
	res.Run = s.Ledger.Record(ctx, res.CampaignID, model.RunEmail, model.RunError, err.Error())
	return res, err
}
