package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/clock"
	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/lifecycle"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/outreach"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
)

type FollowupResult struct {
	CampaignID              string             `json:"campaign_id"`
	FollowupsSent           int                `json:"followups_sent"`
	ProspectsMovedToNurture int                `json:"prospects_moved_to_nurture"`
	Details                 []ProspectOutcome  `json:"details"`
	Message                 string             `json:"message,omitempty"`
	Status                  model.RunStatus    `json:"status"`
	Run                     *model.CampaignRun `json:"run,omitempty"`
}

// FollowupService sends the next step of the follow-up sequence to
// contacted prospects whose follow-up is due.
type FollowupService struct {
	Store      *repository.Store
	Writer     outreach.Writer
	Dispatcher *Dispatcher
	Ledger     *RunLedger
	Clock      clock.Clock
	Log        *zap.Logger
}

// Due returns the prospects whose follow-up is due at now, highest score
// first, capped at the campaign's daily send limit. When the store cannot
// evaluate the due-date query it computes the same set in process.
func (s *FollowupService) Due(ctx context.Context, c *model.Campaign, now time.Time) ([]*model.Prospect, error) {
	limit := c.SendLimit()
	due, err := s.Store.Prospects.ListDueFollowups(ctx, c.ID, now, c.FollowupLimit(), limit)
	if err == nil {
		return due, nil
	}
	if !errors.Is(err, appErrors.ErrUnsupportedQuery) {
		return nil, err
	}

	s.Log.Debug("Follow-up query unsupported, filtering in process", zap.String("campaign_id", c.ID))
	all, err := s.Store.Prospects.ListAwaitingReply(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return filterDue(all, c, now, limit), nil
}

func filterDue(all []*model.Prospect, c *model.Campaign, now time.Time, limit int) []*model.Prospect {
	due := make([]*model.Prospect, 0, len(all))
	for _, p := range all {
		if lifecycle.FollowupDue(p, c, now) {
			due = append(due, p)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].Score() > due[j].Score() })
	if len(due) > limit {
		due = due[:limit]
	}
	return due
}

func (s *FollowupService) Run(ctx context.Context, campaignID string, caller Caller) (*FollowupResult, error) {
	c, err := s.Store.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := authorize(c, caller); err != nil {
		return nil, err
	}
	res := &FollowupResult{CampaignID: c.ID, Status: model.RunSuccess, Details: []ProspectOutcome{}}
	if !c.EnableFollowups {
		res.Message = "Follow-ups disabled"
		return res, nil
	}
	if c.Status != model.CampaignActive {
		return nil, fmt.Errorf("%w: status %s", appErrors.ErrNotRunnable, c.Status)
	}
	if !s.Dispatcher.Configured() || s.Writer == nil {
		res.Status = model.RunError
		res.Run = s.Ledger.Record(ctx, c.ID, model.RunFollowup, model.RunError, "follow-up writer or mail sender not configured")
		return res, appErrors.ErrNotConfigured
	}

	log := s.Log.With(zap.String("campaign_id", c.ID), zap.String("stage", "followup"))
	due, err := s.Due(ctx, c, s.Clock.Now())
	if err != nil {
		return s.fail(ctx, res, fmt.Errorf("select due follow-ups: %w", err))
	}

	for _, p := range due {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, res, err)
		}
		outcome, stop := s.followOne(ctx, c, p, log)
		res.Details = append(res.Details, outcome)
		switch outcome.Status {
		case lifecycle.OutcomeSent:
			res.FollowupsSent++
		case lifecycle.OutcomeNurture:
			res.FollowupsSent++
			res.ProspectsMovedToNurture++
		case lifecycle.OutcomeDraftFailed, lifecycle.OutcomeFailed:
			res.Status = model.RunPartial
		}
		if stop {
			res.Status = model.RunPartial
			break
		}
	}

	var sum Summary
	sum.Int("followups_sent", res.FollowupsSent)
	sum.Int("nurtured", res.ProspectsMovedToNurture)
	res.Run = s.Ledger.Record(ctx, c.ID, model.RunFollowup, res.Status, sum.String())

	log.Info("Follow-up batch finished",
		zap.Int("followups_sent", res.FollowupsSent),
		zap.Int("nurtured", res.ProspectsMovedToNurture))
	return res, nil
}

func (s *FollowupService) followOne(ctx context.Context, c *model.Campaign, p *model.Prospect, log *zap.Logger) (ProspectOutcome, bool) {
	number := p.FollowupCount + 1
	out := ProspectOutcome{ProspectID: p.ID, FollowupNumber: number}
	if model.NormalizeEmail(p.Email) == "" {
		out.Status = lifecycle.OutcomeNoEmail
		return out, false
	}
	now := s.Clock.Now()
	if err := lifecycle.CheckFollowup(p, c, now); err != nil {
		out.Status = outcomeFor(err)
		return out, false
	}

	claimed, err := s.Store.Prospects.ClaimFollowup(ctx, p.ID, p.FollowupCount, now, now.Add(-SendClaimTTL))
	if err != nil {
		out.Status, out.Error = lifecycle.OutcomeFailed, err.Error()
		return out, false
	}
	if !claimed {
		out.Status = lifecycle.OutcomeConflict
		return out, false
	}
	out, stop := s.sendFollowup(ctx, c, p, out, now, log)
	if out.Status != lifecycle.OutcomeSent && out.Status != lifecycle.OutcomeNurture {
		s.Dispatcher.release(ctx, p.ID)
	}
	return out, stop
}

// sendFollowup drafts and dispatches follow-up number out.FollowupNumber to a
// claimed prospect.
func (s *FollowupService) sendFollowup(ctx context.Context, c *model.Campaign, p *model.Prospect, out ProspectOutcome, now time.Time, log *zap.Logger) (ProspectOutcome, bool) {
	number := out.FollowupNumber
	fc := outreach.FollowupContext{Number: number}
	if last := p.LastTouch(); last != nil {
		fc.DaysSince = int(now.Sub(*last) / (24 * time.Hour))
	}
	prev, err := s.Store.SentEmails.LatestForProspect(ctx, p.ID)
	if err != nil {
		log.Warn("Could not load previous email", zap.String("prospect_id", p.ID), zap.Error(err))
	} else if prev != nil {
		fc.PreviousSubject, fc.PreviousBody = prev.Subject, prev.Body
	}

	d, err := s.Writer.FollowUp(ctx, outreach.Profile{
		Name:     p.Name,
		Title:    p.Title,
		Company:  p.Company,
		Industry: p.Industry,
		Source:   p.Source,
	}, fc)
	if err != nil {
		log.Warn("Follow-up draft failed", zap.String("prospect_id", p.ID), zap.Error(err))
		out.Status, out.Error = lifecycle.OutcomeDraftFailed, err.Error()
		return out, false
	}

	draft := &model.EmailDraft{
		ProspectID:     p.ID,
		Kind:           model.DraftFollowup,
		FollowupNumber: number,
		SubjectLines:   d.SubjectLines,
		Body:           d.Body,
		Status:         model.DraftPending,
		CreatedAt:      now,
	}
	if err := s.Store.Drafts.Create(ctx, draft); err != nil {
		out.Status, out.Error = lifecycle.OutcomeFailed, err.Error()
		return out, false
	}

	subject := draft.Subject(outreach.FollowupSubject(p.Company))
	if _, err := s.Dispatcher.Dispatch(ctx, p, draft, subject, draft.Body); err != nil {
		out.Status, out.Error = outcomeFor(err), err.Error()
		if errors.Is(err, appErrors.ErrPlatformLimit) {
			return out, true
		}
		log.Warn("Follow-up send failed", zap.String("prospect_id", p.ID), zap.Error(err))
		return out, false
	}

	prevCount := p.FollowupCount
	nurtured := lifecycle.ApplyFollowup(p, c, now)
	if nurtured {
		out.Status = lifecycle.OutcomeNurture
	} else {
		out.Status = lifecycle.OutcomeSent
	}
	if err := s.Store.Prospects.RecordFollowup(ctx, p, prevCount); err != nil {
		// the email went out; the claim stays until it expires
		log.Error("Prospect update after follow-up did not apply", zap.String("prospect_id", p.ID), zap.Error(err))
		out.Error = err.Error()
	}
	return out, false
}

func (s *FollowupService) fail(ctx context.Context, res *FollowupResult, err error) (*FollowupResult, error) {
	res.Status = model.RunError
	res.Run = s.Ledger.Record(ctx, res.CampaignID, model.RunFollowup, model.RunError, err.Error())
	return res, err
}
