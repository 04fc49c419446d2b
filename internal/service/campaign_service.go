package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/clock"
	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/lifecycle"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
)

// CampaignService holds the read models and administrative transitions
// around the pipeline.
type CampaignService struct {
	Store    *repository.Store
	Ledger   *RunLedger
	Followup *FollowupService
	Clock    clock.Clock
	Log      *zap.Logger
}

type CampaignStats struct {
	CampaignID     string               `json:"campaign_id"`
	Name           string               `json:"name"`
	Status         model.CampaignStatus `json:"status"`
	FoundCount     int                  `json:"found_count"`
	ContactedCount int                  `json:"contacted_count"`
	RepliedCount   int                  `json:"replied_count"`
	BookedCount    int                  `json:"booked_count"`
	ReadyToSend    int                  `json:"ready_to_send"`
	FollowupsDue   int                  `json:"followups_due"`
	SentToday      int                  `json:"sent_today"`
	DailyLimit     int                  `json:"email_daily_limit"`
	LastRunAt      *time.Time           `json:"last_run_at,omitempty"`
	ScheduleStart  *time.Time           `json:"schedule_start,omitempty"`
}

func (s *CampaignService) load(ctx context.Context, id string, caller Caller) (*model.Campaign, error) {
	c, err := s.Store.Campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(c, caller); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) Stats(ctx context.Context, id string, caller Caller) (*CampaignStats, error) {
	c, err := s.load(ctx, id, caller)
	if err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	stats := &CampaignStats{
		CampaignID:     c.ID,
		Name:           c.Name,
		Status:         c.Status,
		FoundCount:     c.FoundCount,
		ContactedCount: c.ContactedCount,
		RepliedCount:   c.RepliedCount,
		BookedCount:    c.BookedCount,
		DailyLimit:     c.SendLimit(),
		LastRunAt:      c.LastRunAt,
		ScheduleStart:  c.ScheduleStart,
	}

	if stats.ReadyToSend, err = s.Store.Prospects.CountReadyToSend(ctx, c.ID); err != nil {
		return nil, fmt.Errorf("count ready prospects: %w", err)
	}
	if stats.SentToday, err = s.Store.SentEmails.CountForCampaignSince(ctx, c.ID, lifecycle.Midnight(now)); err != nil {
		return nil, fmt.Errorf("count sends today: %w", err)
	}
	if c.EnableFollowups && s.Followup != nil {
		due, err := s.Followup.Due(ctx, c, now)
		if err != nil {
			return nil, fmt.Errorf("count due follow-ups: %w", err)
		}
		stats.FollowupsDue = len(due)
	}
	return stats, nil
}

// Runs returns the campaign's ledger, newest first.
func (s *CampaignService) Runs(ctx context.Context, id string, caller Caller, limit int) ([]*model.CampaignRun, error) {
	if _, err := s.load(ctx, id, caller); err != nil {
		return nil, err
	}
	return s.Ledger.History(ctx, id, limit)
}

func (s *CampaignService) Pause(ctx context.Context, id string, caller Caller) error {
	c, err := s.load(ctx, id, caller)
	if err != nil {
		return err
	}
	if c.Status != model.CampaignActive {
		return fmt.Errorf("%w: cannot pause a %s campaign", appErrors.ErrNotRunnable, c.Status)
	}
	s.Log.Info("Campaign paused", zap.String("campaign_id", id), zap.String("by", caller.UserID))
	return s.Store.Campaigns.UpdateStatus(ctx, id, model.CampaignPaused)
}

func (s *CampaignService) Activate(ctx context.Context, id string, caller Caller) error {
	c, err := s.load(ctx, id, caller)
	if err != nil {
		return err
	}
	if c.Status == model.CampaignActive {
		return nil
	}
	s.Log.Info("Campaign activated", zap.String("campaign_id", id), zap.String("by", caller.UserID))
	return s.Store.Campaigns.UpdateStatus(ctx, id, model.CampaignActive)
}

func (s *CampaignService) loadProspect(ctx context.Context, id string, caller Caller) (*model.Prospect, error) {
	p, err := s.Store.Prospects.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.CampaignID != nil {
		if _, err := s.load(ctx, *p.CampaignID, caller); err != nil {
			return nil, err
		}
	} else if !caller.Admin && p.OwnerID != "" && p.OwnerID != caller.UserID {
		return nil, appErrors.ErrForbidden
	}
	return p, nil
}

// ArchiveProspect halts all automated processing of the prospect.
func (s *CampaignService) ArchiveProspect(ctx context.Context, id string, caller Caller) error {
	p, err := s.loadProspect(ctx, id, caller)
	if err != nil {
		return err
	}
	if err := lifecycle.Archive(p); err != nil {
		return err
	}
	changed, err := s.Store.Prospects.Archive(ctx, id)
	if err != nil {
		return err
	}
	if !changed {
		return appErrors.ErrArchived
	}
	return nil
}

// MarkMeetingBooked ends the sequence and counts the booking once.
func (s *CampaignService) MarkMeetingBooked(ctx context.Context, id string, caller Caller) error {
	p, err := s.loadProspect(ctx, id, caller)
	if err != nil {
		return err
	}
	if _, err := lifecycle.MarkMeetingBooked(p); err != nil {
		return err
	}
	_, err = s.Store.Prospects.MarkMeetingBooked(ctx, id)
	return err
}
