package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/leadhunter-backend/internal/model"
)

// SentEmailRepositoryInterface covers the send audit trail. Daily quotas are
// always derived from these rows.
type SentEmailRepositoryInterface interface {
	Create(ctx context.Context, s *model.SentEmail) error
	// CountForCampaignSince counts sends to the campaign's prospects at or after since.
	CountForCampaignSince(ctx context.Context, campaignID string, since time.Time) (int, error)
	// CountSince counts sends across every campaign at or after since.
	CountSince(ctx context.Context, since time.Time) (int, error)
	// LatestForProspect returns the most recent send, or nil when there is none.
	LatestForProspect(ctx context.Context, prospectID string) (*model.SentEmail, error)
	// StampEvent records a delivery event on the send matching draftID, or on
	// the prospect's latest send when draftID is empty.
	StampEvent(ctx context.Context, prospectID, draftID string, event model.DeliveryEventType, at time.Time) error
}

type SentEmailRepository struct {
	DB *sql.DB
}

// Create inserts a new sent-email record
func (r *SentEmailRepository) Create(ctx context.Context, s *model.SentEmail) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = "sent"
	}
	query := `
        INSERT INTO email_campaigns (id, prospect_id, campaign_id, email_draft_id, message_id, subject, body, status, sent_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := r.DB.ExecContext(ctx, query,
		s.ID, s.ProspectID, s.CampaignID, s.DraftID, s.MessageID, s.Subject, s.Body, s.Status, s.SentAt,
	)
	return translate(err)
}

func (r *SentEmailRepository) CountForCampaignSince(ctx context.Context, campaignID string, since time.Time) (int, error) {
	query := `
        SELECT COUNT(*)
        FROM email_campaigns e
        JOIN prospects p ON p.id = e.prospect_id
        WHERE p.campaign_id = $1 AND e.sent_at >= $2
    `
	var n int
	err := r.DB.QueryRowContext(ctx, query, campaignID, since).Scan(&n)
	return n, translate(err)
}

func (r *SentEmailRepository) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_campaigns WHERE sent_at >= $1`, since).Scan(&n)
	return n, translate(err)
}

func (r *SentEmailRepository) LatestForProspect(ctx context.Context, prospectID string) (*model.SentEmail, error) {
	query := `
        SELECT id, prospect_id, campaign_id, email_draft_id, message_id, subject, body, status,
            sent_at, opened_at, clicked_at, bounced, replied_at
        FROM email_campaigns
        WHERE prospect_id=$1
        ORDER BY sent_at DESC
        LIMIT 1
    `
	var s model.SentEmail
	err := r.DB.QueryRowContext(ctx, query, prospectID).Scan(
		&s.ID, &s.ProspectID, &s.CampaignID, &s.DraftID, &s.MessageID, &s.Subject, &s.Body, &s.Status,
		&s.SentAt, &s.OpenedAt, &s.ClickedAt, &s.Bounced, &s.RepliedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, translate(err)
	}
	return &s, nil
}

func (r *SentEmailRepository) StampEvent(ctx context.Context, prospectID, draftID string, event model.DeliveryEventType, at time.Time) error {
	args := []any{prospectID, draftID}
	var set string
	switch event {
	case model.EventOpened:
		set, args = `opened_at = COALESCE(opened_at, $3)`, append(args, at)
	case model.EventClicked:
		set, args = `clicked_at = COALESCE(clicked_at, $3)`, append(args, at)
	case model.EventReplied:
		set, args = `replied_at = COALESCE(replied_at, $3)`, append(args, at)
	case model.EventBounced:
		set = `bounced = true, status = 'bounced'`
	default:
		return nil
	}
	query := `UPDATE email_campaigns SET ` + set + `
        WHERE id = (
            SELECT id FROM email_campaigns
            WHERE prospect_id = $1 AND ($2 = '' OR email_draft_id::text = $2)
            ORDER BY sent_at DESC
            LIMIT 1
        )`
	_, err := r.DB.ExecContext(ctx, query, args...)
	return translate(err)
}

var _ SentEmailRepositoryInterface = (*SentEmailRepository)(nil)
