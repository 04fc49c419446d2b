package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/model"
)

// ProspectRepositoryInterface defines the prospect queries used by the stages.
// Status-changing writes are conditional: when the row no longer satisfies
// the precondition they return appErrors.ErrConflict (or false) instead of
// overwriting it.
type ProspectRepositoryInterface interface {
	Create(ctx context.Context, p *model.Prospect) error
	GetByID(ctx context.Context, id string) (*model.Prospect, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*model.Prospect, error)

	// ListReadyToSend returns email_ready prospects never contacted, highest
	// score first (unscored last).
	ListReadyToSend(ctx context.Context, campaignID string, limit int) ([]*model.Prospect, error)
	CountReadyToSend(ctx context.Context, campaignID string) (int, error)

	// ListDueFollowups evaluates follow-up eligibility in the store. Stores
	// that cannot answer it return appErrors.ErrUnsupportedQuery.
	ListDueFollowups(ctx context.Context, campaignID string, now time.Time, maxFollowups, limit int) ([]*model.Prospect, error)
	// ListAwaitingReply is the broad contacted, not replied, not booked set.
	ListAwaitingReply(ctx context.Context, campaignID string) ([]*model.Prospect, error)

	MarkEmailReady(ctx context.Context, id string) error

	// ClaimInitialSend and ClaimFollowup reserve a prospect for one delivery
	// before the email leaves. They match only while the row is still in the
	// state the caller read and holds no claim taken after staleBefore.
	// MarkContacted, RecordFollowup and ReleaseSend clear the claim.
	ClaimInitialSend(ctx context.Context, id string, now, staleBefore time.Time) (bool, error)
	ClaimFollowup(ctx context.Context, id string, followupCount int, now, staleBefore time.Time) (bool, error)
	ReleaseSend(ctx context.Context, id string) error

	MarkContacted(ctx context.Context, p *model.Prospect) error
	RecordFollowup(ctx context.Context, p *model.Prospect, prevCount int) error

	// MarkReplied and MarkMeetingBooked flag the prospect and bump the
	// campaign's replied/booked counter in the same write, so a retried event
	// neither double counts nor loses the increment.
	MarkReplied(ctx context.Context, id string) (bool, error)
	MarkBounced(ctx context.Context, id string) error
	MarkOpened(ctx context.Context, id string) error
	MarkClicked(ctx context.Context, id string) error
	MarkMeetingBooked(ctx context.Context, id string) (bool, error)
	Archive(ctx context.Context, id string) (bool, error)
}

// ProspectRepository is the postgres implementation
type ProspectRepository struct {
	DB *sql.DB
}

const prospectColumns = `id, campaign_id, user_id, name, title, company, industry, company_size,
        email, linkedin_url, location, ai_score, fit_reasoning, status,
        replied, bounced, meeting_booked, email_opened, email_clicked,
        contacted_at, last_email_sent, next_followup_date, followup_count,
        source, created_at, updated_at`

func scanProspect(row rowScanner) (*model.Prospect, error) {
	var p model.Prospect
	err := row.Scan(
		&p.ID, &p.CampaignID, &p.OwnerID, &p.Name, &p.Title, &p.Company, &p.Industry, &p.CompanySize,
		&p.Email, &p.LinkedInURL, &p.Location, &p.AIScore, &p.FitReasoning, &p.Status,
		&p.Replied, &p.Bounced, &p.MeetingBooked, &p.EmailOpened, &p.EmailClicked,
		&p.ContactedAt, &p.LastEmailSent, &p.NextFollowupDate, &p.FollowupCount,
		&p.Source, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProspectRepository) query(ctx context.Context, query string, args ...any) ([]*model.Prospect, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	prospects := []*model.Prospect{}
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, err
		}
		prospects = append(prospects, p)
	}
	return prospects, rows.Err()
}

// Create inserts a prospect. A unique-index hit on (campaign, email) or
// (campaign, name, company) returns appErrors.ErrDuplicate.
func (r *ProspectRepository) Create(ctx context.Context, p *model.Prospect) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.ProspectDiscovered
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO prospects (id, campaign_id, user_id, name, title, company, industry, company_size,
            email, linkedin_url, location, ai_score, fit_reasoning, status, source, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `
	_, err := r.DB.ExecContext(ctx, query,
		p.ID, p.CampaignID, p.OwnerID, p.Name, p.Title, p.Company, p.Industry, p.CompanySize,
		p.Email, p.LinkedInURL, p.Location, p.AIScore, p.FitReasoning, p.Status, p.Source, p.CreatedAt,
	)
	return translate(err)
}

func (r *ProspectRepository) GetByID(ctx context.Context, id string) (*model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects WHERE id=$1`
	p, err := scanProspect(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewProspectNotFound(id)
		}
		return nil, err
	}
	return p, nil
}

func (r *ProspectRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects WHERE campaign_id=$1 ORDER BY created_at ASC`
	return r.query(ctx, query, campaignID)
}

func (r *ProspectRepository) ListReadyToSend(ctx context.Context, campaignID string, limit int) ([]*model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects
        WHERE campaign_id=$1 AND status='email_ready' AND contacted_at IS NULL
        ORDER BY ai_score DESC NULLS LAST, created_at ASC
        LIMIT $2`
	return r.query(ctx, query, campaignID, limit)
}

func (r *ProspectRepository) CountReadyToSend(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM prospects WHERE campaign_id=$1 AND status='email_ready' AND contacted_at IS NULL`,
		campaignID).Scan(&n)
	return n, translate(err)
}

func (r *ProspectRepository) ListDueFollowups(ctx context.Context, campaignID string, now time.Time, maxFollowups, limit int) ([]*model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects
        WHERE campaign_id=$1 AND status='contacted'
          AND replied=false AND bounced=false AND meeting_booked=false
          AND followup_count < $2
          AND next_followup_date IS NOT NULL AND next_followup_date <= $3
        ORDER BY ai_score DESC NULLS LAST, created_at ASC
        LIMIT $4`
	return r.query(ctx, query, campaignID, maxFollowups, now, limit)
}

func (r *ProspectRepository) ListAwaitingReply(ctx context.Context, campaignID string) ([]*model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects
        WHERE campaign_id=$1 AND status='contacted'
          AND replied=false AND bounced=false AND meeting_booked=false
        ORDER BY ai_score DESC NULLS LAST, created_at ASC`
	return r.query(ctx, query, campaignID)
}

// conditional runs a guarded UPDATE and reports whether a row matched.
func (r *ProspectRepository) conditional(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ProspectRepository) MarkEmailReady(ctx context.Context, id string) error {
	ok, err := r.conditional(ctx, `
        UPDATE prospects SET status='email_ready', updated_at=NOW()
        WHERE id=$1 AND status IN ('discovered', 'researched') AND replied=false AND bounced=false`, id)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.ErrConflict
	}
	return nil
}

func (r *ProspectRepository) ClaimInitialSend(ctx context.Context, id string, now, staleBefore time.Time) (bool, error) {
	return r.conditional(ctx, `
        UPDATE prospects SET send_claimed_at=$2
        WHERE id=$1 AND status='email_ready' AND contacted_at IS NULL
          AND replied=false AND bounced=false
          AND (send_claimed_at IS NULL OR send_claimed_at < $3)`, id, now, staleBefore)
}

func (r *ProspectRepository) ClaimFollowup(ctx context.Context, id string, followupCount int, now, staleBefore time.Time) (bool, error) {
	return r.conditional(ctx, `
        UPDATE prospects SET send_claimed_at=$3
        WHERE id=$1 AND followup_count=$2 AND status='contacted'
          AND replied=false AND bounced=false AND meeting_booked=false
          AND (send_claimed_at IS NULL OR send_claimed_at < $4)`, id, followupCount, now, staleBefore)
}

func (r *ProspectRepository) ReleaseSend(ctx context.Context, id string) error {
	_, err := r.conditional(ctx, `UPDATE prospects SET send_claimed_at=NULL WHERE id=$1`, id)
	return err
}

// MarkContacted persists a first send. It only matches a row that has never
// been contacted, so two racing senders cannot both record the same prospect.
func (r *ProspectRepository) MarkContacted(ctx context.Context, p *model.Prospect) error {
	ok, err := r.conditional(ctx, `
        UPDATE prospects
        SET status=$1, contacted_at=$2, last_email_sent=$3, next_followup_date=$4,
            send_claimed_at=NULL, updated_at=NOW()
        WHERE id=$5 AND contacted_at IS NULL AND replied=false AND bounced=false AND status <> 'closed_lost'`,
		p.Status, p.ContactedAt, p.LastEmailSent, p.NextFollowupDate, p.ID)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.ErrConflict
	}
	return nil
}

// RecordFollowup persists a follow-up send, guarded on the counter value the
// caller read.
func (r *ProspectRepository) RecordFollowup(ctx context.Context, p *model.Prospect, prevCount int) error {
	ok, err := r.conditional(ctx, `
        UPDATE prospects
        SET status=$1, followup_count=$2, last_email_sent=$3, next_followup_date=$4,
            send_claimed_at=NULL, updated_at=NOW()
        WHERE id=$5 AND followup_count=$6 AND status='contacted'
          AND replied=false AND bounced=false AND meeting_booked=false`,
		p.Status, p.FollowupCount, p.LastEmailSent, p.NextFollowupDate, p.ID, prevCount)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.ErrConflict
	}
	return nil
}

// counted runs a data-modifying CTE named marked that returns the campaign_id
// of the flagged row, bumps counter on that campaign, and reports whether a
// row was flagged.
func (r *ProspectRepository) counted(ctx context.Context, mark, counter, id string) (bool, error) {
	query := `WITH marked AS (` + mark + ` RETURNING campaign_id),
        bumped AS (
            UPDATE campaigns SET ` + counter + ` = ` + counter + ` + 1, updated_at=NOW()
            WHERE id IN (SELECT campaign_id FROM marked WHERE campaign_id IS NOT NULL)
        )
        SELECT COUNT(*) FROM marked`
	var n int
	if err := r.DB.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (r *ProspectRepository) MarkReplied(ctx context.Context, id string) (bool, error) {
	return r.counted(ctx, `
        UPDATE prospects
        SET replied=true, next_followup_date=NULL,
            status = CASE WHEN status IN ('closed_lost', 'meeting_booked') THEN status ELSE 'replied' END,
            updated_at=NOW()
        WHERE id=$1 AND replied=false`, "replied_count", id)
}

func (r *ProspectRepository) MarkBounced(ctx context.Context, id string) error {
	_, err := r.conditional(ctx, `UPDATE prospects SET bounced=true, next_followup_date=NULL, updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *ProspectRepository) MarkOpened(ctx context.Context, id string) error {
	_, err := r.conditional(ctx, `UPDATE prospects SET email_opened=true, updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *ProspectRepository) MarkClicked(ctx context.Context, id string) error {
	_, err := r.conditional(ctx, `UPDATE prospects SET email_clicked=true, updated_at=NOW() WHERE id=$1`, id)
	return err
}

func (r *ProspectRepository) MarkMeetingBooked(ctx context.Context, id string) (bool, error) {
	return r.counted(ctx, `
        UPDATE prospects
        SET meeting_booked=true, status='meeting_booked', next_followup_date=NULL, updated_at=NOW()
        WHERE id=$1 AND meeting_booked=false AND status <> 'closed_lost'`, "booked_count", id)
}

func (r *ProspectRepository) Archive(ctx context.Context, id string) (bool, error) {
	return r.conditional(ctx, `
        UPDATE prospects SET status='closed_lost', next_followup_date=NULL, updated_at=NOW()
        WHERE id=$1 AND status <> 'closed_lost'`, id)
}

var _ ProspectRepositoryInterface = (*ProspectRepository)(nil)
