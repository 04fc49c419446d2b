package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/model"
)

type DraftRepositoryInterface interface {
	Create(ctx context.Context, d *model.EmailDraft) error
	// LatestPending returns the newest unsent draft, or nil when there is none.
	LatestPending(ctx context.Context, prospectID string) (*model.EmailDraft, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	// Discard deletes a draft that was never sent.
	Discard(ctx context.Context, id string) error
}

type DraftRepository struct {
	DB *sql.DB
}

func (r *DraftRepository) Create(ctx context.Context, d *model.EmailDraft) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = model.DraftPending
	}
	if d.Kind == "" {
		d.Kind = model.DraftInitial
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO email_drafts (id, prospect_id, kind, followup_number, subject_lines, body,
            personalization_score, confidence_score, reasoning, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `
	_, err := r.DB.ExecContext(ctx, query,
		d.ID, d.ProspectID, d.Kind, d.FollowupNumber, pq.Array(d.SubjectLines), d.Body,
		d.PersonalizationScore, d.ConfidenceScore, d.Reasoning, d.Status, d.CreatedAt,
	)
	return translate(err)
}

func (r *DraftRepository) LatestPending(ctx context.Context, prospectID string) (*model.EmailDraft, error) {
	query := `
        SELECT id, prospect_id, kind, followup_number, subject_lines, body,
            personalization_score, confidence_score, reasoning, status, created_at, sent_at
        FROM email_drafts
        WHERE prospect_id=$1 AND status='draft'
        ORDER BY created_at DESC
        LIMIT 1
    `
	var d model.EmailDraft
	err := r.DB.QueryRowContext(ctx, query, prospectID).Scan(
		&d.ID, &d.ProspectID, &d.Kind, &d.FollowupNumber, pq.Array(&d.SubjectLines), &d.Body,
		&d.PersonalizationScore, &d.ConfidenceScore, &d.Reasoning, &d.Status, &d.CreatedAt, &d.SentAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, translate(err)
	}
	return &d, nil
}

func (r *DraftRepository) Discard(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM email_drafts WHERE id=$1 AND status='draft'`, id)
	return translate(err)
}

func (r *DraftRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE email_drafts SET status='sent', sent_at=$1 WHERE id=$2 AND status='draft'`, at, id)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrConflict
	}
	return nil
}

var _ DraftRepositoryInterface = (*DraftRepository)(nil)
