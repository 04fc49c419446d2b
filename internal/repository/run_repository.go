package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/leadhunter-backend/internal/model"
)

// RunRepositoryInterface is the append-only stage ledger. There is no update
// or delete.
type RunRepositoryInterface interface {
	Create(ctx context.Context, run *model.CampaignRun) error
	ListByCampaign(ctx context.Context, campaignID string, limit int) ([]*model.CampaignRun, error)
}

type RunRepository struct {
	DB *sql.DB
}

func (r *RunRepository) Create(ctx context.Context, run *model.CampaignRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO campaign_runs (id, campaign_id, run_type, status, result_summary, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.DB.ExecContext(ctx, query, run.ID, run.CampaignID, run.RunType, run.Status, run.ResultSummary, run.CreatedAt)
	return translate(err)
}

// ListByCampaign returns the newest entries first.
func (r *RunRepository) ListByCampaign(ctx context.Context, campaignID string, limit int) ([]*model.CampaignRun, error) {
	query := `
        SELECT id, campaign_id, run_type, status, result_summary, created_at
        FROM campaign_runs
        WHERE campaign_id=$1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	runs := []*model.CampaignRun{}
	for rows.Next() {
		var run model.CampaignRun
		if err := rows.Scan(&run.ID, &run.CampaignID, &run.RunType, &run.Status, &run.ResultSummary, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

var _ RunRepositoryInterface = (*RunRepository)(nil)
