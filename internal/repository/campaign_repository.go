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

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	// ListDue returns active campaigns whose schedule_start is unset or not
	// after now, unset first, then ascending.
	ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error)
	UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error

	// Counter and schedule updates. Counters only grow.
	RecordHunt(ctx context.Context, id string, added int, lastRunAt, scheduleStart time.Time) error
	AddContacted(ctx context.Context, id string, n int, lastRunAt time.Time) error
	SetScheduleStart(ctx context.Context, id string, at time.Time) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, created_by, name, status,
        target_titles, target_industries, target_locations, size_min, size_max, keywords, exclude_companies,
        daily_prospect_limit, min_ai_score, min_draft_score, email_daily_limit,
        send_weekends, enable_followups, followup_days, max_followups,
        found_count, contacted_count, replied_count, booked_count,
        last_run_at, schedule_start, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var days []int64
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Status,
		pq.Array(&c.Targeting.Titles), pq.Array(&c.Targeting.Industries), pq.Array(&c.Targeting.Locations),
		&c.Targeting.SizeMin, &c.Targeting.SizeMax,
		pq.Array(&c.Targeting.Keywords), pq.Array(&c.Targeting.ExcludeCompanies),
		&c.DailyProspectLimit, &c.MinAIScore, &c.MinDraftScore, &c.EmailDailyLimit,
		&c.SendWeekends, &c.EnableFollowups, pq.Array(&days), &c.MaxFollowups,
		&c.FoundCount, &c.ContactedCount, &c.RepliedCount, &c.BookedCount,
		&c.LastRunAt, &c.ScheduleStart, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.FollowupDays = toInts(days)
	return &c, nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	query := `
        INSERT INTO campaigns (id, created_by, name, status,
            target_titles, target_industries, target_locations, size_min, size_max, keywords, exclude_companies,
            daily_prospect_limit, min_ai_score, min_draft_score, email_daily_limit,
            send_weekends, enable_followups, followup_days, max_followups, schedule_start, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
    `
	t := c.Targeting
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.OwnerID, c.Name, c.Status,
		pq.Array(t.Titles), pq.Array(t.Industries), pq.Array(t.Locations), t.SizeMin, t.SizeMax,
		pq.Array(t.Keywords), pq.Array(t.ExcludeCompanies),
		c.DailyProspectLimit, c.MinAIScore, c.MinDraftScore, c.EmailDailyLimit,
		c.SendWeekends, c.EnableFollowups, pq.Array(toInt64s(c.FollowupDays)), c.MaxFollowups,
		c.ScheduleStart, c.CreatedAt,
	)
	return translate(err)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
        WHERE status = 'active' AND (schedule_start IS NULL OR schedule_start <= $1)
        ORDER BY schedule_start ASC NULLS FIRST, created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, now)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// exec runs an UPDATE against one campaign and reports a miss as not-found.
func (r *CampaignRepository) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	return r.exec(ctx, id, `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
}

func (r *CampaignRepository) RecordHunt(ctx context.Context, id string, added int, lastRunAt, scheduleStart time.Time) error {
	query := `
        UPDATE campaigns
        SET found_count = found_count + $1, last_run_at=$2, schedule_start=$3, updated_at=NOW()
        WHERE id=$4
    `
	return r.exec(ctx, id, query, added, lastRunAt, scheduleStart, id)
}

func (r *CampaignRepository) AddContacted(ctx context.Context, id string, n int, lastRunAt time.Time) error {
	query := `UPDATE campaigns SET contacted_count = contacted_count + $1, last_run_at=$2, updated_at=NOW() WHERE id=$3`
	return r.exec(ctx, id, query, n, lastRunAt, id)
}

func (r *CampaignRepository) SetScheduleStart(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, id, `UPDATE campaigns SET schedule_start=$1, updated_at=NOW() WHERE id=$2`, at, id)
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
