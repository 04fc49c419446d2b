package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/model"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var prospectCols = []string{
	"id", "campaign_id", "user_id", "name", "title", "company", "industry", "company_size",
	"email", "linkedin_url", "location", "ai_score", "fit_reasoning", "status",
	"replied", "bounced", "meeting_booked", "email_opened", "email_clicked",
	"contacted_at", "last_email_sent", "next_followup_date", "followup_count",
	"source", "created_at", "updated_at",
}

func TestProspectRepository_CreateDuplicate(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &ProspectRepository{DB: db}

	mock.ExpectExec("INSERT INTO prospects").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_prospects_campaign_email"})

	cid := "c1"
	err := repo.Create(context.Background(), &model.Prospect{CampaignID: &cid, Name: "Ada", Company: "Acme"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicate)
}

func TestProspectRepository_MarkContactedConflict(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &ProspectRepository{DB: db}

	mock.ExpectExec(`UPDATE prospects\s+SET status=\$1, contacted_at=\$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now()
	p := &model.Prospect{ID: "p1", Status: model.ProspectContacted, ContactedAt: &now, LastEmailSent: &now}
	assert.ErrorIs(t, repo.MarkContacted(context.Background(), p), appErrors.ErrConflict)
}

func TestProspectRepository_ClaimInitialSend(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &ProspectRepository{DB: db}

	now := time.Now()
	stale := now.Add(-15 * time.Minute)
	mock.ExpectExec(`UPDATE prospects SET send_claimed_at=\$2\s+WHERE id=\$1 AND status='email_ready' AND contacted_at IS NULL`).
		WithArgs("p1", now, stale).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE prospects SET send_claimed_at=\$2`).
		WithArgs("p1", now, stale).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.ClaimInitialSend(context.Background(), "p1", now, stale)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ClaimInitialSend(context.Background(), "p1", now, stale)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProspectRepository_ClaimFollowupGuardsCount(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &ProspectRepository{DB: db}

	now := time.Now()
	mock.ExpectExec(`UPDATE prospects SET send_claimed_at=\$3\s+WHERE id=\$1 AND followup_count=\$2`).
		WithArgs("p1", 2, now, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.ClaimFollowup(context.Background(), "p1", 2, now, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProspectRepository_MarkRepliedBumpsCounterInSameStatement(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &ProspectRepository{DB: db}

	mock.ExpectQuery(`WITH marked AS \(\s*UPDATE prospects\s+SET replied=true.*replied_count = replied_count \+ 1.*SELECT COUNT\(\*\) FROM marked`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`WITH marked AS`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	changed, err := repo.MarkReplied(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.MarkReplied(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestProspectRepository_RecordFollowupGuardsCount(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &ProspectRepository{DB: db}

	now := time.Now()
	p := &model.Prospect{ID: "p1", Status: model.ProspectContacted, FollowupCount: 2, LastEmailSent: &now}

	mock.ExpectExec(`UPDATE prospects`).
		WithArgs(model.ProspectContacted, 2, sqlmock.AnyArg(), sqlmock.AnyArg(), "p1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordFollowup(context.Background(), p, 1))
}

func TestProspectRepository_DueFollowupsUnsupported(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &ProspectRepository{DB: db}

	mock.ExpectQuery("next_followup_date <=").
		WillReturnError(&pq.Error{Code: "42703", Message: `column "next_followup_date" does not exist`})

	_, err := repo.ListDueFollowups(context.Background(), "c1", time.Now(), 3, 10)
	assert.ErrorIs(t, err, appErrors.ErrUnsupportedQuery)
}

func TestProspectRepository_ListReadyToSend(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &ProspectRepository{DB: db}

	created := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(prospectCols).
		AddRow("p1", "c1", "u1", "Ada", "CTO", "Acme", "Software", "200", "ada@acme.io", "", "Berlin",
			90, "strong fit", "email_ready", false, false, false, false, false,
			nil, nil, nil, 0, "campaign:c1", created, nil)

	mock.ExpectQuery(`ORDER BY ai_score DESC NULLS LAST`).
		WithArgs("c1", 5).
		WillReturnRows(rows)

	got, err := repo.ListReadyToSend(context.Background(), "c1", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 90, got[0].Score())
	assert.Equal(t, "c1", *got[0].CampaignID)
	assert.Nil(t, got[0].ContactedAt)
}

func TestProspectRepository_GetByIDNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &ProspectRepository{DB: db}

	mock.ExpectQuery("FROM prospects WHERE id=").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCampaignRepository_GetByIDNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &CampaignRepository{DB: db}

	mock.ExpectQuery("FROM campaigns WHERE id=").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	var nf *appErrors.ErrCampaignNotFound
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.CampaignID)
}

func TestCampaignRepository_RecordHunt(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &CampaignRepository{DB: db}

	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	next := now.Add(24 * time.Hour)
	mock.ExpectExec(`SET found_count = found_count \+ \$1`).
		WithArgs(3, now, next, "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordHunt(context.Background(), "c1", 3, now, next))
}

func TestCampaignRepository_UpdateStatusMissing(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &CampaignRepository{DB: db}

	mock.ExpectExec("UPDATE campaigns SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "c9", model.CampaignPaused)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSentEmailRepository_CountForCampaignSince(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &SentEmailRepository{DB: db}

	midnight := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`JOIN prospects p ON p.id = e.prospect_id`).
		WithArgs("c1", midnight).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := repo.CountForCampaignSince(context.Background(), "c1", midnight)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSentEmailRepository_StampBounceTakesNoTimestamp(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &SentEmailRepository{DB: db}

	mock.ExpectExec(`SET bounced = true`).
		WithArgs("p1", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.StampEvent(context.Background(), "p1", "", model.EventBounced, time.Now()))
}

func TestDraftRepository_LatestPendingNone(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &DraftRepository{DB: db}

	mock.ExpectQuery("FROM email_drafts").WithArgs("p1").WillReturnError(sql.ErrNoRows)

	d, err := repo.LatestPending(context.Background(), "p1")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestRunRepository_ListByCampaign(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := &RunRepository{DB: db}

	at := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM campaign_runs").
		WithArgs("c1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "run_type", "status", "result_summary", "created_at"}).
			AddRow("r2", "c1", "email", "success", "emails_sent=2; emails_failed=0", at).
			AddRow("r1", "c1", "hunt", "partial", "prospects_found=0", at.Add(-time.Hour)))

	runs, err := repo.ListByCampaign(context.Background(), "c1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, model.RunEmail, runs[0].RunType)
	assert.Equal(t, model.RunPartial, runs[1].Status)
}
