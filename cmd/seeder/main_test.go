package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/repository/memory"
)

const sample = `
campaigns:
  - name: Fintech CTOs
    created_by: user-1
    status: active
    targeting:
      titles: [CTO, VP Engineering]
      industries: [fintech]
      size_min: 50
      size_max: 500
      exclude_companies: [Competitor Inc]
    min_ai_score: 75
    email_daily_limit: 5
    prospects:
      - name: Ada Lovelace
        company: Acme
        email: ADA@acme.io
        ai_score: 88
  - name: Draft idea
    enable_followups: false
`

func TestParseAndSeed(t *testing.T) {
	f, err := parseSeed(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, f.Campaigns, 2)

	db := memory.New()
	store := db.Store()
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	campaigns, prospects, err := seed(context.Background(), store, f, now)
	require.NoError(t, err)
	assert.Equal(t, 2, campaigns)
	assert.Equal(t, 1, prospects)

	due, err := store.Campaigns.ListDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	c := due[0]
	assert.Equal(t, "Fintech CTOs", c.Name)
	assert.Equal(t, "user-1", c.OwnerID)
	assert.Equal(t, []string{"Competitor Inc"}, c.Targeting.ExcludeCompanies)
	assert.Equal(t, 75, c.MinAIScore)
	assert.Equal(t, 5, c.EmailDailyLimit)
	assert.True(t, c.EnableFollowups)
	assert.Equal(t, []int{3, 7, 14}, c.FollowupDays)

	ps, err := store.Prospects.ListByCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "ada@acme.io", ps[0].Email)
	assert.Equal(t, model.SourceManual, ps[0].Source)
	assert.Equal(t, 88, ps[0].Score())
}

func TestParseSeed_Rejects(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown field":  "campaigns:\n  - name: x\n    colour: red\n",
		"missing name":   "campaigns:\n  - status: active\n",
		"unknown status": "campaigns:\n  - name: x\n    status: running\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseSeed(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}
