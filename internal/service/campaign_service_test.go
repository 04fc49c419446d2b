package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/service"
)

func TestCampaignService_Stats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.campaign(t, nil)
	e.readyProspect(t, c, "Ada", 90, nil)
	e.readyProspect(t, c, "Bob", 80, nil)
	e.contactedProspect(t, c, "Cyd", 85, 0, 4*day, nil)
	e.contactedProspect(t, c, "Dee", 75, 0, 2*time.Hour, nil)

	stats, err := e.campaigns.Stats(ctx, c.ID, service.Caller{UserID: owner})
	require.NoError(t, err)
	assert.Equal(t, c.ID, stats.CampaignID)
	assert.Equal(t, 2, stats.ReadyToSend)
	assert.Equal(t, 1, stats.FollowupsDue)
	assert.Equal(t, 1, stats.SentToday)
	assert.Equal(t, 10, stats.DailyLimit)

	_, err = e.campaigns.Stats(ctx, c.ID, service.Caller{UserID: "someone-else"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCampaignService_PauseAndActivate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.campaign(t, nil)
	caller := service.Caller{UserID: owner}

	require.NoError(t, e.campaigns.Pause(ctx, c.ID, caller))
	assert.Equal(t, model.CampaignPaused, e.reload(t, c).Status)
	assert.ErrorIs(t, e.campaigns.Pause(ctx, c.ID, caller), appErrors.ErrNotRunnable)

	_, err := e.send.Run(ctx, c.ID, caller)
	assert.ErrorIs(t, err, appErrors.ErrNotRunnable)

	require.NoError(t, e.campaigns.Activate(ctx, c.ID, caller))
	require.NoError(t, e.campaigns.Activate(ctx, c.ID, caller))
	assert.Equal(t, model.CampaignActive, e.reload(t, c).Status)
}

func TestCampaignService_ArchiveProspect(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.campaign(t, nil)
	p := e.contactedProspect(t, c, "Ada", 90, 0, 4*day, nil)

	require.NoError(t, e.campaigns.ArchiveProspect(ctx, p.ID, service.System))
	got := e.prospect(t, p.ID)
	assert.Equal(t, model.ProspectArchived, got.Status)
	assert.Nil(t, got.NextFollowupDate)
	assert.ErrorIs(t, e.campaigns.ArchiveProspect(ctx, p.ID, service.System), appErrors.ErrArchived)

	res, err := e.followup.Run(ctx, c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 0, res.FollowupsSent)
}

func TestCampaignService_MarkMeetingBookedCountsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.campaign(t, nil)
	p := e.contactedProspect(t, c, "Ada", 90, 0, 4*day, nil)

	require.NoError(t, e.campaigns.MarkMeetingBooked(ctx, p.ID, service.Caller{UserID: owner}))
	require.NoError(t, e.campaigns.MarkMeetingBooked(ctx, p.ID, service.Caller{UserID: owner}))
	assert.Equal(t, 1, e.reload(t, c).BookedCount)
	assert.Equal(t, model.ProspectMeetingBooked, e.prospect(t, p.ID).Status)

	err := e.campaigns.MarkMeetingBooked(ctx, p.ID, service.Caller{UserID: "intruder"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCampaignService_RunsNewestFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.campaign(t, nil)
	for i := 0; i < 3; i++ {
		e.ledger.Record(ctx, c.ID, model.RunHunt, model.RunSuccess, "prospects_found=0")
		e.clk.Advance(time.Minute)
	}

	runs, err := e.campaigns.Runs(ctx, c.ID, service.System, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].CreatedAt.After(runs[1].CreatedAt))

	runs, err = e.campaigns.Runs(ctx, c.ID, service.System, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestParseSummary(t *testing.T) {
	var s service.Summary
	s.Int("emails_sent", 2)
	s.Str("search", "unavailable")
	assert.Equal(t, "emails_sent=2; search=unavailable", s.String())
	assert.Equal(t, map[string]string{"emails_sent": "2", "search": "unavailable"}, service.ParseSummary(s.String()))

	msg := "persist prospect Ada: connection refused"
	assert.Equal(t, map[string]string{"message": msg}, service.ParseSummary(msg))
}
