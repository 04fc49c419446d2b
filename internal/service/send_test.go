package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/lifecycle"
	"github.com/unclebandit/leadhunter-backend/internal/mailer"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/service"
)

func outcomes(details []service.ProspectOutcome) map[string]string {
	out := make(map[string]string, len(details))
	for _, d := range details {
		out[d.ProspectID] = d.Status
	}
	return out
}

func TestSend_HighestScoresWithinDailyLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.campaign(t, func(c *model.Campaign) { c.EmailDailyLimit = 2 })
	ada := e.readyProspect(t, c, "Ada", 90, nil)
	bob := e.readyProspect(t, c, "Bob", 80, nil)
	cyd := e.readyProspect(t, c, "Cyd", 95, nil)

	res, err := e.send.Run(ctx, c.ID, service.Caller{UserID: owner})
	require.NoError(t, err)

	assert.Equal(t, 2, res.EmailsSent)
	assert.Equal(t, 0, res.EmailsFailed)
	assert.Equal(t, 0, res.RemainingDailyLimit)
	assert.Equal(t, time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC), res.NextEligibleSend)
	assert.Equal(t, []string{emailFor("Cyd"), emailFor("Ada")}, e.mail.recipients())

	for _, p := range []*model.Prospect{ada, cyd} {
		got := e.prospect(t, p.ID)
		assert.Equal(t, model.ProspectContacted, got.Status)
		require.NotNil(t, got.ContactedAt)
		assert.Equal(t, wed, *got.ContactedAt)
		require.NotNil(t, got.NextFollowupDate)
		assert.Equal(t, wed.Add(72*time.Hour), *got.NextFollowupDate)

		pending, err := e.store.Drafts.LatestPending(ctx, p.ID)
		require.NoError(t, err)
		assert.Nil(t, pending)
	}
	assert.Equal(t, model.ProspectEmailReady, e.prospect(t, bob.ID).Status)

	msg := e.mail.sent[0]
	assert.Equal(t, cyd.ID, msg.Tags[mailer.TagProspectID])
	assert.NotEmpty(t, msg.Tags[mailer.TagDraftID])
	assert.Equal(t, "Hello Cyd", msg.Subject)
	assert.Equal(t, "sam@leadhunter.io", msg.FromEmail)
	assert.Contains(t, msg.Text, "Initial email for Cyd")
	assert.Contains(t, msg.Text, "https://cal.example/sam")

	got := e.reload(t, c)
	assert.Equal(t, 2, got.ContactedCount)

	runs := e.runs(t, c)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunEmail, runs[0].RunType)
	assert.Equal(t, model.RunSuccess, runs[0].Status)
	assert.Equal(t, "emails_sent=2; emails_failed=0; remaining_daily_limit=0", runs[0].ResultSummary)

	sent := e.db.Sent()
	require.Len(t, sent, 2)
	for _, s := range sent {
		require.NotNil(t, s.CampaignID)
		assert.Equal(t, c.ID, *s.CampaignID)
		assert.NotEmpty(t, s.MessageID)
	}
}

func TestSend_CountsEarlierSendsToday(t *testing.T) {
	e := newEnv(t)
	c := e.campaign(t, func(c *model.Campaign) { c.EmailDailyLimit = 2 })
	e.contactedProspect(t, c, "Old", 80, 0, time.Hour, nil)
	e.readyProspect(t, c, "Ada", 90, nil)
	e.readyProspect(t, c, "Bob", 85, nil)

	res, err := e.send.Run(context.Background(), c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailsSent)
	assert.Equal(t, 0, res.RemainingDailyLimit)
	assert.Equal(t, []string{emailFor("Ada")}, e.mail.recipients())
}

func TestSend_DailyLimitReachedWritesNoRun(t *testing.T) {
	e := newEnv(t)
	c := e.campaign(t, func(c *model.Campaign) { c.EmailDailyLimit = 1 })
	e.contactedProspect(t, c, "Old", 80, 0, time.Hour, nil)
	e.readyProspect(t, c, "Ada", 90, nil)

	res, err := e.send.Run(context.Background(), c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Equal(t, "Daily limit reached", res.Message)
	assert.Equal(t, time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC), res.NextEligibleSend)
	assert.Empty(t, e.mail.recipients())
	assert.Empty(t, e.runs(t, c))
}

func TestSend_WeekendDefersToMonday(t *testing.T) {
	e := newEnv(t)
	e.clk.Set(time.Date(2025, 1, 18, 11, 0, 0, 0, time.UTC))
	c := e.campaign(t, nil)
	e.readyProspect(t, c, "Ada", 90, nil)

	res, err := e.send.Run(context.Background(), c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Equal(t, 10, res.RemainingDailyLimit)
	assert.Equal(t, time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC), res.NextEligibleSend)
	assert.Empty(t, e.mail.recipients())
	assert.Empty(t, e.runs(t, c))
}

func TestSend_WeekendAllowedWhenEnabled(t *testing.T) {
	e := newEnv(t)
	e.clk.Set(time.Date(2025, 1, 18, 11, 0, 0, 0, time.UTC))
	c := e.campaign(t, func(c *model.Campaign) { c.SendWeekends = true })
	e.readyProspect(t, c, "Ada", 90, nil)

	res, err := e.send.Run(context.Background(), c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailsSent)
	assert.Equal(t, time.Date(2025, 1, 19, 9, 0, 0, 0, time.UTC), res.NextEligibleSend)
}

func TestSend_MissingEmailOrDraftCountsAsFailed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.campaign(t, nil)
	noEmail := e.readyProspect(t, c, "Ada", 90, func(p *model.Prospect) { p.Email = "" })

	cid := c.ID
	score := 85
	noDraft := &model.Prospect{CampaignID: &cid, Name: "Bob", Company: "Bolt", Email: "bob@bolt.io", AIScore: &score, Status: model.ProspectEmailReady}
	require.NoError(t, e.store.Prospects.Create(ctx, noDraft))

	res, err := e.send.Run(ctx, c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Equal(t, 2, res.EmailsFailed)

	got := outcomes(res.Details)
	assert.Equal(t, lifecycle.OutcomeNoEmail, got[noEmail.ID])
	assert.Equal(t, lifecycle.OutcomeNoDraft, got[noDraft.ID])
	assert.Empty(t, e.mail.recipients())
}

func TestSend_RecentlyContactedIsThrottled(t *testing.T) {
	e := newEnv(t)
	c := e.campaign(t, nil)
	e.contactedProspect(t, c, "Old", 99, 0, 24*time.Hour, nil)
	recent := e.ago(time.Hour)
	touched := e.readyProspect(t, c, "Ada", 90, func(p *model.Prospect) { p.LastEmailSent = &recent })

	res, err := e.send.Run(context.Background(), c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Equal(t, 0, res.EmailsFailed)
	require.Len(t, res.Details, 1)
	assert.Equal(t, lifecycle.OutcomeThrottled, res.Details[0].Status)
	assert.Equal(t, touched.ID, res.Details[0].ProspectID)
	assert.Empty(t, e.mail.recipients())
}

func TestSend_RepliedOrBouncedNeverEmailed(t *testing.T) {
	e := newEnv(t)
	c := e.campaign(t, nil)
	replied := e.readyProspect(t, c, "Ada", 90, func(p *model.Prospect) { p.Replied = true })
	bounced := e.readyProspect(t, c, "Bob", 85, func(p *model.Prospect) { p.Bounced = true })

	res, err := e.send.Run(context.Background(), c.ID, service.System)
	require.NoError(t, err)
	got := outcomes(res.Details)
	assert.Equal(t, lifecycle.OutcomeReplied, got[replied.ID])
	assert.Equal(t, lifecycle.OutcomeBounced, got[bounced.ID])
	assert.Empty(t, e.mail.recipients())
}

func TestSend_PlatformCapStopsBatch(t *testing.T) {
	e := newEnv(t)
	e.disp.Policy.PlatformDailyLimit = 1
	c := e.campaign(t, nil)
	e.readyProspect(t, c, "Ada", 90, nil)
	second := e.readyProspect(t, c, "Bob", 85, nil)
	e.readyProspect(t, c, "Cyd", 80, nil)

	res, err := e.send.Run(context.Background(), c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailsSent)
	assert.Equal(t, model.RunPartial, res.Status)
	require.Len(t, res.Details, 2)
	assert.Equal(t, second.ID, res.Details[1].ProspectID)
	assert.Equal(t, lifecycle.OutcomePlatformLimit, res.Details[1].Status)

	runs := e.runs(t, c)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunPartial, runs[0].Status)
}

func TestSend_ProviderRejectionLeavesProspectReady(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.campaign(t, nil)
	ada := e.readyProspect(t, c, "Ada", 90, nil)
	e.readyProspect(t, c, "Bob", 85, nil)
	e.mail.fail[emailFor("Ada")] = true

	res, err := e.send.Run(ctx, c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailsSent)
	assert.Equal(t, 1, res.EmailsFailed)
	assert.Equal(t, lifecycle.OutcomeFailed, outcomes(res.Details)[ada.ID])

	got := e.prospect(t, ada.ID)
	assert.Equal(t, model.ProspectEmailReady, got.Status)
	assert.Nil(t, got.ContactedAt)
	pending, err := e.store.Drafts.LatestPending(ctx, ada.ID)
	require.NoError(t, err)
	assert.NotNil(t, pending)
	assert.Equal(t, 1, e.reload(t, c).ContactedCount)

	// the failed attempt does not keep the prospect reserved
	e.mail.fail[emailFor("Ada")] = false
	res, err = e.send.Run(ctx, c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailsSent)
	assert.Equal(t, model.ProspectContacted, e.prospect(t, ada.ID).Status)
}

func TestSend_OverlappingRunsEmailOnce(t *testing.T) {
	e := newEnv(t)
	c := e.campaign(t, nil)
	ada := e.readyProspect(t, c, "Ada", 90, nil)
	e.mail.delay = 50 * time.Millisecond

	results := make([]*service.SendResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.send.Run(context.Background(), c.ID, service.System)
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{emailFor("Ada")}, e.mail.recipients())
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, 1, results[0].EmailsSent+results[1].EmailsSent)
	assert.Equal(t, 1, e.reload(t, c).ContactedCount)
	assert.Equal(t, model.ProspectContacted, e.prospect(t, ada.ID).Status)
}

func TestSend_ClaimedProspectIsSkipped(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.campaign(t, nil)
	ada := e.readyProspect(t, c, "Ada", 90, nil)

	claimed, err := e.store.Prospects.ClaimInitialSend(ctx, ada.ID, e.clk.Now(), e.ago(service.SendClaimTTL))
	require.NoError(t, err)
	require.True(t, claimed)

	res, err := e.send.Run(ctx, c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Equal(t, lifecycle.OutcomeConflict, outcomes(res.Details)[ada.ID])
	assert.Empty(t, e.mail.recipients())
	assert.Equal(t, 0, e.reload(t, c).ContactedCount)

	// an abandoned claim expires
	e.clk.Advance(service.SendClaimTTL + time.Minute)
	res, err = e.send.Run(ctx, c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailsSent)
}

func TestSend_NotConfigured(t *testing.T) {
	e := newEnv(t)
	e.disp.Mail = nil
	c := e.campaign(t, nil)
	e.readyProspect(t, c, "Ada", 90, nil)

	res, err := e.send.Run(context.Background(), c.ID, service.System)
	assert.ErrorIs(t, err, appErrors.ErrNotConfigured)
	require.NotNil(t, res)
	assert.Equal(t, model.RunError, res.Status)

	runs := e.runs(t, c)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunError, runs[0].Status)
	assert.Equal(t, "mail sender not configured", runs[0].ResultSummary)
}

func TestSend_RequiresActiveCampaign(t *testing.T) {
	e := newEnv(t)
	c := e.campaign(t, func(c *model.Campaign) { c.Status = model.CampaignDraft })

	_, err := e.send.Run(context.Background(), c.ID, service.System)
	assert.ErrorIs(t, err, appErrors.ErrNotRunnable)
	assert.Empty(t, e.runs(t, c))
}

func TestSend_SecondRunSendsNothingNew(t *testing.T) {
	e := newEnv(t)
	c := e.campaign(t, nil)
	e.readyProspect(t, c, "Ada", 90, nil)

	_, err := e.send.Run(context.Background(), c.ID, service.System)
	require.NoError(t, err)
	e.clk.Advance(time.Hour)
	res, err := e.send.Run(context.Background(), c.ID, service.System)
	require.NoError(t, err)
	assert.Equal(t, 0, res.EmailsSent)
	assert.Len(t, e.mail.recipients(), 1)
}
