package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/clock"
	"github.com/unclebandit/leadhunter-backend/internal/lock"
	"github.com/unclebandit/leadhunter-backend/internal/mailer"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/outreach"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
	"github.com/unclebandit/leadhunter-backend/internal/repository/memory"
	"github.com/unclebandit/leadhunter-backend/internal/scoring"
	"github.com/unclebandit/leadhunter-backend/internal/search"
	"github.com/unclebandit/leadhunter-backend/internal/service"
)

// Wednesday.
var wed = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

const owner = "owner-1"

type fakeSearch struct {
	candidates []search.Candidate
	err        error
	calls      int
}

func (f *fakeSearch) Search(ctx context.Context, c search.Criteria, pageSize int) ([]search.Candidate, error) {
	f.calls++
	for _, k := range c.Keywords {
		if k == "panic" {
			panic("search exploded")
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

type fakeScorer struct {
	scores map[string]int
}

func (f *fakeScorer) Score(ctx context.Context, p scoring.Profile) (scoring.Result, error) {
	s, ok := f.scores[p.Name]
	if !ok {
		s = 75
	}
	return scoring.Result{Score: s, Reasoning: "fit for " + p.Company, Priority: scoring.PriorityFor(s)}, nil
}

type fakeWriter struct {
	mu        sync.Mutex
	fail      map[string]bool
	followups []outreach.FollowupContext
	onDraft   func(name string)
}

func (f *fakeWriter) Draft(ctx context.Context, p outreach.Profile) (*outreach.Draft, error) {
	if f.onDraft != nil {
		f.onDraft(p.Name)
	}
	if f.fail[p.Name] {
		return nil, outreach.ErrInvalidOutput
	}
	return &outreach.Draft{
		SubjectLines:         []string{"Idea for " + p.Company},
		Body:                 "Hi " + p.Name,
		PersonalizationScore: 80,
		ConfidenceScore:      70,
	}, nil
}

func (f *fakeWriter) FollowUp(ctx context.Context, p outreach.Profile, fc outreach.FollowupContext) (*outreach.Draft, error) {
	f.mu.Lock()
	f.followups = append(f.followups, fc)
	f.mu.Unlock()
	if f.fail[p.Name] {
		return nil, outreach.ErrInvalidOutput
	}
	return &outreach.Draft{
		SubjectLines: []string{outreach.FollowupSubject(p.Company)},
		Body:         fmt.Sprintf("Follow-up %d for %s", fc.Number, p.Name),
	}, nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []mailer.Message
	fail  map[string]bool
	delay time.Duration
}

func (f *fakeMailer) Send(ctx context.Context, msg mailer.Message) (string, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[msg.To] {
		return "", fmt.Errorf("%w: mailbox unavailable", mailer.ErrRejected)
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeMailer) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.To
	}
	return out
}

type env struct {
	db     *memory.DB
	store  *repository.Store
	clk    *clock.Fixed
	search *fakeSearch
	scorer *fakeScorer
	writer *fakeWriter
	mail   *fakeMailer
	locker *lock.LocalLocker

	ledger    *service.RunLedger
	disp      *service.Dispatcher
	hunt      *service.HuntService
	send      *service.SendService
	followup  *service.FollowupService
	sched     *service.Scheduler
	campaigns *service.CampaignService
	events    *service.DeliveryEventService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zap.NewNop()
	e := &env{
		db:     memory.New(),
		clk:    clock.NewFixed(wed),
		search: &fakeSearch{},
		scorer: &fakeScorer{scores: map[string]int{}},
		writer: &fakeWriter{fail: map[string]bool{}},
		mail:   &fakeMailer{fail: map[string]bool{}},
		locker: lock.NewLocalLocker(),
	}
	e.store = e.db.Store()
	e.ledger = service.NewRunLedger(e.store.Runs, e.clk, log)
	e.disp = &service.Dispatcher{
		Store:  e.store,
		Mail:   e.mail,
		Clock:  e.clk,
		Log:    log,
		From:   service.Identity{FromName: "Sam", FromEmail: "sam@leadhunter.io", BookingURL: "https://cal.example/sam"},
		Policy: service.DispatchPolicy{PlatformDailyLimit: 100, Cooldown: 72 * time.Hour},
	}
	e.hunt = &service.HuntService{Store: e.store, Search: e.search, Scorer: e.scorer, Writer: e.writer, Ledger: e.ledger, Clock: e.clk, Log: log}
	e.send = &service.SendService{Store: e.store, Dispatcher: e.disp, Ledger: e.ledger, Clock: e.clk, Log: log}
	e.followup = &service.FollowupService{Store: e.store, Writer: e.writer, Dispatcher: e.disp, Ledger: e.ledger, Clock: e.clk, Log: log}
	e.sched = &service.Scheduler{
		Store: e.store, Hunt: e.hunt, Send: e.send, Followup: e.followup,
		Ledger: e.ledger, Locker: e.locker, Clock: e.clk, Log: log,
	}
	e.campaigns = &service.CampaignService{Store: e.store, Ledger: e.ledger, Followup: e.followup, Clock: e.clk, Log: log}
	e.events = &service.DeliveryEventService{Store: e.store, Clock: e.clk, Log: log}
	return e
}

func (e *env) campaign(t *testing.T, mutate func(c *model.Campaign)) *model.Campaign {
	t.Helper()
	c := &model.Campaign{
		OwnerID:            owner,
		Name:               "CTOs in fintech",
		Status:             model.CampaignActive,
		Targeting:          model.Targeting{Titles: []string{"CTO"}, Industries: []string{"fintech"}, SizeMin: 50, SizeMax: 500},
		DailyProspectLimit: 20,
		MinAIScore:         70,
		EmailDailyLimit:    10,
		EnableFollowups:    true,
		FollowupDays:       []int{3, 7, 14},
		MaxFollowups:       3,
		CreatedAt:          e.clk.Now(),
	}
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, e.store.Campaigns.Create(context.Background(), c))
	return c
}

func emailFor(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@acme.io"
}

// readyProspect stores an email_ready prospect with a pending draft.
func (e *env) readyProspect(t *testing.T, c *model.Campaign, name string, score int, mutate func(p *model.Prospect)) *model.Prospect {
	t.Helper()
	ctx := context.Background()
	cid := c.ID
	p := &model.Prospect{
		CampaignID: &cid,
		Name:       name,
		Company:    name + " Corp",
		Email:      emailFor(name),
		AIScore:    &score,
		Status:     model.ProspectEmailReady,
		Source:     model.CampaignSource(c.ID),
		CreatedAt:  e.clk.Now().Add(-48 * time.Hour),
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, e.store.Prospects.Create(ctx, p))
	require.NoError(t, e.store.Drafts.Create(ctx, &model.EmailDraft{
		ProspectID:   p.ID,
		SubjectLines: []string{"Hello " + name},
		Body:         "Initial email for " + name,
		CreatedAt:    p.CreatedAt,
	}))
	return p
}

// contactedProspect stores a prospect whose last send was ago before now.
func (e *env) contactedProspect(t *testing.T, c *model.Campaign, name string, score, followups int, ago time.Duration, mutate func(p *model.Prospect)) *model.Prospect {
	t.Helper()
	ctx := context.Background()
	cid := c.ID
	last := e.clk.Now().Add(-ago)
	next := last.Add(24 * time.Hour * time.Duration(c.FollowupDays[min(followups, len(c.FollowupDays)-1)]))
	p := &model.Prospect{
		CampaignID:       &cid,
		Name:             name,
		Company:          name + " Corp",
		Email:            emailFor(name),
		AIScore:          &score,
		Status:           model.ProspectContacted,
		ContactedAt:      &last,
		LastEmailSent:    &last,
		NextFollowupDate: &next,
		FollowupCount:    followups,
		Source:           model.CampaignSource(c.ID),
		CreatedAt:        last,
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, e.store.Prospects.Create(ctx, p))
	require.NoError(t, e.store.SentEmails.Create(ctx, &model.SentEmail{
		ProspectID: p.ID,
		CampaignID: &cid,
		Subject:    "Hello " + name,
		Body:       "Earlier email for " + name,
		SentAt:     last,
	}))
	return p
}

func (e *env) prospect(t *testing.T, id string) *model.Prospect {
	t.Helper()
	p, err := e.store.Prospects.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (e *env) reload(t *testing.T, c *model.Campaign) *model.Campaign {
	t.Helper()
	got, err := e.store.Campaigns.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	return got
}

func (e *env) runs(t *testing.T, c *model.Campaign) []*model.CampaignRun {
	t.Helper()
	runs, err := e.store.Runs.ListByCampaign(context.Background(), c.ID, 100)
	require.NoError(t, err)
	return runs
}

var errSearchDown = errors.New("apollo: 503 service unavailable")

// ago is d before the current test time.
func (e *env) ago(d time.Duration) time.Time {
	return e.clk.Now().Add(-d)
}
