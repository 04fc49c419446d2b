// Package memory is an in-process implementation of the repository
// interfaces. It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
)

// DB holds every table behind one mutex. Records are copied in and out so
// callers never share memory with the store.
type DB struct {
	mu sync.Mutex

	campaigns     map[string]*model.Campaign
	campaignOrder []string
	prospects     map[string]*model.Prospect
	prospectOrder []string
	drafts        []*model.EmailDraft
	sent          []*model.SentEmail
	runs          []*model.CampaignRun
	sendClaims    map[string]time.Time

	// NoFollowupIndex makes ListDueFollowups report ErrUnsupportedQuery.
	NoFollowupIndex bool
}

func New() *DB {
	return &DB{
		campaigns:  make(map[string]*model.Campaign),
		prospects:  make(map[string]*model.Prospect),
		sendClaims: make(map[string]time.Time),
	}
}

// Store returns repository views over the shared tables.
func (d *DB) Store() *repository.Store {
	return &repository.Store{
		Campaigns:  &Campaigns{db: d},
		Prospects:  &Prospects{db: d},
		Drafts:     &Drafts{db: d},
		SentEmails: &SentEmails{db: d},
		Runs:       &Runs{db: d},
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func cloneCampaign(c *model.Campaign) *model.Campaign {
	out := *c
	out.Targeting.Titles = append([]string(nil), c.Targeting.Titles...)
	out.Targeting.Industries = append([]string(nil), c.Targeting.Industries...)
	out.Targeting.Locations = append([]string(nil), c.Targeting.Locations...)
	out.Targeting.Keywords = append([]string(nil), c.Targeting.Keywords...)
	out.Targeting.ExcludeCompanies = append([]string(nil), c.Targeting.ExcludeCompanies...)
	out.FollowupDays = append([]int(nil), c.FollowupDays...)
	out.MinDraftScore = copyInt(c.MinDraftScore)
	out.LastRunAt = copyTime(c.LastRunAt)
	out.ScheduleStart = copyTime(c.ScheduleStart)
	out.UpdatedAt = copyTime(c.UpdatedAt)
	return &out
}

func cloneProspect(p *model.Prospect) *model.Prospect {
	out := *p
	out.CampaignID = copyString(p.CampaignID)
	out.AIScore = copyInt(p.AIScore)
	out.ContactedAt = copyTime(p.ContactedAt)
	out.LastEmailSent = copyTime(p.LastEmailSent)
	out.NextFollowupDate = copyTime(p.NextFollowupDate)
	out.UpdatedAt = copyTime(p.UpdatedAt)
	return &out
}

func cloneDraft(d *model.EmailDraft) *model.EmailDraft {
	out := *d
	out.SubjectLines = append([]string(nil), d.SubjectLines...)
	out.SentAt = copyTime(d.SentAt)
	return &out
}

func cloneSent(s *model.SentEmail) *model.SentEmail {
	out := *s
	out.CampaignID = copyString(s.CampaignID)
	out.DraftID = copyString(s.DraftID)
	out.OpenedAt = copyTime(s.OpenedAt)
	out.ClickedAt = copyTime(s.ClickedAt)
	out.RepliedAt = copyTime(s.RepliedAt)
	return &out
}

func inCampaign(p *model.Prospect, campaignID string) bool {
	return p.CampaignID != nil && *p.CampaignID == campaignID
}

// Campaigns implements repository.CampaignRepositoryInterface.
type Campaigns struct{ db *DB }

func (r *Campaigns) Create(_ context.Context, c *model.Campaign) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if _, ok := r.db.campaigns[c.ID]; ok {
		return appErrors.ErrDuplicate
	}
	r.db.campaigns[c.ID] = cloneCampaign(c)
	r.db.campaignOrder = append(r.db.campaignOrder, c.ID)
	return nil
}

func (r *Campaigns) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return cloneCampaign(c), nil
}

func (r *Campaigns) ListDue(_ context.Context, now time.Time) ([]*model.Campaign, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []*model.Campaign{}
	for _, id := range r.db.campaignOrder {
		c := r.db.campaigns[id]
		if c.Status != model.CampaignActive {
			continue
		}
		if c.ScheduleStart != nil && c.ScheduleStart.After(now) {
			continue
		}
		out = append(out, cloneCampaign(c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ScheduleStart, out[j].ScheduleStart
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		}
		return a.Before(*b)
	})
	return out, nil
}

func (r *Campaigns) update(id string, fn func(c *model.Campaign)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	fn(c)
	now := time.Now()
	c.UpdatedAt = &now
	return nil
}

func (r *Campaigns) UpdateStatus(_ context.Context, id string, status model.CampaignStatus) error {
	return r.update(id, func(c *model.Campaign) { c.Status = status })
}

func (r *Campaigns) RecordHunt(_ context.Context, id string, added int, lastRunAt, scheduleStart time.Time) error {
	return r.update(id, func(c *model.Campaign) {
		c.FoundCount += added
		c.LastRunAt = &lastRunAt
		c.ScheduleStart = &scheduleStart
	})
}

func (r *Campaigns) AddContacted(_ context.Context, id string, n int, lastRunAt time.Time) error {
	return r.update(id, func(c *model.Campaign) {
		c.ContactedCount += n
		c.LastRunAt = &lastRunAt
	})
}

func (r *Campaigns) SetScheduleStart(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(c *model.Campaign) { c.ScheduleStart = &at })
}

// Prospects implements repository.ProspectRepositoryInterface.
type Prospects struct{ db *DB }

func (r *Prospects) Create(_ context.Context, p *model.Prospect) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = model.ProspectDiscovered
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if _, ok := r.db.prospects[p.ID]; ok {
		return appErrors.ErrDuplicate
	}
	if p.CampaignID != nil {
		email, pair := p.EmailKey(), p.PairKey()
		for _, existing := range r.db.prospects {
			if !inCampaign(existing, *p.CampaignID) {
				continue
			}
			if (email != "" && existing.EmailKey() == email) || existing.PairKey() == pair {
				return appErrors.ErrDuplicate
			}
		}
	}
	r.db.prospects[p.ID] = cloneProspect(p)
	r.db.prospectOrder = append(r.db.prospectOrder, p.ID)
	return nil
}

func (r *Prospects) GetByID(_ context.Context, id string) (*model.Prospect, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.prospects[id]
	if !ok {
		return nil, appErrors.NewProspectNotFound(id)
	}
	return cloneProspect(p), nil
}

// filter returns copies of matching prospects in insertion order.
func (r *Prospects) filter(keep func(p *model.Prospect) bool) []*model.Prospect {
	out := []*model.Prospect{}
	for _, id := range r.db.prospectOrder {
		if p := r.db.prospects[id]; keep(p) {
			out = append(out, cloneProspect(p))
		}
	}
	return out
}

func byScoreDesc(ps []*model.Prospect) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Score() > ps[j].Score() })
}

func limit(ps []*model.Prospect, n int) []*model.Prospect {
	if n >= 0 && len(ps) > n {
		return ps[:n]
	}
	return ps
}

func (r *Prospects) ListByCampaign(_ context.Context, campaignID string) ([]*model.Prospect, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.filter(func(p *model.Prospect) bool { return inCampaign(p, campaignID) }), nil
}

func ready(p *model.Prospect, campaignID string) bool {
	return inCampaign(p, campaignID) && p.Status == model.ProspectEmailReady && p.ContactedAt == nil
}

func (r *Prospects) ListReadyToSend(_ context.Context, campaignID string, n int) ([]*model.Prospect, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := r.filter(func(p *model.Prospect) bool { return ready(p, campaignID) })
	byScoreDesc(out)
	return limit(out, n), nil
}

func (r *Prospects) CountReadyToSend(_ context.Context, campaignID string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.filter(func(p *model.Prospect) bool { return ready(p, campaignID) })), nil
}

func awaiting(p *model.Prospect, campaignID string) bool {
	return inCampaign(p, campaignID) && p.Status == model.ProspectContacted &&
		!p.Replied && !p.Bounced && !p.MeetingBooked
}

func (r *Prospects) ListDueFollowups(_ context.Context, campaignID string, now time.Time, maxFollowups, n int) ([]*model.Prospect, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.NoFollowupIndex {
		return nil, appErrors.ErrUnsupportedQuery
	}
	out := r.filter(func(p *model.Prospect) bool {
		return awaiting(p, campaignID) && p.FollowupCount < maxFollowups &&
			p.NextFollowupDate != nil && !p.NextFollowupDate.After(now)
	})
	byScoreDesc(out)
	return limit(out, n), nil
}

func (r *Prospects) ListAwaitingReply(_ context.Context, campaignID string) ([]*model.Prospect, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := r.filter(func(p *model.Prospect) bool { return awaiting(p, campaignID) })
	byScoreDesc(out)
	return out, nil
}

// guarded applies fn to the prospect when cond holds and reports whether it did.
func (r *Prospects) guarded(id string, cond func(p *model.Prospect) bool, fn func(p *model.Prospect)) bool {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.prospects[id]
	if !ok || !cond(p) {
		return false
	}
	fn(p)
	now := time.Now()
	p.UpdatedAt = &now
	return true
}

func always(*model.Prospect) bool { return true }

func (r *Prospects) MarkEmailReady(_ context.Context, id string) error {
	ok := r.guarded(id, func(p *model.Prospect) bool {
		return (p.Status == model.ProspectDiscovered || p.Status == model.ProspectResearched) && !p.Replied && !p.Bounced
	}, func(p *model.Prospect) { p.Status = model.ProspectEmailReady })
	if !ok {
		return appErrors.ErrConflict
	}
	return nil
}

// claim records a send claim when cond holds and no claim newer than
// staleBefore exists.
func (r *Prospects) claim(id string, now, staleBefore time.Time, cond func(p *model.Prospect) bool) bool {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.prospects[id]
	if !ok || !cond(p) {
		return false
	}
	if at, held := r.db.sendClaims[id]; held && !at.Before(staleBefore) {
		return false
	}
	r.db.sendClaims[id] = now
	return true
}

func (r *Prospects) ClaimInitialSend(_ context.Context, id string, now, staleBefore time.Time) (bool, error) {
	return r.claim(id, now, staleBefore, func(p *model.Prospect) bool {
		return p.Status == model.ProspectEmailReady && p.ContactedAt == nil && !p.Replied && !p.Bounced
	}), nil
}

func (r *Prospects) ClaimFollowup(_ context.Context, id string, followupCount int, now, staleBefore time.Time) (bool, error) {
	return r.claim(id, now, staleBefore, func(p *model.Prospect) bool {
		return p.FollowupCount == followupCount && p.Status == model.ProspectContacted &&
			!p.Replied && !p.Bounced && !p.MeetingBooked
	}), nil
}

func (r *Prospects) ReleaseSend(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.sendClaims, id)
	return nil
}

func (r *Prospects) MarkContacted(_ context.Context, in *model.Prospect) error {
	ok := r.guarded(in.ID, func(p *model.Prospect) bool {
		return p.ContactedAt == nil && !p.Replied && !p.Bounced && p.Status != model.ProspectArchived
	}, func(p *model.Prospect) {
		p.Status = in.Status
		p.ContactedAt = copyTime(in.ContactedAt)
		p.LastEmailSent = copyTime(in.LastEmailSent)
		p.NextFollowupDate = copyTime(in.NextFollowupDate)
		delete(r.db.sendClaims, in.ID)
	})
	if !ok {
		return appErrors.ErrConflict
	}
	return nil
}

func (r *Prospects) RecordFollowup(_ context.Context, in *model.Prospect, prevCount int) error {
	ok := r.guarded(in.ID, func(p *model.Prospect) bool {
		return p.FollowupCount == prevCount && p.Status == model.ProspectContacted &&
			!p.Replied && !p.Bounced && !p.MeetingBooked
	}, func(p *model.Prospect) {
		p.Status = in.Status
		p.FollowupCount = in.FollowupCount
		p.LastEmailSent = copyTime(in.LastEmailSent)
		p.NextFollowupDate = copyTime(in.NextFollowupDate)
		delete(r.db.sendClaims, in.ID)
	})
	if !ok {
		return appErrors.ErrConflict
	}
	return nil
}

// bump applies fn to the prospect's campaign. Callers hold the lock.
func (r *Prospects) bump(p *model.Prospect, fn func(c *model.Campaign)) {
	if p.CampaignID == nil {
		return
	}
	if c, ok := r.db.campaigns[*p.CampaignID]; ok {
		fn(c)
		now := time.Now()
		c.UpdatedAt = &now
	}
}

func (r *Prospects) MarkReplied(_ context.Context, id string) (bool, error) {
	return r.guarded(id, func(p *model.Prospect) bool { return !p.Replied }, func(p *model.Prospect) {
		p.Replied = true
		p.NextFollowupDate = nil
		if p.Status != model.ProspectArchived && p.Status != model.ProspectMeetingBooked {
			p.Status = model.ProspectReplied
		}
		r.bump(p, func(c *model.Campaign) { c.RepliedCount++ })
	}), nil
}

func (r *Prospects) MarkBounced(_ context.Context, id string) error {
	r.guarded(id, always, func(p *model.Prospect) {
		p.Bounced = true
		p.NextFollowupDate = nil
	})
	return nil
}

func (r *Prospects) MarkOpened(_ context.Context, id string) error {
	r.guarded(id, always, func(p *model.Prospect) { p.EmailOpened = true })
	return nil
}

func (r *Prospects) MarkClicked(_ context.Context, id string) error {
	r.guarded(id, always, func(p *model.Prospect) { p.EmailClicked = true })
	return nil
}

func (r *Prospects) MarkMeetingBooked(_ context.Context, id string) (bool, error) {
	return r.guarded(id, func(p *model.Prospect) bool {
		return !p.MeetingBooked && p.Status != model.ProspectArchived
	}, func(p *model.Prospect) {
		p.MeetingBooked = true
		p.Status = model.ProspectMeetingBooked
		p.NextFollowupDate = nil
		r.bump(p, func(c *model.Campaign) { c.BookedCount++ })
	}), nil
}

func (r *Prospects) Archive(_ context.Context, id string) (bool, error) {
	return r.guarded(id, func(p *model.Prospect) bool { return p.Status != model.ProspectArchived }, func(p *model.Prospect) {
		p.Status = model.ProspectArchived
		p.NextFollowupDate = nil
	}), nil
}

// Drafts implements repository.DraftRepositoryInterface.
type Drafts struct{ db *DB }

func (r *Drafts) Create(_ context.Context, d *model.EmailDraft) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
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
	r.db.drafts = append(r.db.drafts, cloneDraft(d))
	return nil
}

func (r *Drafts) LatestPending(_ context.Context, prospectID string) (*model.EmailDraft, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var latest *model.EmailDraft
	for _, d := range r.db.drafts {
		if d.ProspectID != prospectID || d.Status != model.DraftPending {
			continue
		}
		if latest == nil || !d.CreatedAt.Before(latest.CreatedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneDraft(latest), nil
}

func (r *Drafts) Discard(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, d := range r.db.drafts {
		if d.ID == id && d.Status == model.DraftPending {
			r.db.drafts = append(r.db.drafts[:i], r.db.drafts[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *Drafts) MarkSent(_ context.Context, id string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, d := range r.db.drafts {
		if d.ID == id && d.Status == model.DraftPending {
			d.Status = model.DraftSent
			d.SentAt = &at
			return nil
		}
	}
	return appErrors.ErrConflict
}

// SentEmails implements repository.SentEmailRepositoryInterface.
type SentEmails struct{ db *DB }

func (r *SentEmails) Create(_ context.Context, s *model.SentEmail) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = "sent"
	}
	r.db.sent = append(r.db.sent, cloneSent(s))
	return nil
}

func (r *SentEmails) CountForCampaignSince(_ context.Context, campaignID string, since time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, s := range r.db.sent {
		p, ok := r.db.prospects[s.ProspectID]
		if ok && inCampaign(p, campaignID) && !s.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *SentEmails) CountSince(_ context.Context, since time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, s := range r.db.sent {
		if !s.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *SentEmails) latest(prospectID, draftID string) *model.SentEmail {
	var latest *model.SentEmail
	for _, s := range r.db.sent {
		if s.ProspectID != prospectID {
			continue
		}
		if draftID != "" && (s.DraftID == nil || *s.DraftID != draftID) {
			continue
		}
		if latest == nil || !s.SentAt.Before(latest.SentAt) {
			latest = s
		}
	}
	return latest
}

func (r *SentEmails) LatestForProspect(_ context.Context, prospectID string) (*model.SentEmail, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if s := r.latest(prospectID, ""); s != nil {
		return cloneSent(s), nil
	}
	return nil, nil
}

func (r *SentEmails) StampEvent(_ context.Context, prospectID, draftID string, event model.DeliveryEventType, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s := r.latest(prospectID, draftID)
	if s == nil {
		return nil
	}
	stamp := func(dst **time.Time) {
		if *dst == nil {
			t := at
			*dst = &t
		}
	}
	switch event {
	case model.EventOpened:
		stamp(&s.OpenedAt)
	case model.EventClicked:
		stamp(&s.ClickedAt)
	case model.EventReplied:
		stamp(&s.RepliedAt)
	case model.EventBounced:
		s.Bounced = true
		s.Status = "bounced"
	}
	return nil
}

// Sent returns every recorded send, oldest first.
func (d *DB) Sent() []*model.SentEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*model.SentEmail, 0, len(d.sent))
	for _, s := range d.sent {
		out = append(out, cloneSent(s))
	}
	return out
}

// Runs implements repository.RunRepositoryInterface.
type Runs struct{ db *DB }

func (r *Runs) Create(_ context.Context, run *model.CampaignRun) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	cp := *run
	r.db.runs = append(r.db.runs, &cp)
	return nil
}

func (r *Runs) ListByCampaign(_ context.Context, campaignID string, n int) ([]*model.CampaignRun, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []*model.CampaignRun{}
	for i := len(r.db.runs) - 1; i >= 0; i-- {
		if run := r.db.runs[i]; run.CampaignID == campaignID {
			cp := *run
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}


var (
	_ repository.CampaignRepositoryInterface  = (*Campaigns)(nil)
	_ repository.ProspectRepositoryInterface  = (*Prospects)(nil)
	_ repository.DraftRepositoryInterface     = (*Drafts)(nil)
	_ repository.SentEmailRepositoryInterface = (*SentEmails)(nil)
	_ repository.RunRepositoryInterface       = (*Runs)(nil)
)
