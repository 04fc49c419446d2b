package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/clock"
	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/lifecycle"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/outreach"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
	"github.com/unclebandit/leadhunter-backend/internal/scoring"
	"github.com/unclebandit/leadhunter-backend/internal/search"
)

// SearchSource is the source tag given to scoring for search results.
const SearchSource = "apollo"

type HuntResult struct {
	CampaignID      string             `json:"campaign_id"`
	ProspectsFound  int                `json:"prospects_found"`
	ProspectsAdded  int                `json:"prospects_added"`
	HighScorers     int                `json:"high_scorers"`
	EmailsGenerated int                `json:"emails_generated"`
	NextRunAt       *time.Time         `json:"next_run_at,omitempty"`
	Status          model.RunStatus    `json:"status"`
	Notes           []string           `json:"notes,omitempty"`
	Run             *model.CampaignRun `json:"run,omitempty"`
}

// HuntService discovers, scores and drafts new prospects for a campaign.
type HuntService struct {
	Store  *repository.Store
	Search search.Client
	Scorer scoring.Client
	Writer outreach.Writer
	Ledger *RunLedger
	Clock  clock.Clock
	Log    *zap.Logger
}

// Run executes one hunt. The result is non-nil whenever a ledger entry was
// written, including when an error is returned.
func (s *HuntService) Run(ctx context.Context, campaignID string, caller Caller) (*HuntResult, error) {
	c, err := s.Store.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := authorize(c, caller); err != nil {
		return nil, err
	}
	if c.Status != model.CampaignActive && c.Status != model.CampaignDraft {
		return nil, fmt.Errorf("%w: status %s", appErrors.ErrNotRunnable, c.Status)
	}

	log := s.Log.With(zap.String("campaign_id", c.ID), zap.String("stage", "hunt"))
	res := &HuntResult{CampaignID: c.ID, Status: model.RunSuccess}
	now := s.Clock.Now()

	huntErr := s.hunt(ctx, c, res, log)
	if huntErr != nil {
		res.Status = model.RunError
	}

	next := lifecycle.NextHuntRun(now, c.SendWeekends)
	if err := s.Store.Campaigns.RecordHunt(ctx, c.ID, res.ProspectsAdded, now, next); err != nil {
		log.Error("Failed to update campaign after hunt", zap.Error(err))
		if huntErr == nil {
			huntErr = fmt.Errorf("update campaign: %w", err)
			res.Status = model.RunError
		}
	} else {
		res.NextRunAt = &next
	}

	summary := s.summary(res)
	if huntErr != nil {
		summary = huntErr.Error()
	}
	res.Run = s.Ledger.Record(ctx, c.ID, model.RunHunt, res.Status, summary)
	return res, huntErr
}

func (s *HuntService) summary(res *HuntResult) string {
	var sum Summary
	sum.Int("prospects_found", res.ProspectsFound)
	sum.Int("prospects_added", res.ProspectsAdded)
	sum.Int("high_scorers", res.HighScorers)
	sum.Int("emails_generated", res.EmailsGenerated)
	for _, n := range res.Notes {
		k, v, _ := strings.Cut(n, "=")
		sum.Str(k, v)
	}
	return sum.String()
}

// degrade marks the run partial and sets a note in the summary.
func (r *HuntResult) degrade(key, value string) {
	if r.Status == model.RunSuccess {
		r.Status = model.RunPartial
	}
	note := key + "=" + value
	for i, n := range r.Notes {
		if strings.HasPrefix(n, key+"=") {
			r.Notes[i] = note
			return
		}
	}
	r.Notes = append(r.Notes, note)
}

func (s *HuntService) hunt(ctx context.Context, c *model.Campaign, res *HuntResult, log *zap.Logger) error {
	pageSize := c.PageSize()

	var candidates []search.Candidate
	if s.Search == nil {
		res.degrade("search", "not_configured")
	} else {
		found, err := s.Search.Search(ctx, search.Criteria{
			Titles:     c.Targeting.Titles,
			Industries: c.Targeting.Industries,
			Locations:  c.Targeting.Locations,
			SizeRange:  c.SizeRange(),
			Keywords:   c.Targeting.Keywords,
		}, pageSize)
		if err != nil {
			log.Warn("People search failed, continuing with no candidates", zap.Error(err))
			res.degrade("search", "unavailable")
		} else {
			candidates = found
		}
	}
	res.ProspectsFound = len(candidates)
	if len(candidates) == 0 {
		return nil
	}

	existing, err := s.Store.Prospects.ListByCampaign(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("load existing prospects: %w", err)
	}
	emails := make(map[string]bool, len(existing))
	pairs := make(map[string]bool, len(existing))
	for _, p := range existing {
		if k := p.EmailKey(); k != "" {
			emails[k] = true
		}
		pairs[p.PairKey()] = true
	}
	excluded := make(map[string]bool, len(c.Targeting.ExcludeCompanies))
	for _, name := range c.Targeting.ExcludeCompanies {
		excluded[strings.ToLower(strings.TrimSpace(name))] = true
	}

	threshold := c.ScoreThreshold()
	draftThreshold := c.DraftThreshold()
	scoreFailures, draftFailures := 0, 0

	for _, cand := range candidates {
		if res.ProspectsAdded >= pageSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name, company := strings.TrimSpace(cand.Name), strings.TrimSpace(cand.Company)
		if name == "" || company == "" {
			continue
		}
		if excluded[strings.ToLower(company)] {
			continue
		}
		email := model.NormalizeEmail(cand.Email)
		pair := model.PairKey(name, company)
		if (email != "" && emails[email]) || pairs[pair] {
			continue
		}

		scored, err := s.Scorer.Score(ctx, scoring.Profile{
			Name:        name,
			Title:       cand.Title,
			Company:     company,
			CompanySize: cand.CompanySize,
			Industry:    cand.Industry,
			Location:    cand.Location,
			Source:      SearchSource,
		})
		if err != nil {
			scoreFailures++
			res.degrade("scoring_failures", strconv.Itoa(scoreFailures))
			log.Warn("Scoring failed, skipping candidate", zap.Error(err))
			continue
		}
		if scored.Score < threshold {
			continue
		}

		score := scored.Score
		campaignID := c.ID
		p := &model.Prospect{
			CampaignID:   &campaignID,
			OwnerID:      c.OwnerID,
			Name:         name,
			Title:        cand.Title,
			Company:      company,
			Industry:     cand.Industry,
			CompanySize:  cand.CompanySize,
			Email:        email,
			LinkedInURL:  cand.LinkedInURL,
			Location:     cand.Location,
			AIScore:      &score,
			FitReasoning: scored.Reasoning,
			Status:       model.ProspectDiscovered,
			Source:       model.CampaignSource(c.ID),
			CreatedAt:    s.Clock.Now(),
		}
		if err := s.Store.Prospects.Create(ctx, p); err != nil {
			if errors.Is(err, appErrors.ErrDuplicate) {
				// lost a race with another writer; the unique index kept the set clean
				continue
			}
			return fmt.Errorf("persist prospect %s: %w", name, err)
		}
		if email != "" {
			emails[email] = true
		}
		pairs[pair] = true
		res.ProspectsAdded++

		if score < draftThreshold {
			continue
		}
		res.HighScorers++
		if s.Writer == nil {
			res.degrade("writer", "not_configured")
			continue
		}
		if err := s.draftInitial(ctx, p, draftThreshold); err != nil {
			draftFailures++
			res.degrade("draft_failures", strconv.Itoa(draftFailures))
			log.Warn("Outreach draft failed", zap.String("prospect_id", p.ID), zap.Error(err))
			continue
		}
		res.EmailsGenerated++
	}

	log.Info("Hunt finished",
		zap.Int("prospects_found", res.ProspectsFound),
		zap.Int("prospects_added", res.ProspectsAdded),
		zap.Int("high_scorers", res.HighScorers),
		zap.Int("emails_generated", res.EmailsGenerated))
	return nil
}

func (s *HuntService) draftInitial(ctx context.Context, p *model.Prospect, threshold int) error {
	d, err := s.Writer.Draft(ctx, outreach.Profile{
		Name:     p.Name,
		Title:    p.Title,
		Company:  p.Company,
		Industry: p.Industry,
		Source:   p.Source,
	})
	if err != nil {
		return err
	}
	if err := lifecycle.MarkEmailReady(p, threshold); err != nil {
		return err
	}
	draft := &model.EmailDraft{
		ProspectID:           p.ID,
		Kind:                 model.DraftInitial,
		SubjectLines:         d.SubjectLines,
		Body:                 d.Body,
		PersonalizationScore: d.PersonalizationScore,
		ConfidenceScore:      d.ConfidenceScore,
		Reasoning:            d.Reasoning,
		Status:               model.DraftPending,
		CreatedAt:            s.Clock.Now(),
	}
	if err := s.Store.Drafts.Create(ctx, draft); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	if err := s.Store.Prospects.MarkEmailReady(ctx, p.ID); err != nil {
		// the prospect moved on meanwhile; a pending draft must not outlive it
		if derr := s.Store.Drafts.Discard(context.WithoutCancel(ctx), draft.ID); derr != nil {
			s.Log.Warn("Failed to discard draft", zap.String("draft_id", draft.ID), zap.Error(derr))
		}
		return fmt.Errorf("mark email ready: %w", err)
	}
	return nil
}
