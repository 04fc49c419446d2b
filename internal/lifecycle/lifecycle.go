// Package lifecycle is the prospect state machine. Every function here is
// pure over model types; persistence is the caller's job.
package lifecycle

import (
	"time"

	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/model"
)

// DefaultCooldown is the minimum gap between two sends to one prospect.
const DefaultCooldown = 72 * time.Hour

// Outcome codes recorded per prospect in stage details.
const (
	OutcomeSent          = "sent"
	OutcomeNurture       = "nurture"
	OutcomeNoEmail       = "no_email"
	OutcomeNoDraft       = "no_draft"
	OutcomeDraftFailed   = "draft_failed"
	OutcomeFailed        = "failed"
	OutcomeReplied       = "already_replied"
	OutcomeBounced       = "bounced"
	OutcomeArchived      = "archived"
	OutcomeThrottled     = "throttled"
	OutcomeConflict      = "conflict"
	OutcomePlatformLimit = "platform_limit"
	OutcomeDailyLimit    = "daily_limit"
	OutcomeSkipped       = "skipped"
)

var rank = map[model.ProspectStatus]int{
	model.ProspectDiscovered:    0,
	model.ProspectResearched:    1,
	model.ProspectEmailReady:    2,
	model.ProspectContacted:     3,
	model.ProspectReplied:       4,
	model.ProspectNurture:       4,
	model.ProspectMeetingBooked: 5,
	model.ProspectArchived:      6,
}

// CanTransition reports whether a move from -> to is allowed. Status only
// moves forward, except explicit archive/nurture moves which are always allowed
// from a non-archived state.
func CanTransition(from, to model.ProspectStatus) bool {
	if from == model.ProspectArchived {
		return false
	}
	if to == model.ProspectArchived || to == model.ProspectNurture {
		return true
	}
	if from == to {
		return true
	}
	rf, okf := rank[from]
	rt, okt := rank[to]
	return okf && okt && rt > rf
}

func checkNotTerminal(p *model.Prospect) error {
	switch {
	case p.Status == model.ProspectArchived:
		return appErrors.ErrArchived
	case p.Replied:
		return appErrors.ErrAlreadyReplied
	case p.Bounced:
		return appErrors.ErrBounced
	}
	return nil
}

// MarkEmailReady gates drafting on the score: the prospect must be scored at
// or above threshold.
func MarkEmailReady(p *model.Prospect, threshold int) error {
	if err := checkNotTerminal(p); err != nil {
		return err
	}
	if p.AIScore == nil || *p.AIScore < threshold {
		return appErrors.ErrScoreGate
	}
	if p.Status != model.ProspectDiscovered && p.Status != model.ProspectResearched && p.Status != model.ProspectEmailReady {
		return appErrors.ErrInvalidTransition
	}
	p.Status = model.ProspectEmailReady
	return nil
}

// CheckSendable holds for any send: not replied, bounced or archived, has an
// email, and nothing was sent inside the cooldown window.
func CheckSendable(p *model.Prospect, now time.Time, cooldown time.Duration) error {
	if err := checkNotTerminal(p); err != nil {
		return err
	}
	if model.NormalizeEmail(p.Email) == "" {
		return appErrors.ErrNoEmail
	}
	if last := p.LastTouch(); last != nil && now.Sub(*last) < cooldown {
		return appErrors.ErrCooldown
	}
	return nil
}

// CheckInitialSend validates the email_ready -> contacted move.
func CheckInitialSend(p *model.Prospect, now time.Time, cooldown time.Duration) error {
	if err := CheckSendable(p, now, cooldown); err != nil {
		return err
	}
	if p.Status != model.ProspectEmailReady {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// ApplyInitialSend records a successful first contact.
func ApplyInitialSend(p *model.Prospect, c *model.Campaign, now time.Time) {
	t := now
	p.Status = model.ProspectContacted
	p.ContactedAt = &t
	p.LastEmailSent = &t
	p.NextFollowupDate = nil
	if c.EnableFollowups {
		next := now.Add(FollowupGap(c.FollowupDays, 0))
		p.NextFollowupDate = &next
	}
}

// FollowupDueAt is the stored next_followup_date. A prospect without one has
// no follow-up scheduled and is never due, matching the indexed store query.
func FollowupDueAt(p *model.Prospect) (time.Time, bool) {
	if p.NextFollowupDate == nil {
		return time.Time{}, false
	}
	return *p.NextFollowupDate, true
}

// CheckFollowup validates the contacted -> contacted (follow-up) move.
func CheckFollowup(p *model.Prospect, c *model.Campaign, now time.Time) error {
	if err := checkNotTerminal(p); err != nil {
		return err
	}
	if p.MeetingBooked {
		return appErrors.ErrMeetingBooked
	}
	if p.Status != model.ProspectContacted {
		return appErrors.ErrInvalidTransition
	}
	if p.FollowupCount >= c.FollowupLimit() {
		return appErrors.ErrFollowupsExhausted
	}
	due, ok := FollowupDueAt(p)
	if !ok || due.After(now) {
		return appErrors.ErrFollowupNotDue
	}
	return nil
}

// FollowupDue is CheckFollowup as a predicate, used to filter candidates when
// the store cannot evaluate the due-date query itself.
func FollowupDue(p *model.Prospect, c *model.Campaign, now time.Time) bool {
	return CheckFollowup(p, c, now) == nil
}

// ApplyFollowup records a delivered follow-up and reports whether the
// sequence is now exhausted (prospect moved to nurture).
func ApplyFollowup(p *model.Prospect, c *model.Campaign, now time.Time) bool {
	t := now
	p.FollowupCount++
	p.LastEmailSent = &t
	if p.FollowupCount >= c.FollowupLimit() {
		p.Status = model.ProspectNurture
		p.NextFollowupDate = nil
		return true
	}
	next := now.Add(FollowupGap(c.FollowupDays, p.FollowupCount))
	p.NextFollowupDate = &next
	return false
}

// ApplyReply marks the prospect as replied. It reports false when the
// prospect had already replied.
func ApplyReply(p *model.Prospect) bool {
	if p.Replied {
		return false
	}
	p.Replied = true
	p.NextFollowupDate = nil
	if p.Status != model.ProspectArchived && p.Status != model.ProspectMeetingBooked {
		p.Status = model.ProspectReplied
	}
	return true
}

// ApplyBounce permanently suppresses sends to the prospect.
func ApplyBounce(p *model.Prospect) {
	p.Bounced = true
	p.NextFollowupDate = nil
}

func ApplyOpen(p *model.Prospect)  { p.EmailOpened = true }
func ApplyClick(p *model.Prospect) { p.EmailClicked = true }

// Archive halts all automated processing of the prospect.
func Archive(p *model.Prospect) error {
	if p.Status == model.ProspectArchived {
		return appErrors.ErrArchived
	}
	p.Status = model.ProspectArchived
	p.NextFollowupDate = nil
	return nil
}

// MarkMeetingBooked ends the sequence with a booked meeting. It reports
// false when the meeting was already booked.
func MarkMeetingBooked(p *model.Prospect) (bool, error) {
	if p.Status == model.ProspectArchived {
		return false, appErrors.ErrArchived
	}
	if p.MeetingBooked {
		return false, nil
	}
	p.MeetingBooked = true
	p.Status = model.ProspectMeetingBooked
	p.NextFollowupDate = nil
	return true, nil
}
