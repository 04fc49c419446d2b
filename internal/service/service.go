// Package service implements the campaign execution pipeline: the hunt, send
// and follow-up stages, the auto scheduler that drives them, and the
// run ledger every stage writes to.
package service

import (
	"errors"
	"strconv"
	"strings"

	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/lifecycle"
	"github.com/unclebandit/leadhunter-backend/internal/model"
)

// Caller identifies who triggered an operation. Authentication happens
// upstream; only ownership is checked here.
type Caller struct {
	UserID string
	Admin  bool
}

// System is the caller the scheduler acts as.
var System = Caller{UserID: "system", Admin: true}

func authorize(c *model.Campaign, caller Caller) error {
	if caller.Admin || c.OwnerID == "" || c.OwnerID == caller.UserID {
		return nil
	}
	return appErrors.ErrForbidden
}

// ProspectOutcome is one entry of a stage's per-prospect detail list.
type ProspectOutcome struct {
	ProspectID     string `json:"prospect_id"`
	FollowupNumber int    `json:"followup_number,omitempty"`
	Status         string `json:"status"`
	Error          string `json:"error,omitempty"`
}

// outcomeFor maps a rejected transition or dispatch error to its outcome code.
func outcomeFor(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrAlreadyReplied):
		return lifecycle.OutcomeReplied
	case errors.Is(err, appErrors.ErrBounced):
		return lifecycle.OutcomeBounced
	case errors.Is(err, appErrors.ErrArchived):
		return lifecycle.OutcomeArchived
	case errors.Is(err, appErrors.ErrCooldown):
		return lifecycle.OutcomeThrottled
	case errors.Is(err, appErrors.ErrNoEmail):
		return lifecycle.OutcomeNoEmail
	case errors.Is(err, appErrors.ErrPlatformLimit):
		return lifecycle.OutcomePlatformLimit
	case errors.Is(err, appErrors.ErrDailyLimit):
		return lifecycle.OutcomeDailyLimit
	case errors.Is(err, appErrors.ErrConflict):
		return lifecycle.OutcomeConflict
	case errors.Is(err, appErrors.ErrMeetingBooked),
		errors.Is(err, appErrors.ErrFollowupsExhausted),
		errors.Is(err, appErrors.ErrFollowupNotDue),
		errors.Is(err, appErrors.ErrInvalidTransition):
		return lifecycle.OutcomeSkipped
	}
	return lifecycle.OutcomeFailed
}

// Summary is an ordered list of key=value pairs rendered as "k=v; k=v".
type Summary []SummaryField

type SummaryField struct {
	Key   string
	Value string
}

func (s *Summary) Int(key string, v int) {
	*s = append(*s, SummaryField{Key: key, Value: strconv.Itoa(v)})
}

func (s *Summary) Str(key, v string) {
	*s = append(*s, SummaryField{Key: key, Value: v})
}

func (s Summary) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.Key + "=" + f.Value
	}
	return strings.Join(parts, "; ")
}

// ParseSummary splits a ledger summary back into its fields. Free-text
// summaries (error messages) come back under "message".
func ParseSummary(s string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok || strings.ContainsAny(k, " :") {
			return map[string]string{"message": s}
		}
		out[k] = v
	}
	return out
}
