// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrNotFound matches every typed not-found error below via errors.Is.
var ErrNotFound = errors.New("not found")

// ErrCampaignNotFound is returned when a campaign lookup misses
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

func (e *ErrCampaignNotFound) Is(target error) bool { return target == ErrNotFound }

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrProspectNotFound is returned when a prospect lookup misses
type ErrProspectNotFound struct {
	ProspectID string
}

func (e *ErrProspectNotFound) Error() string {
	return fmt.Sprintf("prospect with ID %s not found", e.ProspectID)
}

func (e *ErrProspectNotFound) Is(target error) bool { return target == ErrNotFound }

func NewProspectNotFound(id string) error {
	return &ErrProspectNotFound{ProspectID: id}
}

// Caller and campaign-state errors. These reject a request before any side effect.
var (
	ErrForbidden     = errors.New("caller is not the campaign owner or an admin")
	ErrNotRunnable   = errors.New("campaign not in runnable state")
	ErrNotConfigured = errors.New("provider not configured")
)

// Prospect transition errors.
var (
	ErrAlreadyReplied     = errors.New("prospect has already replied")
	ErrBounced            = errors.New("prospect email bounced")
	ErrArchived           = errors.New("prospect is archived")
	ErrCooldown           = errors.New("prospect was recently contacted")
	ErrNoEmail            = errors.New("prospect has no email")
	ErrFollowupsExhausted = errors.New("follow-up sequence exhausted")
	ErrFollowupNotDue     = errors.New("follow-up not due yet")
	ErrMeetingBooked      = errors.New("prospect already booked a meeting")
	ErrScoreGate          = errors.New("prospect score below campaign threshold")
	ErrInvalidTransition  = errors.New("invalid prospect status transition")
	ErrDailyLimit         = errors.New("daily email limit reached")
	ErrPlatformLimit      = errors.New("platform daily email limit reached")
)

// Store errors.
var (
	ErrConflict         = errors.New("conditional update did not match")
	ErrDuplicate        = errors.New("duplicate record")
	ErrUnsupportedQuery = errors.New("query not supported by store")
)

// ErrUnknownEvent is returned for delivery event types that are not applied.
var ErrUnknownEvent = errors.New("unknown delivery event type")
