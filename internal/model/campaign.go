// internal/model/campaign.go
package model

import (
	"strconv"
	"time"
)

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignScheduled CampaignStatus = "scheduled"
)

// Targeting is the people-search criteria of a campaign.
type Targeting struct {
	Titles           []string `json:"titles" yaml:"titles"`
	Industries       []string `json:"industries" yaml:"industries"`
	Locations        []string `json:"locations" yaml:"locations"`
	SizeMin          int      `json:"size_min" yaml:"size_min"`
	SizeMax          int      `json:"size_max" yaml:"size_max"`
	Keywords         []string `json:"keywords" yaml:"keywords"`
	ExcludeCompanies []string `json:"exclude_companies" yaml:"exclude_companies"`
}

type Campaign struct {
	ID      string         `db:"id" json:"id"`
	OwnerID string         `db:"created_by" json:"created_by,omitempty"`
	Name    string         `db:"name" json:"name"`
	Status  CampaignStatus `db:"status" json:"status"`

	Targeting Targeting `json:"targeting"`

	DailyProspectLimit int  `db:"daily_prospect_limit" json:"daily_prospect_limit"`
	MinAIScore         int  `db:"min_ai_score" json:"min_ai_score"`
	MinDraftScore      *int `db:"min_draft_score" json:"min_draft_score,omitempty"`
	EmailDailyLimit    int  `db:"email_daily_limit" json:"email_daily_limit"`

	SendWeekends    bool  `db:"send_weekends" json:"send_weekends"`
	EnableFollowups bool  `db:"enable_followups" json:"enable_followups"`
	FollowupDays    []int `db:"followup_days" json:"followup_days"`
	MaxFollowups    int   `db:"max_followups" json:"max_followups"`

	FoundCount     int `db:"found_count" json:"found_count"`
	ContactedCount int `db:"contacted_count" json:"contacted_count"`
	RepliedCount   int `db:"replied_count" json:"replied_count"`
	BookedCount    int `db:"booked_count" json:"booked_count"`

	LastRunAt     *time.Time `db:"last_run_at" json:"last_run_at,omitempty"`
	ScheduleStart *time.Time `db:"schedule_start" json:"schedule_start,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Defaults applied when a campaign row leaves a policy field unset.
const (
	DefaultDailyProspectLimit = 20
	DefaultEmailDailyLimit    = 10
	DefaultMaxFollowups       = 3
	DefaultSizeMin            = 1
	DefaultSizeMax            = 50000
)

// PageSize is the number of candidates requested per hunt, clamped to [1,100].
func (c *Campaign) PageSize() int {
	n := c.DailyProspectLimit
	if n <= 0 {
		n = DefaultDailyProspectLimit
	}
	if n < 1 {
		n = 1
	}
	if n > 100 {
		n = 100
	}
	return n
}

// SendLimit is the per-day email budget of the campaign.
func (c *Campaign) SendLimit() int {
	if c.EmailDailyLimit <= 0 {
		return DefaultEmailDailyLimit
	}
	return c.EmailDailyLimit
}

// FollowupLimit is the maximum number of follow-ups per prospect (at least 1).
func (c *Campaign) FollowupLimit() int {
	if c.MaxFollowups <= 0 {
		return DefaultMaxFollowups
	}
	return c.MaxFollowups
}

// ScoreThreshold is the minimum score for a candidate to be persisted.
func (c *Campaign) ScoreThreshold() int {
	return clampScore(c.MinAIScore)
}

// DraftThreshold is the minimum score for outreach to be drafted. It falls
// back to ScoreThreshold when no separate bar is configured.
func (c *Campaign) DraftThreshold() int {
	if c.MinDraftScore == nil {
		return c.ScoreThreshold()
	}
	return clampScore(*c.MinDraftScore)
}

// SizeRange formats the employee-size range as "<min>-<max>".
func (c *Campaign) SizeRange() string {
	lo, hi := c.Targeting.SizeMin, c.Targeting.SizeMax
	if lo <= 0 {
		lo = DefaultSizeMin
	}
	if hi <= 0 {
		hi = DefaultSizeMax
	}
	return strconv.Itoa(lo) + "-" + strconv.Itoa(hi)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
