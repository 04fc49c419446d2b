// internal/model/prospect.go
package model

import (
	"strings"
	"time"
)

type ProspectStatus string

const (
	ProspectDiscovered    ProspectStatus = "discovered"
	ProspectResearched    ProspectStatus = "researched"
	ProspectEmailReady    ProspectStatus = "email_ready"
	ProspectContacted     ProspectStatus = "contacted"
	ProspectReplied       ProspectStatus = "replied"
	ProspectNurture       ProspectStatus = "nurture"
	ProspectMeetingBooked ProspectStatus = "meeting_booked"
	ProspectArchived      ProspectStatus = "closed_lost"
)

// SourceManual tags prospects entered by hand.
const SourceManual = "manual"

// CampaignSource is the source tag of prospects discovered by a campaign hunt.
func CampaignSource(campaignID string) string {
	return "campaign:" + campaignID
}

type Prospect struct {
	ID          string  `db:"id" json:"id"`
	CampaignID  *string `db:"campaign_id" json:"campaign_id,omitempty"`
	OwnerID     string  `db:"user_id" json:"user_id,omitempty"`
	Name        string  `db:"name" json:"name"`
	Title       string  `db:"title" json:"title"`
	Company     string  `db:"company" json:"company"`
	Industry    string  `db:"industry" json:"industry"`
	CompanySize string  `db:"company_size" json:"company_size"`
	Email       string  `db:"email" json:"email"`
	LinkedInURL string  `db:"linkedin_url" json:"linkedin_url"`
	Location    string  `db:"location" json:"location"`

	AIScore      *int   `db:"ai_score" json:"ai_score,omitempty"`
	FitReasoning string `db:"fit_reasoning" json:"fit_reasoning"`

	Status        ProspectStatus `db:"status" json:"status"`
	Replied       bool           `db:"replied" json:"replied"`
	Bounced       bool           `db:"bounced" json:"bounced"`
	MeetingBooked bool           `db:"meeting_booked" json:"meeting_booked"`
	EmailOpened   bool           `db:"email_opened" json:"email_opened"`
	EmailClicked  bool           `db:"email_clicked" json:"email_clicked"`

	ContactedAt      *time.Time `db:"contacted_at" json:"contacted_at,omitempty"`
	LastEmailSent    *time.Time `db:"last_email_sent" json:"last_email_sent,omitempty"`
	NextFollowupDate *time.Time `db:"next_followup_date" json:"next_followup_date,omitempty"`
	FollowupCount    int        `db:"followup_count" json:"followup_count"`

	Source    string     `db:"source" json:"source"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Score returns the AI score, or -1 when the prospect has not been scored.
func (p *Prospect) Score() int {
	if p.AIScore == nil {
		return -1
	}
	return *p.AIScore
}

// LastTouch is the most recent send time known for the prospect.
func (p *Prospect) LastTouch() *time.Time {
	if p.LastEmailSent != nil {
		return p.LastEmailSent
	}
	return p.ContactedAt
}

// EmailKey is the lower-cased email used for dedup.
func (p *Prospect) EmailKey() string {
	return NormalizeEmail(p.Email)
}

// PairKey is the lower-cased (name, company) pair used for dedup.
func (p *Prospect) PairKey() string {
	return PairKey(p.Name, p.Company)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func PairKey(name, company string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(company))
}
