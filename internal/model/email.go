// internal/model/email.go
package model

import "time"

type DraftStatus string

const (
	DraftPending DraftStatus = "draft"
	DraftSent    DraftStatus = "sent"
)

type DraftKind string

const (
	DraftInitial  DraftKind = "initial"
	DraftFollowup DraftKind = "followup"
)

type EmailDraft struct {
	ID                   string      `db:"id" json:"id"`
	ProspectID           string      `db:"prospect_id" json:"prospect_id"`
	Kind                 DraftKind   `db:"kind" json:"kind"`
	FollowupNumber       int         `db:"followup_number" json:"followup_number"`
	SubjectLines         []string    `db:"subject_lines" json:"subject_lines"`
	Body                 string      `db:"body" json:"body"`
	PersonalizationScore int         `db:"personalization_score" json:"personalization_score"`
	ConfidenceScore      int         `db:"confidence_score" json:"confidence_score"`
	Reasoning            string      `db:"reasoning" json:"reasoning"`
	Status               DraftStatus `db:"status" json:"status"`
	CreatedAt            time.Time   `db:"created_at" json:"created_at"`
	SentAt               *time.Time  `db:"sent_at" json:"sent_at,omitempty"`
}

// Subject returns the first subject line, or fallback when the draft has none.
func (d *EmailDraft) Subject(fallback string) string {
	for _, s := range d.SubjectLines {
		if s != "" {
			return s
		}
	}
	return fallback
}

// SentEmail is the immutable record of one delivery attempt. Delivery-event
// fields are stamped later by webhook notifications.
type SentEmail struct {
	ID         string     `db:"id" json:"id"`
	ProspectID string     `db:"prospect_id" json:"prospect_id"`
	CampaignID *string    `db:"campaign_id" json:"campaign_id,omitempty"`
	DraftID    *string    `db:"email_draft_id" json:"email_draft_id,omitempty"`
	MessageID  string     `db:"message_id" json:"message_id"`
	Subject    string     `db:"subject" json:"subject"`
	Body       string     `db:"body" json:"body"`
	Status     string     `db:"status" json:"status"`
	SentAt     time.Time  `db:"sent_at" json:"sent_at"`
	OpenedAt   *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt  *time.Time `db:"clicked_at" json:"clicked_at,omitempty"`
	Bounced    bool       `db:"bounced" json:"bounced"`
	RepliedAt  *time.Time `db:"replied_at" json:"replied_at,omitempty"`
}
