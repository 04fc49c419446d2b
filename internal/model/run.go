// internal/model/run.go
package model

import "time"

type RunType string

const (
	RunHunt     RunType = "hunt"
	RunEmail    RunType = "email"
	RunFollowup RunType = "followup"
)

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// CampaignRun is an append-only ledger entry for one stage execution.
type CampaignRun struct {
	ID            string    `db:"id" json:"id"`
	CampaignID    string    `db:"campaign_id" json:"campaign_id"`
	RunType       RunType   `db:"run_type" json:"run_type"`
	Status        RunStatus `db:"status" json:"status"`
	ResultSummary string    `db:"result_summary" json:"result_summary"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// DeliveryEventType is the kind of asynchronous delivery notification.
type DeliveryEventType string

const (
	EventDelivered DeliveryEventType = "delivered"
	EventOpened    DeliveryEventType = "opened"
	EventClicked   DeliveryEventType = "clicked"
	EventBounced   DeliveryEventType = "bounced"
	EventReplied   DeliveryEventType = "replied"
)

type DeliveryEvent struct {
	Type       DeliveryEventType `json:"type"`
	ProspectID string            `json:"prospect_id"`
	DraftID    string            `json:"email_draft_id,omitempty"`
	MessageID  string            `json:"message_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
