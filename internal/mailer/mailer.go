// Package mailer delivers outreach email.
package mailer

import (
	"context"
	"errors"
)

// ErrRejected wraps a provider refusal of a single message.
var ErrRejected = errors.New("message rejected by provider")

// Tag names attached to every send; delivery events echo them back.
const (
	TagProspectID = "prospect_id"
	TagDraftID    = "email_draft_id"
)

type Message struct {
	To        string
	FromName  string
	FromEmail string
	Subject   string
	HTML      string
	Text      string
	Tags      map[string]string
}

// Sender is the MailSender contract: deliver one message and return the
// provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}
