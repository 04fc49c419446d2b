package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/clock"
	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/lifecycle"
	"github.com/unclebandit/leadhunter-backend/internal/logger"
	"github.com/unclebandit/leadhunter-backend/internal/mailer"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
)

// Identity is the sender shown on outgoing email and its signature.
type Identity struct {
	FromName       string
	FromEmail      string
	Title          string
	BookingURL     string
	UnsubscribeURL string
}

// DispatchPolicy holds the platform-wide sending rules.
type DispatchPolicy struct {
	// PlatformDailyLimit caps sends across all campaigns since local
	// midnight. Zero disables the cap.
	PlatformDailyLimit int
	Cooldown           time.Duration
}

// Dispatcher is the single path by which email leaves the system. It
// re-validates the prospect, enforces the platform cap, renders, sends with
// tracking tags, and writes the sent record.
type Dispatcher struct {
	Store  *repository.Store
	Mail   mailer.Sender
	Clock  clock.Clock
	Log    *zap.Logger
	From   Identity
	Policy DispatchPolicy
}

func (d *Dispatcher) Configured() bool {
	return d != nil && d.Mail != nil && d.From.FromEmail != ""
}

func (d *Dispatcher) cooldown() time.Duration {
	if d.Policy.Cooldown <= 0 {
		return lifecycle.DefaultCooldown
	}
	return d.Policy.Cooldown
}

// SendClaimTTL is how long a send claim holds before another run may take it
// over, for a process that died between claim and send.
const SendClaimTTL = 15 * time.Minute

// release drops the send claim after a send that did not go out.
func (d *Dispatcher) release(ctx context.Context, prospectID string) {
	if err := d.Store.Prospects.ReleaseSend(context.WithoutCancel(ctx), prospectID); err != nil {
		d.Log.Warn("Failed to release send claim", zap.String("prospect_id", prospectID), zap.Error(err))
	}
}

// Dispatch sends subject/body to the prospect. draft may be nil.
func (d *Dispatcher) Dispatch(ctx context.Context, p *model.Prospect, draft *model.EmailDraft, subject, body string) (*model.SentEmail, error) {
	if !d.Configured() {
		return nil, appErrors.ErrNotConfigured
	}
	now := d.Clock.Now()
	if err := lifecycle.CheckSendable(p, now, d.cooldown()); err != nil {
		return nil, err
	}

	if d.Policy.PlatformDailyLimit > 0 {
		sent, err := d.Store.SentEmails.CountSince(ctx, lifecycle.Midnight(now))
		if err != nil {
			return nil, fmt.Errorf("count platform sends: %w", err)
		}
		if sent >= d.Policy.PlatformDailyLimit {
			return nil, appErrors.ErrPlatformLimit
		}
	}

	htmlBody, textBody := mailer.Render(body, mailer.Signature{
		FromName:       d.From.FromName,
		Title:          d.From.Title,
		BookingURL:     d.From.BookingURL,
		UnsubscribeURL: d.From.UnsubscribeURL,
	})
	tags := map[string]string{mailer.TagProspectID: p.ID}
	var draftID *string
	if draft != nil {
		tags[mailer.TagDraftID] = draft.ID
		id := draft.ID
		draftID = &id
	}

	to := model.NormalizeEmail(p.Email)
	messageID, err := d.Mail.Send(ctx, mailer.Message{
		To:        to,
		FromName:  d.From.FromName,
		FromEmail: d.From.FromEmail,
		Subject:   subject,
		HTML:      htmlBody,
		Text:      textBody,
		Tags:      tags,
	})
	if err != nil {
		return nil, err
	}

	rec := &model.SentEmail{
		ProspectID: p.ID,
		CampaignID: p.CampaignID,
		DraftID:    draftID,
		MessageID:  messageID,
		Subject:    subject,
		Body:       body,
		SentAt:     now,
	}
	// the email is already out; bookkeeping failures are logged, not returned
	if err := d.Store.SentEmails.Create(ctx, rec); err != nil {
		d.Log.Error("Failed to record sent email", zap.String("prospect_id", p.ID), zap.Error(err))
	}
	if draft != nil {
		if err := d.Store.Drafts.MarkSent(ctx, draft.ID, now); err != nil {
			d.Log.Warn("Failed to mark draft sent", zap.String("draft_id", draft.ID), zap.Error(err))
		}
	}

	d.Log.Info("Email dispatched",
		zap.String("prospect_id", p.ID),
		logger.Recipient(to),
		zap.String("message_id", messageID))
	return rec, nil
}
