// Package handler receives delivery-status webhooks from the mail provider
// and hands them to the delivery_events queue. Nothing is applied inline.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/clock"
	"github.com/unclebandit/leadhunter-backend/internal/httputil"
	"github.com/unclebandit/leadhunter-backend/internal/mailer"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/queue"
)

const maxBody = 1 << 20

// DeliveryHandler accepts two payload shapes: the generic
// {type, created_at, data.tags[]} webhook, and SES event publishing
// notifications, either raw or wrapped in an SNS envelope.
type DeliveryHandler struct {
	Queue queue.Queue
	Clock clock.Clock
	Log   *zap.Logger
	// Confirm is used to GET SNS subscription URLs. When nil the URL is
	// only logged.
	Confirm *http.Client
}

type tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type genericEvent struct {
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
	Data      struct {
		EmailID string `json:"email_id"`
		Tags    []tag  `json:"tags"`
	} `json:"data"`
}

var genericTypes = map[string]model.DeliveryEventType{
	"email.delivered": model.EventDelivered,
	"email.opened":    model.EventOpened,
	"email.clicked":   model.EventClicked,
	"email.bounced":   model.EventBounced,
	"email.replied":   model.EventReplied,
}

func (h *DeliveryHandler) Generic(w http.ResponseWriter, r *http.Request) {
	var body genericEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&body); err != nil {
		httputil.Error(w, h.Log, http.StatusBadRequest, "invalid body")
		return
	}
	typ, ok := genericTypes[body.Type]
	if !ok {
		h.ignore(w, "unhandled event type", zap.String("type", body.Type))
		return
	}
	tags := make(map[string]string, len(body.Data.Tags))
	for _, t := range body.Data.Tags {
		tags[t.Name] = t.Value
	}
	ev := model.DeliveryEvent{
		Type:       typ,
		ProspectID: tags[mailer.TagProspectID],
		DraftID:    tags[mailer.TagDraftID],
		MessageID:  body.Data.EmailID,
		OccurredAt: h.parseTime(body.CreatedAt),
	}
	h.publish(r.Context(), w, ev)
}

type snsEnvelope struct {
	Type         string `json:"Type"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
	TopicArn     string `json:"TopicArn"`
}

type sesEvent struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string              `json:"messageId"`
		Timestamp string              `json:"timestamp"`
		Tags      map[string][]string `json:"tags"`
	} `json:"mail"`
	Bounce *struct {
		BounceType string `json:"bounceType"`
		Timestamp  string `json:"timestamp"`
	} `json:"bounce"`
	Open *struct {
		Timestamp string `json:"timestamp"`
	} `json:"open"`
	Click *struct {
		Timestamp string `json:"timestamp"`
	} `json:"click"`
	Delivery *struct {
		Timestamp string `json:"timestamp"`
	} `json:"delivery"`
}

func (h *DeliveryHandler) SES(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		httputil.Error(w, h.Log, http.StatusBadRequest, "failed to read body")
		return
	}

	var env snsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		httputil.Error(w, h.Log, http.StatusBadRequest, "invalid body")
		return
	}
	switch env.Type {
	case "SubscriptionConfirmation":
		h.confirm(r.Context(), env)
		httputil.OK(w, h.Log, map[string]bool{"success": true})
		return
	case "Notification":
		raw = []byte(env.Message)
	}

	var ses sesEvent
	if err := json.Unmarshal(raw, &ses); err != nil {
		// SNS retries on non-2xx; a payload we cannot parse will never succeed
		h.ignore(w, "unparseable SES notification", zap.Error(err))
		return
	}
	ev, ok := h.fromSES(ses)
	if !ok {
		h.ignore(w, "unhandled SES event", zap.String("type", ses.EventType+ses.NotificationType))
		return
	}
	h.publish(r.Context(), w, ev)
}

func (h *DeliveryHandler) fromSES(ses sesEvent) (model.DeliveryEvent, bool) {
	kind := ses.EventType
	if kind == "" {
		kind = ses.NotificationType
	}
	ev := model.DeliveryEvent{
		ProspectID: first(ses.Mail.Tags[mailer.TagProspectID]),
		DraftID:    first(ses.Mail.Tags[mailer.TagDraftID]),
		MessageID:  ses.Mail.MessageID,
	}
	var at string
	switch kind {
	case "Delivery":
		ev.Type = model.EventDelivered
		if ses.Delivery != nil {
			at = ses.Delivery.Timestamp
		}
	case "Open":
		ev.Type = model.EventOpened
		if ses.Open != nil {
			at = ses.Open.Timestamp
		}
	case "Click":
		ev.Type = model.EventClicked
		if ses.Click != nil {
			at = ses.Click.Timestamp
		}
	case "Bounce":
		// transient bounces are retried by SES and do not suppress the address
		if ses.Bounce != nil && ses.Bounce.BounceType == "Transient" {
			return ev, false
		}
		ev.Type = model.EventBounced
		if ses.Bounce != nil {
			at = ses.Bounce.Timestamp
		}
	default:
		return ev, false
	}
	if at == "" {
		at = ses.Mail.Timestamp
	}
	ev.OccurredAt = h.parseTime(at)
	return ev, true
}

func first(vs []string) string {
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func (h *DeliveryHandler) parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return h.Clock.Now()
}

func (h *DeliveryHandler) publish(ctx context.Context, w http.ResponseWriter, ev model.DeliveryEvent) {
	if ev.ProspectID == "" {
		h.ignore(w, "event without prospect tag", zap.String("type", string(ev.Type)), zap.String("message_id", ev.MessageID))
		return
	}
	if err := queue.PublishDeliveryEvent(ctx, h.Queue, ev); err != nil {
		h.Log.Error("Failed to enqueue delivery event", zap.String("prospect_id", ev.ProspectID), zap.Error(err))
		httputil.Error(w, h.Log, http.StatusInternalServerError, "failed to enqueue event")
		return
	}
	httputil.JSON(w, h.Log, http.StatusAccepted, map[string]bool{"success": true})
}

func (h *DeliveryHandler) ignore(w http.ResponseWriter, msg string, fields ...zap.Field) {
	h.Log.Info("Delivery webhook ignored: "+msg, fields...)
	httputil.OK(w, h.Log, map[string]any{"success": true, "ignored": true})
}

// confirm follows an SNS SubscribeURL, restricted to https amazonaws.com hosts.
func (h *DeliveryHandler) confirm(ctx context.Context, env snsEnvelope) {
	u, err := url.Parse(env.SubscribeURL)
	if err != nil || u.Scheme != "https" || !strings.HasSuffix(u.Hostname(), ".amazonaws.com") {
		h.Log.Warn("Rejected SNS subscription URL", zap.String("url", env.SubscribeURL))
		return
	}
	if h.Confirm == nil {
		h.Log.Info("SNS subscription pending confirmation", zap.String("topic_arn", env.TopicArn), zap.String("url", env.SubscribeURL))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return
	}
	resp, err := h.Confirm.Do(req)
	if err != nil {
		h.Log.Warn("SNS subscription confirmation failed", zap.Error(err))
		return
	}
	resp.Body.Close()
	h.Log.Info("SNS subscription confirmed", zap.String("topic_arn", env.TopicArn), zap.Int("status", resp.StatusCode))
}
