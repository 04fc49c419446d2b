package queue

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/model"
)

// EventApplier applies one delivery event to the prospect lifecycle.
type EventApplier interface {
	Apply(ctx context.Context, ev model.DeliveryEvent) error
}

// PublishDeliveryEvent encodes ev onto the delivery events topic.
func PublishDeliveryEvent(ctx context.Context, q Queue, ev model.DeliveryEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.Publish(ctx, DeliveryEventsTopic, body)
}

// StartDeliveryEventSubscriber consumes delivery events. Malformed payloads,
// unknown prospects and unknown event types are dropped; store errors are
// retried by the queue.
func StartDeliveryEventSubscriber(q Queue, applier EventApplier, log *zap.Logger) error {
	return q.Subscribe(DeliveryEventsTopic, func(ctx context.Context, body []byte) error {
		var ev model.DeliveryEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			log.Warn("Invalid delivery event payload", zap.Error(err))
			return nil
		}
		if ev.ProspectID == "" {
			log.Warn("Delivery event without prospect tag", zap.String("type", string(ev.Type)))
			return nil
		}

		if err := applier.Apply(ctx, ev); err != nil {
			if errors.Is(err, appErrors.ErrNotFound) || errors.Is(err, appErrors.ErrUnknownEvent) {
				log.Warn("Dropping delivery event", zap.String("prospect_id", ev.ProspectID), zap.Error(err))
				return nil
			}
			log.Warn("Failed to apply delivery event",
				zap.String("type", string(ev.Type)),
				zap.String("prospect_id", ev.ProspectID),
				zap.Error(err))
			return err
		}
		log.Debug("Delivery event applied",
			zap.String("type", string(ev.Type)),
			zap.String("prospect_id", ev.ProspectID))
		return nil
	})
}
