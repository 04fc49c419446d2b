package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/leadhunter-backend/internal/clock"
	appErrors "github.com/unclebandit/leadhunter-backend/internal/errors"
	"github.com/unclebandit/leadhunter-backend/internal/model"
	"github.com/unclebandit/leadhunter-backend/internal/repository"
)

// DeliveryEventService applies asynchronous delivery notifications to the
// prospect and its latest sent email.
type DeliveryEventService struct {
	Store *repository.Store
	Clock clock.Clock
	Log   *zap.Logger
}

func (s *DeliveryEventService) Apply(ctx context.Context, ev model.DeliveryEvent) error {
	p, err := s.Store.Prospects.GetByID(ctx, ev.ProspectID)
	if err != nil {
		return err
	}
	at := ev.OccurredAt
	if at.IsZero() {
		at = s.Clock.Now()
	}

	switch ev.Type {
	case model.EventDelivered:
	case model.EventOpened:
		err = s.Store.Prospects.MarkOpened(ctx, p.ID)
	case model.EventClicked:
		err = s.Store.Prospects.MarkClicked(ctx, p.ID)
	case model.EventBounced:
		err = s.Store.Prospects.MarkBounced(ctx, p.ID)
	case model.EventReplied:
		_, err = s.Store.Prospects.MarkReplied(ctx, p.ID)
	default:
		return fmt.Errorf("%w: %q", appErrors.ErrUnknownEvent, ev.Type)
	}
	if err != nil {
		return fmt.Errorf("apply %s to prospect %s: %w", ev.Type, p.ID, err)
	}

	if err := s.Store.SentEmails.StampEvent(ctx, p.ID, ev.DraftID, ev.Type, at); err != nil {
		return fmt.Errorf("stamp %s on sent email: %w", ev.Type, err)
	}
	s.Log.Info("Delivery event applied",
		zap.String("type", string(ev.Type)),
		zap.String("prospect_id", p.ID),
		zap.String("email_draft_id", ev.DraftID))
	return nil
}
