package services

import (
	"context"
	"live-auction/internal/domain"
	"live-auction/pkg/logger"
	"time"
)

const relayRetryDelay = 2 * time.Second

// EventRelay feeds events committed on other instances into the local
// publisher, normally the feed hub. Ordering and duplicates are the hub's
// concern.
type EventRelay struct {
	subscriber domain.EventSubscriber
	local      domain.EventPublisher
	retryDelay time.Duration
	log        logger.Logger
}

func NewEventRelay(subscriber domain.EventSubscriber, local domain.EventPublisher, log logger.Logger) *EventRelay {
	return &EventRelay{
		subscriber: subscriber,
		local:      local,
		retryDelay: relayRetryDelay,
		log:        log,
	}
}

// Start relays until ctx is cancelled, resubscribing after failures.
func (r *EventRelay) Start(ctx context.Context) error {
	r.log.Info("Starting event relay")
	for {
		err := r.subscriber.Subscribe(ctx, r.handleEvent)
		if ctx.Err() != nil {
			r.log.Info("Event relay stopped")
			return nil
		}
		if err != nil {
			r.log.Error("Event subscription failed", "error", err, "retry_in", r.retryDelay.String())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.retryDelay):
		}
	}
}

func (r *EventRelay) handleEvent(ctx context.Context, event domain.Event) error {
	r.log.Debug("Relaying event", "type", string(event.Type), "auction_id", event.AuctionID, "version", event.Version)
	return r.local.Publish(ctx, event)
}
