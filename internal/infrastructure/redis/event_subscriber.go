package redis

import (
	"context"
	"live-auction/internal/domain"
	"live-auction/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// EventSubscriber feeds events relayed by other instances to handler.
// Messages this instance published itself are skipped; they were already
// delivered locally.
type EventSubscriber struct {
	client  *redis.Client
	channel string
	self    string
	log     logger.Logger
}

func NewEventSubscriber(client *redis.Client, channel, self string, log logger.Logger) *EventSubscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &EventSubscriber{
		client:  client,
		channel: channel,
		self:    self,
		log:     log,
	}
}

// Subscribe blocks until ctx is done.
func (s *EventSubscriber) Subscribe(ctx context.Context, handler domain.EventHandler) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()

	s.log.Info("Subscribed to auction events", "channel", s.channel)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.dispatch(ctx, msg.Payload, handler)

		case <-ctx.Done():
			s.log.Info("Event subscriber stopped")
			return nil
		}
	}
}

func (s *EventSubscriber) dispatch(ctx context.Context, payload string, handler domain.EventHandler) {
	env, err := domain.DecodeEvent([]byte(payload))
	if err != nil {
		s.log.Error("Failed to parse event", "payload", payload, "error", err)
		return
	}
	if env.Producer == s.self {
		return
	}
	if err := handler(ctx, env.Event); err != nil {
		s.log.Error("Failed to handle event", "event_id", env.Event.ID, "error", err)
	}
}
