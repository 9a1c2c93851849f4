package redis

import (
	"context"
	"errors"
	"live-auction/internal/domain"
	"live-auction/pkg/logger"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var (
	ErrBacklogFull     = errors.New("redis relay backlog full")
	ErrPublisherClosed = errors.New("redis relay publisher closed")
)

const publishTimeout = 2 * time.Second

// EventPublisher relays committed events to the other instances. Publish
// runs while the ledger holds the auction's lane, so it only enqueues; a
// background loop talks to Redis in commit order.
type EventPublisher struct {
	client   *redis.Client
	channel  string
	producer string
	log      logger.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	inbox   chan []byte
	done    chan struct{}
}

func NewEventPublisher(client *redis.Client, channel, producer string, buf int, log logger.Logger) *EventPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	if buf <= 0 {
		buf = 1024
	}
	return &EventPublisher{
		client:   client,
		channel:  channel,
		producer: producer,
		log:      log,
		inbox:    make(chan []byte, buf),
		done:     make(chan struct{}),
	}
}

// Start runs the publish loop until Close.
func (p *EventPublisher) Start() {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		for data := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
				p.log.Error("Failed to relay event", "channel", p.channel, "error", err)
			}
			cancel()
		}
	}()
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) error {
	data, err := domain.EncodeEvent(p.producer, event)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.inbox <- data:
		return nil
	default:
		return ErrBacklogFull
	}
}

// Close drains queued events and waits for the loop to finish.
func (p *EventPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	close(p.inbox)
	p.mu.Unlock()

	if started {
		<-p.done
	}
}
