package kafka

import (
	"context"
	"errors"
	"live-auction/internal/domain"
	"live-auction/pkg/logger"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	ErrBacklogFull    = errors.New("kafka producer backlog full")
	ErrProducerClosed = errors.New("kafka producer closed")
)

// Producer ships committed events to the analytics topic. Publish only
// enqueues; a background loop writes, keyed by auction id so one auction's
// events stay on one partition.
type Producer struct {
	w        *kafka.Writer
	producer string
	log      logger.Logger

	mu     sync.RWMutex
	closed bool
	inbox  chan kafka.Message
	done   chan struct{}
}

func NewProducer(brokers []string, topic string, buf int, producer string, log logger.Logger) *Producer {
	if buf <= 0 {
		buf = 1024
	}
	p := &Producer{
		producer: producer,
		log:      log,
		inbox:    make(chan kafka.Message, buf),
		done:     make(chan struct{}),
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

// Start runs the write loop until Close.
func (p *Producer) Start() {
	go func() {
		defer close(p.done)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				p.log.Error("Failed to write event", "key", string(m.Key), "error", err)
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Error("Failed to close kafka writer", "error", err)
		}
	}()
}

func (p *Producer) Publish(ctx context.Context, event domain.Event) error {
	value, err := domain.EncodeEvent(p.producer, event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(event.AuctionID),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	default:
		return ErrBacklogFull
	}
}

// Close flushes queued events and waits for the writer to finish.
func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()

	<-p.done
}

func (p *Producer) completed(messages []kafka.Message, err error) {
	if err != nil {
		p.log.Error("Kafka delivery failed", "messages", len(messages), "error", err)
	}
}
