package kafka

import (
	"context"
	"live-auction/internal/domain"
	"live-auction/pkg/logger"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// reader is the part of *kafka.Reader the consumer uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	minRetryDelay = 200 * time.Millisecond
	maxRetryDelay = 10 * time.Second
)

type Consumer struct {
	r          reader
	workers    int
	retryDelay time.Duration
	log        logger.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log logger.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r reader, workers int, log logger.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, retryDelay: minRetryDelay, log: log}
}

// Start dispatches messages to h until ctx is done. Each partition is owned
// by one worker, so offsets are handled and committed in order. A failing
// message is retried with backoff and holds back its partition until it
// succeeds; nothing after it is committed first.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 256)
		wg.Add(1)
		go func(jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				if !c.handle(ctx, h, m) {
					return
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					c.log.Error("Failed to commit offset", "partition", m.Partition, "offset", m.Offset, "error", err)
				}
			}
		}(lanes[i])
	}
	defer wg.Wait()
	defer func() {
		for _, l := range lanes {
			close(l)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// handle runs h until it succeeds. It returns false when ctx ends first; the
// message stays uncommitted and is redelivered after a restart.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) bool {
	delay := c.retryDelay
	for {
		err := h(ctx, m)
		if err == nil {
			return true
		}
		c.log.Error("Failed to handle message", "partition", m.Partition, "offset", m.Offset, "retry_in", delay.String(), "error", err)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// EventHandler adapts a domain handler to raw messages. Malformed payloads
// are logged and acknowledged so one bad record cannot wedge the partition.
func EventHandler(log logger.Logger, handle func(ctx context.Context, env domain.Envelope) error) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		env, err := domain.DecodeEvent(m.Value)
		if err != nil {
			log.Warn("Dropping malformed event", "offset", m.Offset, "error", err)
			return nil
		}
		return handle(ctx, env)
	}
}
