package services

import (
	"context"
	"errors"
	"live-auction/internal/domain"
	"live-auction/pkg/logger"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySubscriber fails its first Subscribe, then delivers events and
// blocks until cancelled.
type flakySubscriber struct {
	calls  atomic.Int32
	events []domain.Event
}

func (s *flakySubscriber) Subscribe(ctx context.Context, handler domain.EventHandler) error {
	if s.calls.Add(1) == 1 {
		return errors.New("connection refused")
	}
	for _, e := range s.events {
		if err := handler(ctx, e); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

func TestEventRelay_ResubscribesAndForwards(t *testing.T) {
	sub := &flakySubscriber{events: []domain.Event{
		{ID: "a-1", Type: domain.AuctionUpdated, AuctionID: "a", Version: 1},
		{ID: "a-2", Type: domain.BidAccepted, AuctionID: "a", Version: 2},
	}}
	local := &recordingPublisher{}
	relay := NewEventRelay(sub, local, logger.NewNop())
	relay.retryDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Start(ctx) }()

	require.Eventually(t, func() bool { return len(local.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), sub.calls.Load())
	assert.Equal(t, "a-2", local.snapshot()[1].ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
