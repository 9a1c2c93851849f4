package feed

import (
	"context"
	"live-auction/internal/domain"
	"live-auction/pkg/logger"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	h, err := NewHub(opts, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return h
}

func auctionEvent(auctionID, owner string, version int64, status domain.AuctionStatus) domain.Event {
	return domain.Event{
		ID:        auctionID,
		Type:      domain.AuctionUpdated,
		AuctionID: auctionID,
		Version:   version,
		Auction: &domain.Auction{
			ID:      auctionID,
			OwnerID: owner,
			Status:  status,
			Version: version,
		},
	}
}

func bidEvent(auctionID, owner, bidder string, version int64) domain.Event {
	e := auctionEvent(auctionID, owner, version, domain.AuctionActive)
	e.Type = domain.BidAccepted
	e.Bid = &domain.Bid{ID: "bid", AuctionID: auctionID, BidderID: bidder, Amount: decimal.NewFromInt(version)}
	return e
}

func receive(t *testing.T, sub *Subscription) domain.Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return domain.Event{}
}

func requireClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case _, ok := <-sub.Events():
		require.False(t, ok, "expected closed subscription")
	case <-time.After(time.Second):
		t.Fatal("subscription still open")
	}
}

func requireNothing(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		t.Fatalf("unexpected delivery: %+v (open=%v)", e, ok)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestHub_AuctionFilter(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Options{})

	sub, err := h.Subscribe(ctx, ForAuction("a1"))
	require.NoError(t, err)

	require.NoError(t, h.Publish(ctx, auctionEvent("a1", "owner", 1, domain.AuctionActive)))
	require.NoError(t, h.Publish(ctx, auctionEvent("a2", "owner", 1, domain.AuctionActive)))
	require.NoError(t, h.Publish(ctx, bidEvent("a1", "owner", "bob", 2)))

	assert.Equal(t, int64(1), receive(t, sub).Version)
	e := receive(t, sub)
	assert.Equal(t, domain.BidAccepted, e.Type)
	assert.Equal(t, int64(2), e.Version)
	requireNothing(t, sub)
}

func TestHub_Duplicates(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Options{})
	sub, err := h.Subscribe(ctx, ForAuction("a1"))
	require.NoError(t, err)

	e := bidEvent("a1", "owner", "bob", 2)
	h.Prime("a1", 1)
	require.NoError(t, h.Publish(ctx, e))
	require.NoError(t, h.Publish(ctx, e))

	assert.Equal(t, int64(2), receive(t, sub).Version)
	requireNothing(t, sub)
}

func TestHub_ReordersOutOfOrderArrivals(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Options{GapTimeout: time.Minute})
	sub, err := h.Subscribe(ctx, ForAuction("a1"))
	require.NoError(t, err)

	h.Prime("a1", 1)
	require.NoError(t, h.Publish(ctx, bidEvent("a1", "owner", "bob", 4)))
	require.NoError(t, h.Publish(ctx, bidEvent("a1", "owner", "bob", 3)))
	requireNothing(t, sub)

	require.NoError(t, h.Publish(ctx, bidEvent("a1", "owner", "bob", 2)))
	for _, want := range []int64{2, 3, 4} {
		assert.Equal(t, want, receive(t, sub).Version)
	}
}

func TestHub_GapTimeoutSkipsAhead(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Options{GapTimeout: 20 * time.Millisecond})
	sub, err := h.Subscribe(ctx, ForAuction("a1"))
	require.NoError(t, err)

	h.Prime("a1", 1)
	require.NoError(t, h.Publish(ctx, bidEvent("a1", "owner", "bob", 3)))

	assert.Equal(t, int64(3), receive(t, sub).Version)
	require.NoError(t, h.Publish(ctx, bidEvent("a1", "owner", "bob", 2)))
	require.NoError(t, h.Publish(ctx, bidEvent("a1", "owner", "bob", 4)))
	assert.Equal(t, int64(4), receive(t, sub).Version)
}

func TestHub_SlowConsumerIsDropped(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Options{BufferSize: 2})

	slow, err := h.Subscribe(ctx, ForAuction("a1"))
	require.NoError(t, err)

	h.Prime("a1", 0)
	require.NoError(t, h.Publish(ctx, auctionEvent("a1", "owner", 1, domain.AuctionActive)))
	require.NoError(t, h.Publish(ctx, bidEvent("a1", "owner", "bob", 2)))

	fast, err := h.Subscribe(ctx, ForAuction("a1"))
	require.NoError(t, err)
	require.NoError(t, h.Publish(ctx, bidEvent("a1", "owner", "bob", 3)))

	assert.Equal(t, int64(3), receive(t, fast).Version)

	// the buffered events are still readable, then the channel is closed
	assert.Equal(t, int64(1), receive(t, slow).Version)
	assert.Equal(t, int64(2), receive(t, slow).Version)
	requireClosed(t, slow)
	assert.ErrorIs(t, slow.Err(), ErrSlowConsumer)
	assert.Equal(t, 1, h.Len())
}

func TestHub_AuctionSubscriptionCompletesOnEnd(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Options{})
	sub, err := h.Subscribe(ctx, ForAuction("a1"))
	require.NoError(t, err)
	user, err := h.Subscribe(ctx, ForUser("owner", ScopeOwned))
	require.NoError(t, err)

	require.NoError(t, h.Publish(ctx, auctionEvent("a1", "owner", 5, domain.AuctionEnded)))

	e := receive(t, sub)
	assert.Equal(t, domain.AuctionEnded, e.Auction.Status)
	requireClosed(t, sub)
	assert.NoError(t, sub.Err())

	assert.Equal(t, int64(5), receive(t, user).Version)
	assert.Equal(t, 1, h.Len(), "user-scoped subscriptions outlive one auction")
}

func TestHub_ContextCancelReleases(t *testing.T) {
	h := newTestHub(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := h.Subscribe(ctx, ForAuction("a1"))
	require.NoError(t, err)
	require.Equal(t, 1, h.Len())

	cancel()
	requireClosed(t, sub)
	assert.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, sub.Err())
}

func TestHub_OwnedScope(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Options{})
	sub, err := h.Subscribe(ctx, ForUser("alice", ScopeOwned))
	require.NoError(t, err)

	require.NoError(t, h.Publish(ctx, auctionEvent("a1", "alice", 1, domain.AuctionActive)))
	require.NoError(t, h.Publish(ctx, auctionEvent("a2", "carol", 1, domain.AuctionActive)))
	require.NoError(t, h.Publish(ctx, bidEvent("a1", "alice", "bob", 2)))

	assert.Equal(t, "a1", receive(t, sub).AuctionID)
	e := receive(t, sub)
	assert.Equal(t, "a1", e.AuctionID)
	assert.Equal(t, domain.BidAccepted, e.Type)
	requireNothing(t, sub)
}

func TestHub_BidOnScope(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Options{})
	sub, err := h.Subscribe(ctx, ForUser("bob", ScopeBidOn, "seeded"))
	require.NoError(t, err)

	require.NoError(t, h.Publish(ctx, bidEvent("seeded", "alice", "dave", 2)))
	assert.Equal(t, "seeded", receive(t, sub).AuctionID)

	// not watched yet
	require.NoError(t, h.Publish(ctx, auctionEvent("a2", "alice", 1, domain.AuctionActive)))
	requireNothing(t, sub)

	// bob bids: a2 joins the watch set
	require.NoError(t, h.Publish(ctx, bidEvent("a2", "alice", "bob", 2)))
	assert.Equal(t, "a2", receive(t, sub).AuctionID)
	require.NoError(t, h.Publish(ctx, bidEvent("a2", "alice", "dave", 3)))
	assert.Equal(t, int64(3), receive(t, sub).Version)
}

func TestHub_InvalidFilter(t *testing.T) {
	h := newTestHub(t, Options{})
	_, err := h.Subscribe(context.Background(), Filter{})
	assert.Error(t, err)
	_, err = h.Subscribe(context.Background(), Filter{UserID: "u", Scope: "everything"})
	assert.Error(t, err)
}

func TestHub_Close(t *testing.T) {
	h, err := NewHub(Options{}, logger.NewNop())
	require.NoError(t, err)
	sub, err := h.Subscribe(context.Background(), ForAuction("a1"))
	require.NoError(t, err)

	h.Close()
	requireClosed(t, sub)
	assert.ErrorIs(t, sub.Err(), ErrHubClosed)
	assert.ErrorIs(t, h.Publish(context.Background(), auctionEvent("a1", "o", 1, domain.AuctionActive)), ErrHubClosed)
	_, err = h.Subscribe(context.Background(), ForAuction("a1"))
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestHub_EvictionFlushesHeldEvents(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Options{SequencerCacheSize: 1, GapTimeout: time.Minute})
	sub, err := h.Subscribe(ctx, ForAuction("a1"))
	require.NoError(t, err)

	h.Prime("a1", 1)
	require.NoError(t, h.Publish(ctx, bidEvent("a1", "owner", "bob", 3)))
	requireNothing(t, sub)

	// a second auction pushes a1's sequencer out of the cache
	require.NoError(t, h.Publish(ctx, auctionEvent("a2", "owner", 1, domain.AuctionActive)))
	assert.Equal(t, int64(3), receive(t, sub).Version)
}

func TestSubscription_Watch(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, Options{})
	sub, err := h.Subscribe(ctx, ForUser("bob", ScopeBidOn))
	require.NoError(t, err)

	require.NoError(t, h.Publish(ctx, auctionEvent("a1", "alice", 1, domain.AuctionActive)))
	requireNothing(t, sub)

	sub.Watch("a1")
	require.NoError(t, h.Publish(ctx, bidEvent("a1", "alice", "dave", 2)))
	assert.Equal(t, int64(2), receive(t, sub).Version)
}
