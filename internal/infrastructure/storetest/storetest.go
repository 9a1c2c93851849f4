// Package storetest is the behaviour every domain.AuctionStore must share.
// Each driver's tests call Run with a factory returning an empty store.
package storetest

import (
	"context"
	"fmt"
	"live-auction/internal/domain"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// Factory returns an empty store.
type Factory func(t *testing.T) domain.AuctionStore

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s domain.AuctionStore)
	}{
		{"PlaceBid", testPlaceBid},
		{"NotFound", testNotFound},
		{"SnapshotsAreCopies", testSnapshotsAreCopies},
		{"MarkEndedOnce", testMarkEndedOnce},
		{"ListExpired", testListExpired},
		{"BidOrdering", testBidOrdering},
		{"Dashboards", testDashboards},
		{"MaxAmount", testMaxAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func NewAuction(id, owner string, price string, end time.Time) *domain.Auction {
	p := decimal.RequireFromString(price)
	return &domain.Auction{
		ID:            id,
		Title:         "Lamp",
		Description:   "brass",
		StartingPrice: p,
		CurrentPrice:  p,
		EndTime:       end,
		OwnerID:       owner,
		Status:        domain.AuctionActive,
		Version:       1,
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
}

func higherThanCurrent(amount decimal.Decimal) domain.BidCheck {
	return func(current *domain.Auction) error {
		if !amount.GreaterThan(current.CurrentPrice) {
			return &domain.ValidationError{Err: domain.ErrBidTooLow}
		}
		return nil
	}
}

func testPlaceBid(t *testing.T, s domain.AuctionStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateAuction(ctx, NewAuction("a1", "owner", "100", t0.Add(time.Hour))))

	bid := &domain.Bid{ID: "b1", AuctionID: "a1", BidderID: "u1", Amount: decimal.RequireFromString("105"), CreatedAt: t0}
	updated, err := s.PlaceBid(ctx, bid, higherThanCurrent(bid.Amount))
	require.NoError(t, err)
	assert.True(t, updated.CurrentPrice.Equal(decimal.RequireFromString("105")))
	assert.Equal(t, 1, updated.BidCount)
	assert.Equal(t, int64(2), updated.Version)

	low := &domain.Bid{ID: "b2", AuctionID: "a1", BidderID: "u2", Amount: decimal.RequireFromString("104"), CreatedAt: t0}
	_, err = s.PlaceBid(ctx, low, higherThanCurrent(low.Amount))
	require.ErrorIs(t, err, domain.ErrBidTooLow)

	got, err := s.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)

	bids, err := s.ListBids(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, "b1", bids[0].ID)
}

// The largest accepted amount must survive a round trip through the money
// columns unchanged.
func testMaxAmount(t *testing.T, s domain.AuctionStore) {
	ctx := context.Background()
	top := decimal.RequireFromString("9999999999.99")
	require.NoError(t, s.CreateAuction(ctx, NewAuction("big", "owner", "9999999999.98", t0.Add(time.Hour))))

	bid := &domain.Bid{ID: "b-max", AuctionID: "big", BidderID: "u1", Amount: top, CreatedAt: t0}
	updated, err := s.PlaceBid(ctx, bid, higherThanCurrent(top))
	require.NoError(t, err)
	assert.True(t, updated.CurrentPrice.Equal(top))

	got, err := s.GetAuction(ctx, "big")
	require.NoError(t, err)
	assert.True(t, got.CurrentPrice.Equal(top), got.CurrentPrice.String())
	assert.True(t, got.StartingPrice.Equal(decimal.RequireFromString("9999999999.98")))

	bids, err := s.ListBids(ctx, "big")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Amount.Equal(top))
}

func testNotFound(t *testing.T, s domain.AuctionStore) {
	ctx := context.Background()

	_, err := s.GetAuction(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
	// SQL stores answer an empty list; the ledger turns that into not found
	bids, err := s.ListBids(ctx, "missing")
	if err != nil {
		require.ErrorIs(t, err, domain.ErrAuctionNotFound)
	}
	assert.Empty(t, bids)
	_, _, err = s.MarkEnded(ctx, "missing", t0)
	require.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func testSnapshotsAreCopies(t *testing.T, s domain.AuctionStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateAuction(ctx, NewAuction("a1", "owner", "10", t0.Add(time.Hour))))

	got, err := s.GetAuction(ctx, "a1")
	require.NoError(t, err)
	got.CurrentPrice = decimal.RequireFromString("999")

	again, err := s.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, again.CurrentPrice.Equal(decimal.RequireFromString("10")))
}

func testMarkEndedOnce(t *testing.T, s domain.AuctionStore) {
	ctx := context.Background()
	end := t0.Add(time.Hour)
	require.NoError(t, s.CreateAuction(ctx, NewAuction("a1", "owner", "10", end)))

	_, changed, err := s.MarkEnded(ctx, "a1", end.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, changed, "not yet expired")

	var wg sync.WaitGroup
	var mu sync.Mutex
	flips := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := s.MarkEnded(ctx, "a1", end)
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				flips++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, flips)

	got, err := s.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionEnded, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func testListExpired(t *testing.T, s domain.AuctionStore) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("a%d", i)
		require.NoError(t, s.CreateAuction(ctx, NewAuction(id, "owner", "10", t0.Add(time.Duration(i)*time.Minute))))
	}

	expired, err := s.ListExpired(ctx, t0.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, expired, 3)
	assert.Equal(t, "a0", expired[0].ID)

	limited, err := s.ListExpired(ctx, t0.Add(10*time.Minute), 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func testBidOrdering(t *testing.T, s domain.AuctionStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateAuction(ctx, NewAuction("a1", "owner", "1", t0.Add(time.Hour))))

	accept := func(*domain.Auction) error { return nil }
	amounts := []string{"5", "9", "9", "7"}
	for i, amt := range amounts {
		_, err := s.PlaceBid(ctx, &domain.Bid{
			ID:        fmt.Sprintf("b%d", i),
			AuctionID: "a1",
			BidderID:  "u",
			Amount:    decimal.RequireFromString(amt),
			CreatedAt: t0.Add(time.Duration(i) * time.Second),
		}, accept)
		require.NoError(t, err)
	}

	bids, err := s.ListBids(ctx, "a1")
	require.NoError(t, err)
	ids := make([]string, len(bids))
	for i, b := range bids {
		ids[i] = b.ID
	}
	assert.Equal(t, []string{"b1", "b2", "b3", "b0"}, ids)
}

func testDashboards(t *testing.T, s domain.AuctionStore) {
	ctx := context.Background()
	a1 := NewAuction("a1", "alice", "10", t0.Add(time.Hour))
	a2 := NewAuction("a2", "alice", "10", t0.Add(time.Hour))
	a2.CreatedAt = t0.Add(time.Minute)
	a3 := NewAuction("a3", "carol", "10", t0.Add(time.Hour))
	for _, a := range []*domain.Auction{a1, a2, a3} {
		require.NoError(t, s.CreateAuction(ctx, a))
	}

	owned, err := s.ListAuctionsByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "a2", owned[0].ID)

	place := func(id, auction, bidder, amt string, at time.Time) {
		_, err := s.PlaceBid(ctx, &domain.Bid{ID: id, AuctionID: auction, BidderID: bidder, Amount: decimal.RequireFromString(amt), CreatedAt: at}, func(*domain.Auction) error { return nil })
		require.NoError(t, err)
	}
	place("b1", "a1", "bob", "11", t0.Add(time.Minute))
	place("b2", "a1", "bob", "13", t0.Add(2*time.Minute))
	place("b3", "a3", "bob", "12", t0.Add(3*time.Minute))
	place("b4", "a3", "dave", "20", t0.Add(4*time.Minute))

	rows, err := s.ListAuctionsBidOn(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a3", rows[0].Auction.ID)
	assert.True(t, rows[0].MyTopBid.Equal(decimal.RequireFromString("12")))
	assert.True(t, rows[1].MyTopBid.Equal(decimal.RequireFromString("13")))
	assert.True(t, t0.Add(2*time.Minute).Equal(rows[1].LastBidAt))
}
