package services

import (
	"context"
	"errors"
	"live-auction/internal/clock"
	"live-auction/internal/domain"
	"live-auction/internal/domain/mocks"
	"live-auction/pkg/logger"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLedger(t *testing.T) (*Ledger, *mocks.MockAuctionStore, *mocks.MockEventPublisher, *mocks.MockPriceCache) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockAuctionStore(ctrl)
	pub := mocks.NewMockEventPublisher(ctrl)
	cache := mocks.NewMockPriceCache(ctrl)
	ledger := NewLedger(store, cache, NewBidValidator(DefaultMinIncrement), clock.NewManual(now), logger.NewNop(), pub)
	t.Cleanup(ledger.Wait)
	return ledger, store, pub, cache
}

func TestLedger_StoreFailureIsSystemErrorWithoutEvent(t *testing.T) {
	ledger, store, pub, cache := newMockLedger(t)
	a := activeAuction("100")

	cache.EXPECT().Get(gomock.Any(), a.ID).Return(nil, nil)
	store.EXPECT().GetAuction(gomock.Any(), a.ID).Return(a, nil)
	store.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)
	cache.EXPECT().Put(gomock.Any(), gomock.Any()).Times(0)

	_, err := ledger.SubmitBid(context.Background(), domain.BidRequest{AuctionID: a.ID, BidderID: "bob", Amount: dec("150")})
	require.Error(t, err)
	assert.True(t, domain.IsSystem(err))
	assert.False(t, domain.IsValidation(err))
	assert.Equal(t, "internal_error", domain.ReasonOf(err))
}

func TestLedger_LockedRevalidationRejects(t *testing.T) {
	ledger, store, pub, cache := newMockLedger(t)
	stale := activeAuction("100")
	locked := activeAuction("120")

	cache.EXPECT().Get(gomock.Any(), stale.ID).Return(stale, nil)
	store.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, bid *domain.Bid, check domain.BidCheck) (*domain.Auction, error) {
			return nil, check(locked)
		})
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	_, err := ledger.SubmitBid(context.Background(), domain.BidRequest{AuctionID: stale.ID, BidderID: "bob", Amount: dec("110")})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, domain.ErrBidTooLow)
	assert.True(t, verr.MinAmount.Equal(dec("120.01")))
}

func TestLedger_FastRejectSkipsStore(t *testing.T) {
	ledger, store, _, cache := newMockLedger(t)
	cached := activeAuction("200")

	cache.EXPECT().Get(gomock.Any(), cached.ID).Return(cached, nil)
	store.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := ledger.SubmitBid(context.Background(), domain.BidRequest{AuctionID: cached.ID, BidderID: "bob", Amount: dec("150")})
	require.ErrorIs(t, err, domain.ErrBidTooLow)
}

func TestLedger_CacheErrorFallsBackToStore(t *testing.T) {
	ledger, store, pub, cache := newMockLedger(t)
	a := activeAuction("100")
	committed := activeAuction("150")
	committed.Version = 2
	committed.BidCount = 1

	cache.EXPECT().Get(gomock.Any(), a.ID).Return(nil, errors.New("redis down"))
	store.EXPECT().GetAuction(gomock.Any(), a.ID).Return(a, nil)
	store.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, bid *domain.Bid, check domain.BidCheck) (*domain.Auction, error) {
			require.NoError(t, check(a))
			return committed, nil
		})
	cache.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, e domain.Event) error {
			assert.Equal(t, domain.BidAccepted, e.Type)
			assert.Equal(t, int64(2), e.Version)
			assert.Equal(t, a.ID+":2", e.ID)
			return nil
		})

	bid, err := ledger.SubmitBid(context.Background(), domain.BidRequest{AuctionID: a.ID, BidderID: "bob", Amount: dec("150")})
	require.NoError(t, err)
	assert.True(t, bid.Amount.Equal(dec("150")))
}

func TestLedger_CommitIgnoresCallerCancellation(t *testing.T) {
	ledger, store, pub, cache := newMockLedger(t)
	a := activeAuction("100")
	committed := activeAuction("150")
	committed.Version = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache.EXPECT().Get(gomock.Any(), a.ID).Return(a, nil)
	store.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(storeCtx context.Context, bid *domain.Bid, check domain.BidCheck) (*domain.Auction, error) {
			cancel()
			assert.NoError(t, storeCtx.Err(), "commit context must not be cancellable")
			return committed, nil
		})
	cache.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	_, err := ledger.SubmitBid(ctx, domain.BidRequest{AuctionID: a.ID, BidderID: "bob", Amount: dec("150")})
	require.NoError(t, err)
}

func TestLedger_DifferentAuctionsDoNotContend(t *testing.T) {
	ledger, store, pub, cache := newMockLedger(t)
	slow := activeAuction("100")
	slow.ID = "slow"
	fast := activeAuction("100")
	fast.ID = "fast"

	entered := make(chan struct{})
	unblock := make(chan struct{})

	cache.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, id string) (*domain.Auction, error) {
		if id == "slow" {
			return slow, nil
		}
		return fast, nil
	}).Times(2)
	store.EXPECT().PlaceBid(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, bid *domain.Bid, check domain.BidCheck) (*domain.Auction, error) {
			out := activeAuction("150")
			out.ID = bid.AuctionID
			out.Version = 2
			if bid.AuctionID == "slow" {
				close(entered)
				<-unblock
			}
			return out, nil
		}).Times(2)
	cache.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := ledger.SubmitBid(context.Background(), domain.BidRequest{AuctionID: "slow", BidderID: "bob", Amount: dec("150")})
		assert.NoError(t, err)
	}()
	<-entered

	done := make(chan error, 1)
	go func() {
		_, err := ledger.SubmitBid(context.Background(), domain.BidRequest{AuctionID: "fast", BidderID: "bob", Amount: dec("150")})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bid on another auction blocked behind a held lane")
	}
	close(unblock)
	wg.Wait()
}

func TestLedger_CloseSystemError(t *testing.T) {
	ledger, store, pub, _ := newMockLedger(t)

	store.EXPECT().MarkEnded(gomock.Any(), "a1", now).Return(nil, false, errors.New("deadlock"))
	pub.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	_, changed, err := ledger.CloseAuction(context.Background(), "a1")
	require.Error(t, err)
	assert.False(t, changed)
	assert.True(t, domain.IsSystem(err))
}
