// Package memory is an in-process AuctionStore. Writers on one auction are
// serialized by a per-auction mutex; readers load immutable snapshots and
// never wait on a writer.
package memory

import (
	"context"
	"fmt"
	"live-auction/internal/domain"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Store struct {
	mu       sync.RWMutex
	auctions map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	snap atomic.Pointer[domain.Auction]
	bids atomic.Pointer[[]*domain.Bid]
}

func NewStore() *Store {
	return &Store{auctions: make(map[string]*entry)}
}

func (s *Store) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[auction.ID]; exists {
		return fmt.Errorf("auction %s already exists", auction.ID)
	}
	e := &entry{}
	e.snap.Store(auction.Clone())
	e.bids.Store(&[]*domain.Bid{})
	s.auctions[auction.ID] = e
	return nil
}

func (s *Store) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	e, err := s.get(auctionID)
	if err != nil {
		return nil, err
	}
	return e.snap.Load().Clone(), nil
}

func (s *Store) ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	e, err := s.get(auctionID)
	if err != nil {
		return nil, err
	}
	bids := copyBids(*e.bids.Load())
	sortBids(bids)
	return bids, nil
}

func (s *Store) PlaceBid(ctx context.Context, bid *domain.Bid, check domain.BidCheck) (*domain.Auction, error) {
	e, err := s.get(bid.AuctionID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.snap.Load()
	if err := check(current.Clone()); err != nil {
		return nil, err
	}

	next := current.Clone()
	next.CurrentPrice = bid.Amount
	next.BidCount++
	next.Version++
	next.UpdatedAt = bid.CreatedAt

	stored := *bid
	bids := append(copyBids(*e.bids.Load()), &stored)
	e.snap.Store(next)
	e.bids.Store(&bids)
	return next.Clone(), nil
}

func (s *Store) MarkEnded(ctx context.Context, auctionID string, now time.Time) (*domain.Auction, bool, error) {
	e, err := s.get(auctionID)
	if err != nil {
		return nil, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.snap.Load()
	if current.Status == domain.AuctionEnded || current.EndTime.After(now) {
		return current.Clone(), false, nil
	}

	next := current.Clone()
	next.Status = domain.AuctionEnded
	next.Version++
	next.UpdatedAt = now
	e.snap.Store(next)
	return next.Clone(), true, nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Auction, error) {
	var out []*domain.Auction
	for _, a := range s.all() {
		if a.Status == domain.AuctionActive && !a.EndTime.After(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListAuctionsByOwner(ctx context.Context, ownerID string) ([]*domain.Auction, error) {
	var out []*domain.Auction
	for _, a := range s.all() {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListAuctionsBidOn(ctx context.Context, bidderID string) ([]*domain.BidOnSummary, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.auctions))
	for _, e := range s.auctions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []*domain.BidOnSummary
	for _, e := range entries {
		// PlaceBid stores snap before bids, so loading bids first yields a
		// snapshot at least as new as every bid seen.
		bids := *e.bids.Load()
		auction := e.snap.Load().Clone()

		var row *domain.BidOnSummary
		for _, b := range bids {
			if b.BidderID != bidderID {
				continue
			}
			if row == nil {
				row = &domain.BidOnSummary{Auction: auction}
			}
			if b.Amount.GreaterThan(row.MyTopBid) {
				row.MyTopBid = b.Amount
			}
			if b.CreatedAt.After(row.LastBidAt) {
				row.LastBidAt = b.CreatedAt
			}
		}
		if row != nil {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastBidAt.After(out[j].LastBidAt) })
	return out, nil
}

func (s *Store) get(auctionID string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.auctions[auctionID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return e, nil
}

func (s *Store) all() []*domain.Auction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Auction, 0, len(s.auctions))
	for _, e := range s.auctions {
		out = append(out, e.snap.Load().Clone())
	}
	return out
}

func copyBids(in []*domain.Bid) []*domain.Bid {
	out := make([]*domain.Bid, len(in))
	for i, b := range in {
		c := *b
		out[i] = &c
	}
	return out
}

// sortBids orders by amount desc, then earlier first.
func sortBids(bids []*domain.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if c := bids[i].Amount.Cmp(bids[j].Amount); c != 0 {
			return c > 0
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
}
