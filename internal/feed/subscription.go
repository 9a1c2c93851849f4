package feed

import (
	"errors"
	"fmt"
	"live-auction/internal/domain"
)

var (
	// ErrSlowConsumer ends a subscription whose buffer overflowed. The client
	// should fetch a fresh snapshot and subscribe again.
	ErrSlowConsumer = errors.New("subscriber fell behind")
	ErrHubClosed    = errors.New("hub closed")
)

type Scope string

const (
	ScopeOwned Scope = "owned"
	ScopeBidOn Scope = "bid_on"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeOwned, ScopeBidOn:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// Filter selects events for a subscription: either one auction, or the
// auctions a user owns or has bid on.
type Filter struct {
	AuctionID string
	UserID    string
	Scope     Scope
	// Seed lists auctions already in scope at subscribe time.
	Seed []string
}

func ForAuction(auctionID string) Filter {
	return Filter{AuctionID: auctionID}
}

func ForUser(userID string, scope Scope, seed ...string) Filter {
	return Filter{UserID: userID, Scope: scope, Seed: seed}
}

func (f Filter) validate() error {
	if f.AuctionID != "" {
		return nil
	}
	if f.UserID == "" {
		return errors.New("filter needs an auction id or a user id")
	}
	if _, err := ParseScope(string(f.Scope)); err != nil {
		return err
	}
	return nil
}

// Subscription is a live, buffered event stream. Events is closed when the
// subscription ends; Err then reports why (nil on normal completion).
type Subscription struct {
	id     uint64
	filter Filter
	ch     chan domain.Event
	hub    *Hub

	// guarded by hub.mu
	watch  map[string]struct{}
	err    error
	closed bool
	stop   func() bool
}

func (s *Subscription) Events() <-chan domain.Event { return s.ch }

func (s *Subscription) Err() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.err
}

func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.closeLocked(s, nil)
}

// Watch adds auctions to a bid_on subscription's scope.
func (s *Subscription) Watch(auctionIDs ...string) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	for _, id := range auctionIDs {
		s.watch[id] = struct{}{}
	}
}

func (s *Subscription) matches(e domain.Event) bool {
	if s.filter.AuctionID != "" {
		return e.AuctionID == s.filter.AuctionID
	}
	switch s.filter.Scope {
	case ScopeOwned:
		return e.Auction != nil && e.Auction.OwnerID == s.filter.UserID
	case ScopeBidOn:
		if e.Type == domain.BidAccepted && e.Bid != nil && e.Bid.BidderID == s.filter.UserID {
			s.watch[e.AuctionID] = struct{}{}
		}
		_, ok := s.watch[e.AuctionID]
		return ok
	}
	return false
}

// completes reports whether e is the last event an auction subscription
// will ever see.
func (s *Subscription) completes(e domain.Event) bool {
	return s.filter.AuctionID != "" &&
		e.Type == domain.AuctionUpdated &&
		e.Auction != nil &&
		e.Auction.Status == domain.AuctionEnded
}
