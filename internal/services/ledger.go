package services

import (
	"context"
	"errors"
	"fmt"
	"live-auction/internal/clock"
	"live-auction/internal/domain"
	"live-auction/pkg/logger"
	"live-auction/pkg/utils"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const closeTimeout = 10 * time.Second

// Ledger owns the authoritative auction and bid record. Bids on one auction
// are serialized through a per-auction lane and committed with the store's
// atomic PlaceBid; different auctions never contend.
type Ledger struct {
	store      domain.AuctionStore
	cache      domain.PriceCache
	validator  *BidValidator
	clock      clock.Clock
	publishers []domain.EventPublisher
	lanes      *laneSet
	log        logger.Logger

	closing sync.Map
	bg      sync.WaitGroup
}

// NewLedger wires a ledger. cache may be nil; events go to every publisher
// in order after the commit that produced them.
func NewLedger(
	store domain.AuctionStore,
	cache domain.PriceCache,
	validator *BidValidator,
	clk clock.Clock,
	log logger.Logger,
	publishers ...domain.EventPublisher,
) *Ledger {
	return &Ledger{
		store:      store,
		cache:      cache,
		validator:  validator,
		clock:      clk,
		publishers: publishers,
		lanes:      newLaneSet(),
		log:        log,
	}
}

func (l *Ledger) CreateAuction(ctx context.Context, spec domain.AuctionSpec) (*domain.Auction, error) {
	if spec.OwnerID == "" {
		return nil, domain.Reject(domain.ErrUnauthorized, "owner identity required")
	}
	if strings.TrimSpace(spec.Title) == "" {
		return nil, domain.Reject(domain.ErrInvalidSpec, "title is required")
	}
	if err := ValidateMoney(spec.StartingPrice); err != nil {
		return nil, domain.Reject(domain.ErrInvalidSpec, "starting price: %v", err)
	}
	if !allowedDuration(spec.DurationDays) {
		return nil, domain.Reject(domain.ErrInvalidSpec, "duration must be one of %v days", domain.AllowedDurationDays)
	}

	now := l.clock.Now()
	endTime := now.Add(time.Duration(spec.DurationDays) * 24 * time.Hour)
	if !endTime.After(now) {
		return nil, domain.Reject(domain.ErrInvalidSpec, "end time %s is not in the future", endTime.Format(time.RFC3339))
	}

	auction := &domain.Auction{
		ID:            utils.GenerateID("auction"),
		Title:         strings.TrimSpace(spec.Title),
		Description:   spec.Description,
		ImageURL:      spec.ImageURL,
		StartingPrice: spec.StartingPrice,
		CurrentPrice:  spec.StartingPrice,
		EndTime:       endTime,
		OwnerID:       spec.OwnerID,
		Status:        domain.AuctionActive,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := l.store.CreateAuction(context.WithoutCancel(ctx), auction); err != nil {
		return nil, systemError("create auction", err)
	}

	l.log.Info("Auction created", "auction_id", auction.ID, "owner_id", auction.OwnerID, "end_time", auction.EndTime)
	l.cachePut(ctx, auction)
	l.publish(ctx, domain.Event{
		ID:         eventID(auction.ID, auction.Version),
		Type:       domain.AuctionUpdated,
		AuctionID:  auction.ID,
		Version:    auction.Version,
		OccurredAt: now,
		Auction:    auction.Clone(),
	})
	return auction.Clone(), nil
}

// SubmitBid accepts or rejects a bid. Rejections are *domain.ValidationError;
// infrastructure failures are *domain.SystemError. Once the atomic step has
// started it runs to completion even if ctx is cancelled.
func (l *Ledger) SubmitBid(ctx context.Context, req domain.BidRequest) (*domain.Bid, error) {
	if req.BidderID == "" {
		return nil, domain.Reject(domain.ErrUnauthorized, "bidder identity required")
	}

	snapshot, err := l.snapshot(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}
	if err := l.validator.Validate(req, snapshot, l.clock.Now()); err != nil {
		l.onRejected(req, snapshot, err)
		return nil, err
	}

	release, err := l.lanes.acquire(ctx, req.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("wait for auction %s: %w", req.AuctionID, err)
	}
	defer release()

	now := l.clock.Now()
	bid := &domain.Bid{
		ID:        utils.GenerateID("bid"),
		AuctionID: req.AuctionID,
		BidderID:  req.BidderID,
		Amount:    req.Amount,
		CreatedAt: now,
	}

	updated, err := l.store.PlaceBid(context.WithoutCancel(ctx), bid, l.validator.Check(req, now))
	if err != nil {
		if domain.IsValidation(err) {
			l.onRejected(req, nil, err)
			return nil, err
		}
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return nil, err
		}
		return nil, systemError("place bid", err)
	}

	updated, _ = resolve(updated, now)
	l.log.Info("Bid accepted",
		"auction_id", bid.AuctionID,
		"bidder_id", bid.BidderID,
		"amount", bid.Amount.String(),
		"version", updated.Version,
	)

	l.cachePut(ctx, updated)
	l.publish(ctx, domain.Event{
		ID:         eventID(updated.ID, updated.Version),
		Type:       domain.BidAccepted,
		AuctionID:  updated.ID,
		Version:    updated.Version,
		OccurredAt: now,
		Auction:    updated,
		Bid:        bid,
	})
	return bid, nil
}

// GetAuction returns the auction with its status resolved against the clock.
func (l *Ledger) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	a, err := l.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, storeError("get auction", err)
	}
	return l.resolveAndClose(a), nil
}

// ListBids returns bids ordered by amount desc, earlier first on ties.
func (l *Ledger) ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	bids, err := l.store.ListBids(ctx, auctionID)
	if err != nil {
		return nil, storeError("list bids", err)
	}
	if len(bids) == 0 {
		if _, err := l.store.GetAuction(ctx, auctionID); err != nil {
			return nil, storeError("get auction", err)
		}
	}
	return bids, nil
}

func (l *Ledger) ListAuctionsByOwner(ctx context.Context, ownerID string) ([]*domain.Auction, error) {
	auctions, err := l.store.ListAuctionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeError("list owner auctions", err)
	}
	for i, a := range auctions {
		auctions[i] = l.resolveAndClose(a)
	}
	return auctions, nil
}

func (l *Ledger) ListAuctionsBidOn(ctx context.Context, bidderID string) ([]*domain.BidOnSummary, error) {
	rows, err := l.store.ListAuctionsBidOn(ctx, bidderID)
	if err != nil {
		return nil, storeError("list bid-on auctions", err)
	}
	for _, r := range rows {
		r.Auction = l.resolveAndClose(r.Auction)
	}
	return rows, nil
}

// CloseAuction records the ended status. Only the caller whose conditional
// update flipped the row emits the closure event; changed reports that.
func (l *Ledger) CloseAuction(ctx context.Context, auctionID string) (*domain.Auction, bool, error) {
	release, err := l.lanes.acquire(ctx, auctionID)
	if err != nil {
		return nil, false, fmt.Errorf("wait for auction %s: %w", auctionID, err)
	}
	defer release()

	now := l.clock.Now()
	a, changed, err := l.store.MarkEnded(context.WithoutCancel(ctx), auctionID, now)
	if err != nil {
		return nil, false, storeError("mark ended", err)
	}
	a, _ = resolve(a, now)
	if !changed {
		return a, false, nil
	}

	l.log.Info("Auction ended",
		"auction_id", a.ID,
		"final_price", a.CurrentPrice.String(),
		"bid_count", a.BidCount,
		"version", a.Version,
	)
	l.cachePut(ctx, a)
	l.publish(ctx, domain.Event{
		ID:         eventID(a.ID, a.Version),
		Type:       domain.AuctionUpdated,
		AuctionID:  a.ID,
		Version:    a.Version,
		OccurredAt: now,
		Auction:    a.Clone(),
	})
	return a, true, nil
}

// SweepExpired closes up to limit auctions whose end time has passed and
// returns how many this call closed.
func (l *Ledger) SweepExpired(ctx context.Context, limit int) (int, error) {
	expired, err := l.store.ListExpired(ctx, l.clock.Now(), limit)
	if err != nil {
		return 0, storeError("list expired", err)
	}

	closed := 0
	for _, a := range expired {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		_, changed, err := l.CloseAuction(ctx, a.ID)
		if err != nil {
			l.log.Error("Failed to close auction", "auction_id", a.ID, "error", err)
			continue
		}
		if changed {
			closed++
		}
	}
	return closed, nil
}

// MinimumBid is the lowest amount that beats currentPrice.
func (l *Ledger) MinimumBid(currentPrice decimal.Decimal) decimal.Decimal {
	return l.validator.MinimumBid(currentPrice)
}

// Wait blocks until background closures started by read paths finish.
func (l *Ledger) Wait() {
	l.bg.Wait()
}

func (l *Ledger) snapshot(ctx context.Context, auctionID string) (*domain.Auction, error) {
	if l.cache != nil {
		a, err := l.cache.Get(ctx, auctionID)
		if err != nil {
			l.log.Warn("Price cache read failed", "auction_id", auctionID, "error", err)
		} else if a != nil {
			return a, nil
		}
	}
	a, err := l.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, storeError("get auction", err)
	}
	return a, nil
}

func (l *Ledger) resolveAndClose(a *domain.Auction) *domain.Auction {
	out, stale := resolve(a, l.clock.Now())
	if stale {
		l.closeAsync(out.ID)
	}
	return out
}

func (l *Ledger) onRejected(req domain.BidRequest, snapshot *domain.Auction, err error) {
	l.log.Debug("Bid rejected",
		"auction_id", req.AuctionID,
		"bidder_id", req.BidderID,
		"amount", req.Amount.String(),
		"reason", domain.ReasonOf(err),
	)
	if !errors.Is(err, domain.ErrAuctionClosed) {
		return
	}
	if snapshot == nil || snapshot.Status == domain.AuctionActive {
		l.closeAsync(req.AuctionID)
	}
}

// closeAsync runs CloseAuction in the background, at most once at a time
// per auction on this instance.
func (l *Ledger) closeAsync(auctionID string) {
	if _, busy := l.closing.LoadOrStore(auctionID, struct{}{}); busy {
		return
	}
	l.bg.Add(1)
	go func() {
		defer l.bg.Done()
		defer l.closing.Delete(auctionID)

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if _, _, err := l.CloseAuction(ctx, auctionID); err != nil {
			l.log.Error("Lazy close failed", "auction_id", auctionID, "error", err)
		}
	}()
}

func (l *Ledger) cachePut(ctx context.Context, a *domain.Auction) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Put(context.WithoutCancel(ctx), a); err != nil {
		l.log.Warn("Price cache write failed", "auction_id", a.ID, "error", err)
	}
}

// publish hands event to every publisher. Failures are logged and never
// reach the caller; the commit already happened.
func (l *Ledger) publish(ctx context.Context, event domain.Event) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range l.publishers {
		if err := p.Publish(ctx, event); err != nil {
			l.log.Error("Failed to publish event",
				"event_id", event.ID,
				"type", string(event.Type),
				"auction_id", event.AuctionID,
				"error", err,
			)
		}
	}
}

func allowedDuration(days int) bool {
	for _, d := range domain.AllowedDurationDays {
		if d == days {
			return true
		}
	}
	return false
}

func eventID(auctionID string, version int64) string {
	return fmt.Sprintf("%s:%d", auctionID, version)
}

func systemError(op string, err error) error {
	var se *domain.SystemError
	if errors.As(err, &se) {
		return err
	}
	return &domain.SystemError{Op: op, Err: err}
}

// storeError keeps not-found and validation errors as they are and wraps the
// rest as system errors.
func storeError(op string, err error) error {
	if errors.Is(err, domain.ErrAuctionNotFound) || domain.IsValidation(err) {
		return err
	}
	return systemError(op, err)
}
