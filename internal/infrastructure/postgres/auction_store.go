package postgres

import (
	"context"
	"errors"
	"fmt"
	"live-auction/internal/domain"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Money travels as text in both directions so NUMERIC never passes
// through a float.
const auctionColumns = `a.id, a.title, a.description, a.image_url,
	a.starting_price::text, a.current_price::text, a.end_time, a.owner_id, a.status,
	a.bid_count, a.version, a.created_at, a.updated_at`

type AuctionStore struct {
	db *pgxpool.Pool
}

func NewAuctionStore(db *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{db: db}
}

func (r *AuctionStore) CreateAuction(ctx context.Context, a *domain.Auction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auctions (id, title, description, image_url, starting_price, current_price,
			end_time, owner_id, status, bid_count, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.Title, a.Description, a.ImageURL, money(a.StartingPrice), money(a.CurrentPrice),
		a.EndTime, a.OwnerID, a.Status.String(), a.BidCount, a.Version, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *AuctionStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions a WHERE a.id = $1`, auctionID)
	return scanAuction(row)
}

func (r *AuctionStore) ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, auction_id, bidder_id, amount::text, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, created_at ASC, id ASC`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Bid
	for rows.Next() {
		var (
			b      domain.Bid
			amount string
		)
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (r *AuctionStore) PlaceBid(ctx context.Context, bid *domain.Bid, check domain.BidCheck) (*domain.Auction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := lockAuction(ctx, tx, bid.AuctionID)
	if err != nil {
		return nil, err
	}
	if err := check(current.Clone()); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bids (id, auction_id, bidder_id, amount, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5)`,
		bid.ID, bid.AuctionID, bid.BidderID, money(bid.Amount), bid.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert bid: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE auctions
		SET current_price = $1::numeric, bid_count = bid_count + 1, version = version + 1, updated_at = $2
		WHERE id = $3`,
		money(bid.Amount), bid.CreatedAt, bid.AuctionID); err != nil {
		return nil, fmt.Errorf("update auction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	next := current.Clone()
	next.CurrentPrice = bid.Amount
	next.BidCount++
	next.Version++
	next.UpdatedAt = bid.CreatedAt
	return next, nil
}

func (r *AuctionStore) MarkEnded(ctx context.Context, auctionID string, now time.Time) (*domain.Auction, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := lockAuction(ctx, tx, auctionID)
	if err != nil {
		return nil, false, err
	}
	if current.Status == domain.AuctionEnded || current.EndTime.After(now) {
		return current, false, nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE auctions
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND status = $4 AND end_time <= $2`,
		domain.AuctionEnded.String(), now, auctionID, domain.AuctionActive.String())
	if err != nil {
		return nil, false, fmt.Errorf("end auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return current, false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}

	current.Status = domain.AuctionEnded
	current.Version++
	current.UpdatedAt = now
	return current, true, nil
}

func (r *AuctionStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Auction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+auctionColumns+`
		FROM auctions a
		WHERE a.status = $1 AND a.end_time <= $2
		ORDER BY a.end_time ASC
		LIMIT $3`, domain.AuctionActive.String(), now, limit)
	if err != nil {
		return nil, err
	}
	return collectAuctions(rows)
}

func (r *AuctionStore) ListAuctionsByOwner(ctx context.Context, ownerID string) ([]*domain.Auction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+auctionColumns+`
		FROM auctions a
		WHERE a.owner_id = $1
		ORDER BY a.created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectAuctions(rows)
}

func (r *AuctionStore) ListAuctionsBidOn(ctx context.Context, bidderID string) ([]*domain.BidOnSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+auctionColumns+`, MAX(b.amount)::text, MAX(b.created_at) AS last_bid_at
		FROM bids b
		JOIN auctions a ON a.id = b.auction_id
		WHERE b.bidder_id = $1
		GROUP BY a.id
		ORDER BY last_bid_at DESC`, bidderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.BidOnSummary
	for rows.Next() {
		var (
			row domain.BidOnSummary
			top string
		)
		auction, err := scanAuction(rows, &top, &row.LastBidAt)
		if err != nil {
			return nil, err
		}
		if row.MyTopBid, err = decimal.NewFromString(top); err != nil {
			return nil, err
		}
		row.Auction = auction
		row.LastBidAt = row.LastBidAt.UTC()
		out = append(out, &row)
	}
	return out, rows.Err()
}

func lockAuction(ctx context.Context, tx pgx.Tx, auctionID string) (*domain.Auction, error) {
	row := tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions a WHERE a.id = $1 FOR UPDATE`, auctionID)
	return scanAuction(row)
}

func scanAuction(row pgx.Row, extra ...any) (*domain.Auction, error) {
	var (
		a                 domain.Auction
		starting, current string
		status            string
	)
	dest := []any{
		&a.ID, &a.Title, &a.Description, &a.ImageURL, &starting, &current,
		&a.EndTime, &a.OwnerID, &status, &a.BidCount, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, err
	}

	var err error
	if a.StartingPrice, err = decimal.NewFromString(starting); err != nil {
		return nil, err
	}
	if a.CurrentPrice, err = decimal.NewFromString(current); err != nil {
		return nil, err
	}
	if a.Status, err = domain.ParseAuctionStatus(status); err != nil {
		return nil, err
	}
	a.EndTime = a.EndTime.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func collectAuctions(rows pgx.Rows) ([]*domain.Auction, error) {
	defer rows.Close()

	var out []*domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

var _ domain.AuctionStore = (*AuctionStore)(nil)
