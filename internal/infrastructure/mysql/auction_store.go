package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"live-auction/internal/domain"
	"time"
)

const auctionColumns = `id, title, description, image_url, starting_price, current_price,
	end_time, owner_id, status, bid_count, version, created_at, updated_at`

// AuctionStore keeps auctions and bids in MySQL. Bids and closures lock
// the auction row with SELECT ... FOR UPDATE.
type AuctionStore struct {
	db *sql.DB
}

func NewAuctionStore(db *sql.DB) *AuctionStore {
	return &AuctionStore{db: db}
}

func (r *AuctionStore) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		auction.ID, auction.Title, auction.Description, auction.ImageURL,
		auction.StartingPrice, auction.CurrentPrice, auction.EndTime,
		auction.OwnerID, auction.Status.String(), auction.BidCount, auction.Version,
		auction.CreatedAt, auction.UpdatedAt)
	return err
}

func (r *AuctionStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`
	return scanAuction(r.db.QueryRowContext(ctx, query, auctionID))
}

func (r *AuctionStore) ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	query := `
        SELECT id, auction_id, bidder_id, amount, created_at
        FROM bids
        WHERE auction_id = ?
        ORDER BY amount DESC, created_at ASC, id ASC
    `

	rows, err := r.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []*domain.Bid
	for rows.Next() {
		var bid domain.Bid
		if err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.CreatedAt); err != nil {
			return nil, err
		}
		bids = append(bids, &bid)
	}
	return bids, rows.Err()
}

func (r *AuctionStore) PlaceBid(ctx context.Context, bid *domain.Bid, check domain.BidCheck) (*domain.Auction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockAuction(ctx, tx, bid.AuctionID)
	if err != nil {
		return nil, err
	}
	if err := check(current.Clone()); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO bids (id, auction_id, bidder_id, amount, created_at)
        VALUES (?, ?, ?, ?, ?)
    `, bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create bid: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE auctions
        SET current_price = ?, bid_count = bid_count + 1, version = version + 1, updated_at = ?
        WHERE id = ?
    `, bid.Amount, bid.CreatedAt, bid.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to update auction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	next := current.Clone()
	next.CurrentPrice = bid.Amount
	next.BidCount++
	next.Version++
	next.UpdatedAt = bid.CreatedAt
	return next, nil
}

func (r *AuctionStore) MarkEnded(ctx context.Context, auctionID string, now time.Time) (*domain.Auction, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockAuction(ctx, tx, auctionID)
	if err != nil {
		return nil, false, err
	}
	if current.Status == domain.AuctionEnded || current.EndTime.After(now) {
		return current, false, nil
	}

	result, err := tx.ExecContext(ctx, `
        UPDATE auctions
        SET status = ?, version = version + 1, updated_at = ?
        WHERE id = ? AND status = ? AND end_time <= ?
    `, domain.AuctionEnded.String(), now, auctionID, domain.AuctionActive.String(), now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to end auction: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return current, false, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	current.Status = domain.AuctionEnded
	current.Version++
	current.UpdatedAt = now
	return current, true, nil
}

func (r *AuctionStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM auctions
        WHERE status = ? AND end_time <= ?
        ORDER BY end_time ASC
        LIMIT ?
    `
	rows, err := r.db.QueryContext(ctx, query, domain.AuctionActive.String(), now, limit)
	if err != nil {
		return nil, err
	}
	return collectAuctions(rows)
}

func (r *AuctionStore) ListAuctionsByOwner(ctx context.Context, ownerID string) ([]*domain.Auction, error) {
	query := `
        SELECT ` + auctionColumns + `
        FROM auctions
        WHERE owner_id = ?
        ORDER BY created_at DESC
    `
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	return collectAuctions(rows)
}

func (r *AuctionStore) ListAuctionsBidOn(ctx context.Context, bidderID string) ([]*domain.BidOnSummary, error) {
	query := `
        SELECT a.id, a.title, a.description, a.image_url, a.starting_price, a.current_price,
               a.end_time, a.owner_id, a.status, a.bid_count, a.version, a.created_at, a.updated_at,
               MAX(b.amount) AS my_top_bid, MAX(b.created_at) AS last_bid_at
        FROM bids b
        JOIN auctions a ON a.id = b.auction_id
        WHERE b.bidder_id = ?
        GROUP BY a.id
        ORDER BY last_bid_at DESC
    `
	rows, err := r.db.QueryContext(ctx, query, bidderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.BidOnSummary
	for rows.Next() {
		var row domain.BidOnSummary
		auction, err := scanAuction(rows, &row.MyTopBid, &row.LastBidAt)
		if err != nil {
			return nil, err
		}
		row.Auction = auction
		out = append(out, &row)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func lockAuction(ctx context.Context, tx *sql.Tx, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ? FOR UPDATE`
	return scanAuction(tx.QueryRowContext(ctx, query, auctionID))
}

// scanAuction reads auctionColumns followed by any extra destinations.
func scanAuction(row rowScanner, extra ...interface{}) (*domain.Auction, error) {
	var (
		a      domain.Auction
		status string
	)
	dest := []interface{}{
		&a.ID, &a.Title, &a.Description, &a.ImageURL, &a.StartingPrice, &a.CurrentPrice,
		&a.EndTime, &a.OwnerID, &status, &a.BidCount, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, err
	}

	parsed, err := domain.ParseAuctionStatus(status)
	if err != nil {
		return nil, err
	}
	a.Status = parsed
	a.EndTime = a.EndTime.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func collectAuctions(rows *sql.Rows) ([]*domain.Auction, error) {
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

var _ domain.AuctionStore = (*AuctionStore)(nil)
