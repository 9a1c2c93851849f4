package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"live-auction/internal/config"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects with the pool settings from cfg. The DSN must carry
// parseTime=true.
func Open(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS auctions (
		id             VARCHAR(64)    NOT NULL PRIMARY KEY,
		title          VARCHAR(255)   NOT NULL,
		description    TEXT           NOT NULL,
		image_url      VARCHAR(1024)  NOT NULL DEFAULT '',
		starting_price DECIMAL(12,2)  NOT NULL,
		current_price  DECIMAL(12,2)  NOT NULL,
		end_time       DATETIME(6)    NOT NULL,
		owner_id       VARCHAR(64)    NOT NULL,
		status         VARCHAR(16)    NOT NULL,
		bid_count      INT            NOT NULL DEFAULT 0,
		version        BIGINT         NOT NULL,
		created_at     DATETIME(6)    NOT NULL,
		updated_at     DATETIME(6)    NOT NULL,
		INDEX idx_auctions_owner (owner_id, created_at),
		INDEX idx_auctions_expiry (status, end_time)
	)`,
	`CREATE TABLE IF NOT EXISTS bids (
		id         VARCHAR(64)   NOT NULL PRIMARY KEY,
		auction_id VARCHAR(64)   NOT NULL,
		bidder_id  VARCHAR(64)   NOT NULL,
		amount     DECIMAL(12,2) NOT NULL,
		created_at DATETIME(6)   NOT NULL,
		INDEX idx_bids_auction (auction_id, amount, created_at),
		INDEX idx_bids_bidder (bidder_id, created_at),
		CONSTRAINT fk_bids_auction FOREIGN KEY (auction_id) REFERENCES auctions (id)
	)`,
	`CREATE TABLE IF NOT EXISTS auction_events (
		event_id    VARCHAR(128) NOT NULL PRIMARY KEY,
		auction_id  VARCHAR(64)  NOT NULL,
		event_type  VARCHAR(32)  NOT NULL,
		version     BIGINT       NOT NULL,
		producer    VARCHAR(64)  NOT NULL,
		payload     JSON         NOT NULL,
		occurred_at DATETIME(6)  NOT NULL,
		recorded_at DATETIME(6)  NOT NULL,
		INDEX idx_events_auction (auction_id, version)
	)`,
}

// EnsureSchema creates the tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
