package postgres

import (
	"context"
	"fmt"
	"live-auction/internal/config"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 1
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS auctions (
	id             TEXT          PRIMARY KEY,
	title          TEXT          NOT NULL,
	description    TEXT          NOT NULL,
	image_url      TEXT          NOT NULL DEFAULT '',
	starting_price NUMERIC(12,2) NOT NULL,
	current_price  NUMERIC(12,2) NOT NULL,
	end_time       TIMESTAMPTZ   NOT NULL,
	owner_id       TEXT          NOT NULL,
	status         TEXT          NOT NULL,
	bid_count      INTEGER       NOT NULL DEFAULT 0,
	version        BIGINT        NOT NULL,
	created_at     TIMESTAMPTZ   NOT NULL,
	updated_at     TIMESTAMPTZ   NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_auctions_owner ON auctions (owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_auctions_expiry ON auctions (status, end_time);

CREATE TABLE IF NOT EXISTS bids (
	id         TEXT          PRIMARY KEY,
	auction_id TEXT          NOT NULL REFERENCES auctions (id),
	bidder_id  TEXT          NOT NULL,
	amount     NUMERIC(12,2) NOT NULL,
	created_at TIMESTAMPTZ   NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids (auction_id, amount DESC, created_at);
CREATE INDEX IF NOT EXISTS idx_bids_bidder ON bids (bidder_id, created_at DESC);
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
