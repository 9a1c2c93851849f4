package bootstrap

import (
	"context"
	"live-auction/internal/config"
	"live-auction/internal/domain"
	"live-auction/internal/feed"
	"live-auction/internal/infrastructure/leader"
	"live-auction/pkg/logger"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	chdir(t, t.TempDir())
	t.Setenv("STORE_DRIVER", config.DriverMemory)
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("INSTANCE_ID", "solo")
	cfg, err := config.Load("auction-service", 8080)
	require.NoError(t, err)
	return cfg
}

func TestNew_SingleInstance(t *testing.T) {
	cfg := memoryConfig(t)
	app, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.Nil(t, app.Redis)
	assert.Nil(t, app.Relay)
	assert.Nil(t, app.Kafka)
	assert.Equal(t, leader.Static{InstanceID: "solo"}, app.Leader)

	sub, err := app.Feed.WatchUser(context.Background(), "alice", feed.ScopeOwned)
	require.NoError(t, err)
	defer sub.Sub.Close()

	a, err := app.Ledger.CreateAuction(context.Background(), domain.AuctionSpec{
		Title:         "Bike",
		StartingPrice: decimal.RequireFromString("50"),
		DurationDays:  7,
		OwnerID:       "alice",
	})
	require.NoError(t, err)

	e := <-sub.Sub.Events()
	assert.Equal(t, a.ID, e.AuctionID)

	closed, err := app.Sweeper().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, closed)
}

func TestNew_UnknownDriver(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Store.Driver = "sqlite"

	app, err := New(context.Background(), cfg, logger.NewNop())
	require.Error(t, err)
	assert.Nil(t, app)
}
