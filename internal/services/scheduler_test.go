package services

import (
	"context"
	"live-auction/internal/domain"
	"live-auction/internal/infrastructure/leader"
	"live-auction/pkg/logger"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleSweeper_RunOnce(t *testing.T) {
	f := newFixture(t)
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.create(t, "alice", "10").ID)
	}
	f.clock.Advance(25 * time.Hour)

	follower := NewLifecycleSweeper(f.ledger, leader.Static{InstanceID: "node-a"}, "node-b", "", 2, logger.NewNop())
	n, err := follower.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "non-leader does not sweep")

	sweeper := NewLifecycleSweeper(f.ledger, leader.Static{InstanceID: "node-a"}, "node-a", "", 2, logger.NewNop())
	n, err = sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n, "batches continue until drained")

	for _, id := range ids {
		stored, err := f.store.GetAuction(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.AuctionEnded, stored.Status)
	}
}

func TestLifecycleSweeper_StartStop(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "alice", "10")
	f.clock.Set(a.EndTime)

	sweeper := NewLifecycleSweeper(f.ledger, leader.Static{InstanceID: "solo"}, "solo", "@every 1s", 10, logger.NewNop())
	require.NoError(t, sweeper.Start(context.Background()))

	assert.Eventually(t, func() bool {
		stored, err := f.store.GetAuction(context.Background(), a.ID)
		return err == nil && stored.Status == domain.AuctionEnded
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, sweeper.Stop(context.Background()))
}

func TestLifecycleSweeper_BadSchedule(t *testing.T) {
	f := newFixture(t)
	sweeper := NewLifecycleSweeper(f.ledger, leader.Static{}, "", "not a schedule", 10, logger.NewNop())
	assert.Error(t, sweeper.Start(context.Background()))
}
