package leader

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := Static{InstanceID: "node-1"}

	ok, err := s.BecomeLeader(ctx, "node-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsLeader(ctx, "node-2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, s.ReleaseLeadership(ctx, "node-1"))
}

// Needs a live server: REDIS_ADDR=localhost:6379 go test ./...
func TestRedisLeaderElection(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	key := "test_leader_" + time.Now().Format("150405.000000")
	a := NewRedisLeaderElection(client, key, 3*time.Second)
	b := NewRedisLeaderElection(client, key, 3*time.Second)

	ok, err := a.BecomeLeader(ctx, "node-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.BecomeLeader(ctx, "node-b")
	require.NoError(t, err)
	assert.False(t, ok)

	// heartbeat keeps the key past its ttl
	time.Sleep(4 * time.Second)
	ok, err = a.IsLeader(ctx, "node-a")
	require.NoError(t, err)
	assert.True(t, ok)

	// only the holder can release
	require.NoError(t, b.ReleaseLeadership(ctx, "node-b"))
	ok, err = a.IsLeader(ctx, "node-a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, a.ReleaseLeadership(ctx, "node-a"))
	ok, err = b.BecomeLeader(ctx, "node-b")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.ReleaseLeadership(ctx, "node-b"))
}
