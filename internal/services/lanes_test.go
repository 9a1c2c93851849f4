package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLaneSet_Exclusive(t *testing.T) {
	lanes := newLaneSet()
	var inside, maxInside int32

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lanes.acquire(context.Background(), "a1")
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, lanes.size(), "idle lanes are dropped")
}

func TestLaneSet_DifferentKeysDoNotContend(t *testing.T) {
	lanes := newLaneSet()
	hold, err := lanes.acquire(context.Background(), "a1")
	require.NoError(t, err)
	defer hold()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	other, err := lanes.acquire(ctx, "a2")
	require.NoError(t, err)
	other()
}

func TestLaneSet_WaitHonoursContext(t *testing.T) {
	lanes := newLaneSet()
	hold, err := lanes.acquire(context.Background(), "a1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = lanes.acquire(ctx, "a1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	hold()
	hold() // release is idempotent
	assert.Zero(t, lanes.size())
}
