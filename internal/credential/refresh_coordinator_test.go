package credential

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCoordinatorSingleFlightsConcurrentCallsForSameID(t *testing.T) {
	c := newCoordinator()

	var calls int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i] = c.do(context.Background(), 1, func(ctx context.Context) error {
				atomic.AddInt32(&calls, 1)
				time.Sleep(20 * time.Millisecond)
				return nil
			})
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, err := range results {
		require.NoError(t, err)
	}
}

func TestCoordinatorDistinctIDsRunIndependently(t *testing.T) {
	c := newCoordinator()

	var calls int32
	var wg sync.WaitGroup
	for _, id := range []int{1, 2, 3} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.do(context.Background(), id, func(ctx context.Context) error {
				atomic.AddInt32(&calls, 1)
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCoordinatorPropagatesLeaderErrorToFollowers(t *testing.T) {
	c := newCoordinator()
	leaderStarted := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	var leaderErr error
	go func() {
		defer wg.Done()
		leaderErr = c.do(context.Background(), 5, func(ctx context.Context) error {
			close(leaderStarted)
			<-release
			return errRefreshRejected("invalid_grant")
		})
	}()

	<-leaderStarted
	var followerErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		followerErr = c.do(context.Background(), 5, func(ctx context.Context) error {
			t.Error("follower should not execute fn")
			return nil
		})
	}()

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Error(t, leaderErr)
	require.Equal(t, leaderErr, followerErr)
}

func TestCoordinatorCleansUpAfterCompletion(t *testing.T) {
	c := newCoordinator()
	require.NoError(t, c.do(context.Background(), 9, func(ctx context.Context) error { return nil }))

	c.mu.Lock()
	_, stillTracked := c.inflight["9"]
	c.mu.Unlock()
	require.False(t, stillTracked)
}
