package workpool

import (
	"context"
	"hash/fnv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSameKeyRunsInOrder(t *testing.T) {
	pool := NewKeyed(4, 64)

	var mu sync.Mutex
	var order []int

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		i := i
		require.True(t, pool.Add(ctx, "alice", func(context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	pool.StopWhenFinished(true)

	require.Len(t, order, 50)
	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestDifferentKeysRunConcurrently(t *testing.T) {
	pool := NewKeyed(2, 16)
	defer pool.StopImmediately(true)

	release := make(chan struct{})
	blocked := make(chan struct{})
	other := make(chan struct{})

	ctx := context.Background()
	require.True(t, pool.Add(ctx, "key-a", func(context.Context) {
		close(blocked)
		<-release
	}))
	<-blocked

	// A key hashing to the other worker must not wait for key-a's job.
	// GOMAXPROCS can clamp the pool to one worker, in which case there is
	// nothing to assert.
	if len(pool.queues) < 2 {
		close(release)
		t.Skip("pool clamped to a single worker")
	}
	added := false
	for _, key := range []string{"key-b", "key-c", "key-d", "key-e"} {
		if workerIndex(pool, key) != workerIndex(pool, "key-a") {
			require.True(t, pool.Add(ctx, key, func(context.Context) {
				close(other)
			}))
			added = true
			break
		}
	}
	require.True(t, added, "no key landed on the other worker")

	select {
	case <-other:
	case <-time.After(2 * time.Second):
		t.Fatal("job on the other worker never ran while key-a was blocked")
	}
	close(release)
}

func TestStopWhenFinishedDrainsQueue(t *testing.T) {
	pool := NewKeyed(2, 64)

	var mu sync.Mutex
	done := 0

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.True(t, pool.Add(ctx, "key", func(context.Context) {
			mu.Lock()
			done++
			mu.Unlock()
		}))
	}

	pool.StopWhenFinished(true)
	assert.Equal(t, 20, done)

	// Intake refuses late jobs instead of panicking on the closed queues.
	assert.False(t, pool.Add(ctx, "key", func(context.Context) {}))
}

func TestAddRacingStopDoesNotPanic(t *testing.T) {
	for i := 0; i < 100; i++ {
		pool := NewKeyed(2, 1)

		done := make(chan struct{})
		go func() {
			defer close(done)
			ctx := context.Background()
			for j := 0; j < 20; j++ {
				if !pool.Add(ctx, "alice", func(context.Context) {}) {
					return
				}
			}
		}()

		pool.StopWhenFinished(true)
		<-done
	}
}

func TestStopImmediatelyInterruptsJobs(t *testing.T) {
	pool := NewKeyed(1, 64)

	started := make(chan struct{})
	interrupted := make(chan struct{})

	require.True(t, pool.Add(context.Background(), "key", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(interrupted)
	}))
	<-started

	pool.StopImmediately(true)

	select {
	case <-interrupted:
	default:
		t.Fatal("in-flight job did not observe cancellation")
	}
}

func TestAddRespectsCallerContext(t *testing.T) {
	pool := NewKeyed(1, 0)
	defer pool.StopImmediately(true)

	block := make(chan struct{})
	started := make(chan struct{})
	require.True(t, pool.Add(context.Background(), "key", func(context.Context) {
		close(started)
		<-block
	}))
	<-started

	// The single worker is busy and the queue has no room, so this Add can
	// only end via its context.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, pool.Add(ctx, "key", func(context.Context) {}))
	close(block)
}

func workerIndex(k *Keyed, key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(k.queues)))
}
