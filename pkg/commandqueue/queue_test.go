package commandqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func running(cq *CommandQueue, lane string) func() bool {
	return func() bool { return cq.Stats()[lane].Running == 1 }
}

func queued(cq *CommandQueue, lane string, n int) func() bool {
	return func() bool { return cq.Stats()[lane].Queued == n }
}

// blockLane occupies a lane until the returned func is called.
func blockLane(t *testing.T, cq *CommandQueue, lane string) func() {
	t.Helper()
	release := make(chan struct{})
	go func() {
		_ = cq.Enqueue(context.Background(), lane, func(ctx context.Context) error {
			<-release
			return nil
		}, nil)
	}()
	require.Eventually(t, running(cq, lane), time.Second, 5*time.Millisecond)
	return func() { close(release) }
}

func TestCommandQueue_BasicEnqueue(t *testing.T) {
	cq := New()
	defer cq.Close()

	executed := false
	err := cq.Enqueue(context.Background(), "channel:1", func(ctx context.Context) error {
		executed = true
		return nil
	}, nil)

	assert.NoError(t, err)
	assert.True(t, executed)
}

func TestCommandQueue_TaskError(t *testing.T) {
	cq := New()
	defer cq.Close()

	expectedErr := errors.New("task failed")
	err := cq.Enqueue(context.Background(), "channel:1", func(ctx context.Context) error {
		return expectedErr
	}, nil)

	assert.ErrorIs(t, err, expectedErr)
}

func TestCommandQueue_TaskPanic(t *testing.T) {
	cq := New()
	defer cq.Close()
	ctx := context.Background()

	err := cq.Enqueue(ctx, "channel:1", func(ctx context.Context) error {
		panic("boom")
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	assert.NoError(t, cq.Enqueue(ctx, "channel:1", func(ctx context.Context) error { return nil }, nil),
		"the lane keeps working after a panic")
}

func TestCommandQueue_TaskSeesEnqueueContext(t *testing.T) {
	cq := New()
	defer cq.Close()

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "channel-42")

	var got interface{}
	require.NoError(t, cq.Enqueue(ctx, "channel:42", func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	}, nil))
	assert.Equal(t, "channel-42", got)
}

func TestCommandQueue_FIFOPerLane(t *testing.T) {
	cq := New()
	defer cq.Close()

	var order []int
	var mu sync.Mutex
	release := blockLane(t, cq, "channel:42")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cq.Enqueue(context.Background(), "channel:42", func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			}, nil)
		}()
		require.Eventually(t, queued(cq, "channel:42", i+1), time.Second, 5*time.Millisecond)
	}

	release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCommandQueue_OneTaskAtATimePerLane(t *testing.T) {
	cq := New()
	defer cq.Close()

	var active, peak int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cq.Enqueue(context.Background(), "channel:1", func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > peak {
					peak = active
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			}, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak)
}

func TestCommandQueue_ConcurrentLanes(t *testing.T) {
	cq := New()
	defer cq.Close()

	started := make(chan string, 2)
	release := make(chan struct{})
	var wg sync.WaitGroup

	for _, lane := range []string{"channel:a", "channel:b"} {
		lane := lane
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cq.Enqueue(context.Background(), lane, func(ctx context.Context) error {
				started <- lane
				<-release
				return nil
			}, nil)
		}()
	}

	// Both lanes must be running at once.
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case lane := <-started:
			got[lane] = true
		case <-time.After(time.Second):
			t.Fatal("lanes did not run concurrently")
		}
	}
	close(release)
	wg.Wait()

	assert.Len(t, got, 2)
}

func TestCommandQueue_CancelledWhileQueued(t *testing.T) {
	cq := New()
	defer cq.Close()
	release := blockLane(t, cq, "channel:1")

	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	errCh := make(chan error, 1)
	go func() {
		errCh <- cq.Enqueue(ctx, "channel:1", func(ctx context.Context) error {
			ran = true
			return nil
		}, nil)
	}()
	require.Eventually(t, queued(cq, "channel:1", 1), time.Second, 5*time.Millisecond)

	cancel()
	release()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.False(t, ran)
}

func TestCommandQueue_ResetLane(t *testing.T) {
	cq := New()
	defer cq.Close()
	release := blockLane(t, cq, "channel:1")
	defer release()

	errCh := make(chan error, 1)
	go func() {
		errCh <- cq.Enqueue(context.Background(), "channel:1", func(ctx context.Context) error {
			t.Error("reset task should not run")
			return nil
		}, nil)
	}()
	require.Eventually(t, queued(cq, "channel:1", 1), time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, cq.ResetLane("channel:1"))
	assert.ErrorIs(t, <-errCh, ErrLaneReset)
	assert.Equal(t, 0, cq.ResetLane("channel:unknown"))
}

func TestCommandQueue_RemoveLane(t *testing.T) {
	cq := New()
	defer cq.Close()
	ctx := context.Background()

	require.NoError(t, cq.Enqueue(ctx, "channel:gone", func(ctx context.Context) error { return nil }, nil))
	require.Eventually(t, func() bool { return cq.Stats()["channel:gone"].Running == 0 }, time.Second, 5*time.Millisecond)

	t.Run("idle lane is dropped at once", func(t *testing.T) {
		cq.RemoveLane("channel:gone")
		assert.NotContains(t, cq.Stats(), "channel:gone")
	})

	t.Run("busy lane is dropped when its task returns", func(t *testing.T) {
		release := blockLane(t, cq, "channel:busy")
		cq.RemoveLane("channel:busy")
		assert.Contains(t, cq.Stats(), "channel:busy")

		release()
		require.Eventually(t, func() bool {
			_, ok := cq.Stats()["channel:busy"]
			return !ok
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("removed lane can be used again", func(t *testing.T) {
		assert.NoError(t, cq.Enqueue(ctx, "channel:gone", func(ctx context.Context) error { return nil }, nil))
	})
}

func TestCommandQueue_Dedup(t *testing.T) {
	cq := New()
	defer cq.Close()
	ctx := context.Background()

	calls := 0
	task := func(ctx context.Context) error {
		calls++
		return nil
	}

	require.NoError(t, cq.Enqueue(ctx, "channel:1", task, &TaskOptions{RequestID: "msg-1"}))
	assert.ErrorIs(t, cq.Enqueue(ctx, "channel:1", task, &TaskOptions{RequestID: "msg-1"}), ErrDuplicate)
	require.NoError(t, cq.Enqueue(ctx, "channel:1", task, nil), "tasks without a request id are never deduplicated")
	assert.Equal(t, 2, calls)
}

func TestCommandQueue_StatsAndLanes(t *testing.T) {
	cq := New()
	defer cq.Close()

	assert.Empty(t, cq.Stats())
	release := blockLane(t, cq, "channel:1")
	defer release()

	assert.Equal(t, LaneStats{Queued: 0, Running: 1}, cq.Stats()["channel:1"])
	assert.Equal(t, 1, cq.Lanes())
}

func TestCommandQueue_WaitForActive(t *testing.T) {
	cq := New()
	defer cq.Close()

	assert.True(t, cq.WaitForActive(10*time.Millisecond), "empty queue is drained")

	release := blockLane(t, cq, "channel:1")
	assert.False(t, cq.WaitForActive(60*time.Millisecond))

	release()
	assert.True(t, cq.WaitForActive(time.Second))
}

func TestCommandQueue_Close(t *testing.T) {
	cq := New()

	runningErr := make(chan error, 1)
	go func() {
		runningErr <- cq.Enqueue(context.Background(), "channel:1", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}, nil)
	}()
	require.Eventually(t, running(cq, "channel:1"), time.Second, 5*time.Millisecond)

	queuedErr := make(chan error, 1)
	go func() {
		queuedErr <- cq.Enqueue(context.Background(), "channel:1", func(ctx context.Context) error { return nil }, nil)
	}()
	require.Eventually(t, queued(cq, "channel:1", 1), time.Second, 5*time.Millisecond)

	require.NoError(t, cq.Close())
	assert.ErrorIs(t, <-runningErr, context.Canceled)
	assert.ErrorIs(t, <-queuedErr, ErrClosed)

	assert.ErrorIs(t, cq.Enqueue(context.Background(), "channel:1", func(ctx context.Context) error { return nil }, nil), ErrClosed)
	assert.NoError(t, cq.Close(), "closing twice is fine")
}
