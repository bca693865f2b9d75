package share

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records applied snapshots in order.
type collector struct {
	mu       sync.Mutex
	applied  []int
	appliedC chan int
}

func newCollector() *collector {
	return &collector{appliedC: make(chan int, 64)}
}

func (c *collector) apply(v int) {
	c.mu.Lock()
	c.applied = append(c.applied, v)
	c.mu.Unlock()

	c.appliedC <- v
}

func (c *collector) snapshot() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]int, len(c.applied))
	copy(out, c.applied)

	return out
}

func waitApplied(t *testing.T, c *collector) int {
	t.Helper()

	select {
	case v := <-c.appliedC:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an applied snapshot")
		return 0
	}
}

func TestScheduler_RefreshesImmediatelyOnRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newCollector()

	fetch := func(context.Context) (int, error) { return 42, nil }

	s := NewScheduler(time.Hour, fetch, c.apply, nil)
	go s.Run(ctx)

	assert.Equal(t, 42, waitApplied(t, c))
}

func TestScheduler_WakeTriggersRefresh(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newCollector()

	var mu sync.Mutex

	value := 1
	fetch := func(context.Context) (int, error) {
		mu.Lock()
		defer mu.Unlock()

		return value, nil
	}

	s := NewScheduler(time.Hour, fetch, c.apply, nil)
	go s.Run(ctx)

	require.Equal(t, 1, waitApplied(t, c))

	mu.Lock()
	value = 2
	mu.Unlock()

	s.Wake()

	assert.Equal(t, 2, waitApplied(t, c))
}

func TestScheduler_TickerTriggersRefresh(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newCollector()

	fetch := func(context.Context) (int, error) { return 7, nil }

	s := NewScheduler(10*time.Millisecond, fetch, c.apply, nil)
	go s.Run(ctx)

	// Startup refresh plus at least two ticks.
	waitApplied(t, c)
	waitApplied(t, c)
	waitApplied(t, c)
}

func TestScheduler_WakeNeverBlocks(t *testing.T) {
	s := NewScheduler(time.Hour, func(context.Context) (int, error) { return 0, nil }, func(int) {}, nil)

	// The scheduler is not running; repeated wakes must coalesce, not block.
	for range 100 {
		s.Wake()
	}
}

func TestScheduler_StaleFetchDiscarded(t *testing.T) {
	// A slow fetch that started earlier must not overwrite the result of a
	// fetch that started later and already finished.
	c := newCollector()

	s := NewScheduler(time.Hour, nil, c.apply, nil)

	// Newer refresh (seq 2) completes first.
	s.mu.Lock()
	s.nextSeq = 2
	s.mu.Unlock()

	s.fetch = func(context.Context) (int, error) { return 2, nil }
	s.runOnce(context.Background(), 2)

	// The older in-flight refresh (seq 1) completes afterwards.
	s.fetch = func(context.Context) (int, error) { return 1, nil }
	s.runOnce(context.Background(), 1)

	assert.Equal(t, []int{2}, c.snapshot(), "stale snapshot must be discarded")
}

func TestScheduler_NothingAppliedAfterTeardown(t *testing.T) {
	c := newCollector()

	started := make(chan struct{})
	release := make(chan struct{})

	fetch := func(context.Context) (int, error) {
		close(started)
		<-release

		return 99, nil
	}

	s := NewScheduler(time.Hour, fetch, c.apply, nil)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		s.Run(ctx)
		close(done)
	}()

	// The startup refresh is in flight; tear the scheduler down under it.
	<-started
	cancel()
	<-done

	// Let the straggler finish. Its result must be dropped.
	close(release)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestScheduler_FetchErrorKeepsRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newCollector()

	var mu sync.Mutex

	fail := true
	fetch := func(context.Context) (int, error) {
		mu.Lock()
		defer mu.Unlock()

		if fail {
			return 0, errors.New("server unavailable")
		}

		return 5, nil
	}

	s := NewScheduler(time.Hour, fetch, c.apply, nil)
	go s.Run(ctx)

	// Give the failing startup refresh time to run, then recover.
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	fail = false
	mu.Unlock()

	s.Wake()

	assert.Equal(t, 5, waitApplied(t, c))
}

func TestScheduler_ZeroIntervalUsesDefault(t *testing.T) {
	s := NewScheduler(0, func(context.Context) (int, error) { return 0, nil }, func(int) {}, nil)
	assert.Equal(t, DefaultRefreshInterval, s.interval)
}
