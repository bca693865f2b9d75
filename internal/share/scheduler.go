package share

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshInterval is the periodic refresh cadence while a watch
// loop is active.
const DefaultRefreshInterval = 5 * time.Second

// Scheduler drives repeated refreshes of server state from two triggers:
// a fixed-interval ticker and an external wake signal (a server push
// event, the CLI analog of a window regaining focus). Refreshes may
// overlap — a wake can fire while a ticker refresh is still in flight —
// so every refresh carries a sequence number claimed at trigger time and
// a completed fetch is applied only if no newer fetch has been applied
// already. Stale responses are discarded instead of overwriting fresher
// state.
//
// T is whatever snapshot fetch produces; apply commits it. apply runs
// under the scheduler's lock and must not block.
type Scheduler[T any] struct {
	interval time.Duration
	fetch    func(context.Context) (T, error)
	apply    func(T)
	logger   *slog.Logger
	wake     chan struct{}

	mu      sync.Mutex
	nextSeq uint64
	applied uint64
	closed  bool
}

// NewScheduler creates a scheduler that fetches with fetch and commits
// with apply every interval, and additionally whenever Wake is called.
func NewScheduler[T any](interval time.Duration, fetch func(context.Context) (T, error), apply func(T), logger *slog.Logger) *Scheduler[T] {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler[T]{
		interval: interval,
		fetch:    fetch,
		apply:    apply,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Wake requests an immediate refresh. Never blocks; a wake arriving while
// one is already queued coalesces with it.
func (s *Scheduler[T]) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run refreshes once immediately, then loops on the ticker and wake
// signals until ctx is canceled. On return the scheduler is closed:
// refreshes still in flight will have their results discarded, so nothing
// is applied after teardown.
func (s *Scheduler[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	defer func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}()

	s.trigger(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx)
		case <-s.wake:
			s.trigger(ctx)
		}
	}
}

// trigger claims a sequence number and starts one refresh without waiting
// for it — the loop stays responsive while fetches overlap.
func (s *Scheduler[T]) trigger(ctx context.Context) {
	s.mu.Lock()
	s.nextSeq++
	seq := s.nextSeq
	s.mu.Unlock()

	go s.runOnce(ctx, seq)
}

// runOnce performs one fetch and applies the result if it is still the
// newest.
func (s *Scheduler[T]) runOnce(ctx context.Context, seq uint64) {
	snapshot, err := s.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("refresh failed",
				slog.Uint64("seq", seq),
				slog.String("error", err.Error()),
			)
		}

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.logger.Debug("discarding refresh after teardown", slog.Uint64("seq", seq))
		return
	}

	if seq <= s.applied {
		s.logger.Debug("discarding stale refresh",
			slog.Uint64("seq", seq),
			slog.Uint64("applied", s.applied),
		)

		return
	}

	s.applied = seq
	s.apply(snapshot)
}
