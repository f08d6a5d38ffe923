// Package session holds the per-client mutable state guarding redundant
// network calls: a failure cache and a per-query rate limiter.
//
// Both maps are keyed by query id. They live on an explicit Session
// object rather than package globals so lifecycle and test isolation
// stay explicit; one Session is shared by all orchestrator calls for a
// client.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/nvoss/meridian/internal/stream"
)

const (
	// failureTTL bounds how long a terminal failed result is served
	// from cache before a fresh fetch is allowed again.
	failureTTL = 60 * time.Second

	// minFetchInterval is the per-query floor between full-result
	// fetches. It exists to stop UI polling loops from hammering the
	// backend on every render tick.
	minFetchInterval = 1000 * time.Millisecond
)

type failureEntry struct {
	event    stream.StatusEvent
	cachedAt time.Time
}

// Session tracks failure-cache entries and last-fetch timestamps for
// one client. Safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	failures  map[string]failureEntry
	lastFetch map[string]time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an empty Session using the real clock.
func New() *Session {
	return &Session{
		failures:  make(map[string]failureEntry),
		lastFetch: make(map[string]time.Time),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// NewWithClock returns a Session with an injected clock and sleeper,
// for tests.
func NewWithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Session {
	s := New()
	s.now = now
	s.sleep = sleep
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Throttle blocks until at least minFetchInterval has passed since the
// previous Throttle call for the same query id, then records the
// current call. Returns early with the context error on cancellation.
func (s *Session) Throttle(ctx context.Context, queryID string) error {
	s.mu.Lock()
	last, ok := s.lastFetch[queryID]
	var wait time.Duration
	if ok {
		if since := s.now().Sub(last); since < minFetchInterval {
			wait = minFetchInterval - since
		}
	}
	s.mu.Unlock()

	if wait > 0 {
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.lastFetch[queryID] = s.now()
	s.mu.Unlock()
	return nil
}

// CacheFailure stores a terminal failed result for the query. Only
// failed results belong here; callers must not cache other statuses.
func (s *Session) CacheFailure(queryID string, ev stream.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[queryID] = failureEntry{event: ev, cachedAt: s.now()}
}

// CachedFailure returns the cached failed result for the query, if one
// exists and is younger than the TTL. An expired entry is treated as a
// miss and removed.
func (s *Session) CachedFailure(queryID string) (stream.StatusEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.failures[queryID]
	if !ok {
		return stream.StatusEvent{}, false
	}
	if s.now().Sub(entry.cachedAt) > failureTTL {
		delete(s.failures, queryID)
		return stream.StatusEvent{}, false
	}
	return entry.event, true
}

// Forget drops all state for a query id. Used when a query is retried
// deliberately (e.g. a refresh) so stale failures do not mask it.
func (s *Session) Forget(queryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, queryID)
	delete(s.lastFetch, queryID)
}
