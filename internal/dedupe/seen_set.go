// Package dedupe provides an in-memory seen-set that guarantees at most
// one acceptance per dedup key within a retention window.
package dedupe

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is how long an inserted key suppresses duplicates.
	DefaultWindow = time.Hour
	// DefaultBuckets is the number of rotation buckets the window is
	// split into. Eviction granularity is Window/Buckets.
	DefaultBuckets = 8
)

// SeenSet is a time-bucketed set of dedup keys. Keys expire after the
// retention window, with bucket granularity: a key is retained for at
// least window-window/buckets and at most window.
//
// All methods are safe for concurrent use, but the dispatcher is the
// sole writer by convention so that check-and-insert decides races.
type SeenSet struct {
	mu       sync.Mutex
	buckets  []map[string]struct{}
	head     int
	rotation time.Duration
	lastRot  time.Time
	now      func() time.Time
}

// Option configures a SeenSet.
type Option func(*SeenSet)

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *SeenSet) { s.now = now }
}

// NewSeenSet creates a seen-set retaining keys for at least window,
// split into the given number of rotation buckets.
func NewSeenSet(window time.Duration, buckets int, opts ...Option) *SeenSet {
	if window <= 0 {
		window = DefaultWindow
	}
	if buckets <= 0 {
		buckets = DefaultBuckets
	}

	s := &SeenSet{
		buckets:  make([]map[string]struct{}, buckets),
		rotation: window / time.Duration(buckets),
		now:      time.Now,
	}
	for i := range s.buckets {
		s.buckets[i] = make(map[string]struct{})
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastRot = s.now()
	return s
}

// CheckAndInsert atomically tests whether key was seen within the
// retention window and, if not, records it. Returns true when the key
// is new, false when it is a duplicate. Exactly one concurrent caller
// for a given key observes true.
func (s *SeenSet) CheckAndInsert(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rotate()

	for _, b := range s.buckets {
		if _, ok := b[key]; ok {
			return false
		}
	}
	s.buckets[s.head][key] = struct{}{}
	return true
}

// Contains reports whether key is currently in the retention window
// without inserting it.
func (s *SeenSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rotate()

	for _, b := range s.buckets {
		if _, ok := b[key]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of keys currently retained.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rotate()

	n := 0
	for _, b := range s.buckets {
		n += len(b)
	}
	return n
}

// rotate advances the ring for elapsed rotation intervals, discarding
// the oldest bucket each step. Caller holds s.mu.
func (s *SeenSet) rotate() {
	now := s.now()
	for now.Sub(s.lastRot) >= s.rotation {
		s.head = (s.head + 1) % len(s.buckets)
		s.buckets[s.head] = make(map[string]struct{})
		s.lastRot = s.lastRot.Add(s.rotation)

		// Everything already expired, no point replaying each step.
		if now.Sub(s.lastRot) >= s.rotation*time.Duration(len(s.buckets)) {
			for i := range s.buckets {
				s.buckets[i] = make(map[string]struct{})
			}
			s.lastRot = now
			return
		}
	}
}
