package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCheckAndInsert(t *testing.T) {
	s := NewSeenSet(time.Hour, 8)

	if !s.CheckAndInsert("key1") {
		t.Error("first insert should report new")
	}
	if s.CheckAndInsert("key1") {
		t.Error("second insert should report duplicate")
	}
	if !s.CheckAndInsert("key2") {
		t.Error("distinct key should report new")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 keys, got %d", s.Len())
	}
}

func TestCheckAndInsertConcurrent(t *testing.T) {
	s := NewSeenSet(time.Hour, 8)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.CheckAndInsert("contested") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	s := NewSeenSet(80*time.Minute, 8, WithClock(clock))

	s.CheckAndInsert("old")

	// Within the window the key is retained.
	now = now.Add(70 * time.Minute)
	if !s.Contains("old") {
		t.Fatal("key should survive within the window")
	}

	// Past window + one rotation interval it must be gone.
	now = now.Add(25 * time.Minute)
	if s.Contains("old") {
		t.Error("key should expire after the window")
	}
	if !s.CheckAndInsert("old") {
		t.Error("expired key should be insertable again")
	}
}

func TestLongIdleClearsAll(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := func() time.Time { return now }

	s := NewSeenSet(time.Hour, 8, WithClock(clock))
	for _, k := range []string{"a", "b", "c"} {
		s.CheckAndInsert(k)
	}

	now = now.Add(48 * time.Hour)
	if s.Len() != 0 {
		t.Errorf("expected empty set after long idle, got %d keys", s.Len())
	}
}
