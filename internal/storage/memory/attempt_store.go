package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// AttemptStore is an in-memory implementation of storage.AttemptStore.
// Append-only, duplicates are not rejected; it mirrors the ClickHouse
// audit table semantics.
type AttemptStore struct {
	mu   sync.RWMutex
	data []*domain.ExecutionAttempt
}

// NewAttemptStore creates a new in-memory attempt store.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{}
}

// Insert appends one attempt record.
func (s *AttemptStore) Insert(_ context.Context, a *domain.ExecutionAttempt) error {
	if a == nil || a.DedupKey == "" || a.Seq < 1 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *a
	s.data = append(s.data, &copy)
	return nil
}

// InsertBulk appends multiple attempt records.
func (s *AttemptStore) InsertBulk(ctx context.Context, attempts []*domain.ExecutionAttempt) error {
	for _, a := range attempts {
		if a == nil || a.DedupKey == "" || a.Seq < 1 {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range attempts {
		copy := *a
		s.data = append(s.data, &copy)
	}
	return nil
}

// GetByDedupKey retrieves all attempts for a pair, ordered by seq ASC.
func (s *AttemptStore) GetByDedupKey(_ context.Context, dedupKey string) ([]*domain.ExecutionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionAttempt
	for _, a := range s.data {
		if a.DedupKey == dedupKey {
			copy := *a
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Seq < result[j].Seq
	})

	return result, nil
}

var _ storage.AttemptStore = (*AttemptStore)(nil)
