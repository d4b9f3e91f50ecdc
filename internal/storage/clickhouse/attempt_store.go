package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// AttemptStore implements storage.AttemptStore using ClickHouse.
// The table is append-only; MergeTree does not enforce uniqueness and
// the audit log does not need it.
type AttemptStore struct {
	conn *Conn
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(conn *Conn) *AttemptStore {
	return &AttemptStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AttemptStore = (*AttemptStore)(nil)

// Insert appends one attempt record.
func (s *AttemptStore) Insert(ctx context.Context, a *domain.ExecutionAttempt) error {
	if a == nil || a.DedupKey == "" || a.Seq < 1 {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.ExecutionAttempt{a})
}

// InsertBulk appends multiple attempt records.
func (s *AttemptStore) InsertBulk(ctx context.Context, attempts []*domain.ExecutionAttempt) (err error) {
	defer observe("insert_attempts", time.Now(), &err)

	if len(attempts) == 0 {
		return nil
	}
	for _, a := range attempts {
		if a == nil || a.DedupKey == "" || a.Seq < 1 {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO execution_attempts (
			dedup_key, seq, wallet, tx_signature, outcome, error, submitted_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range attempts {
		err = batch.Append(
			a.DedupKey, uint32(a.Seq), a.Wallet,
			a.TxSignature, string(a.Outcome), a.Err, a.SubmittedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByDedupKey retrieves all attempts for a pair, ordered by seq ASC.
func (s *AttemptStore) GetByDedupKey(ctx context.Context, dedupKey string) (_ []*domain.ExecutionAttempt, err error) {
	defer observe("get_attempts_by_dedup_key", time.Now(), &err)

	query := `
		SELECT dedup_key, seq, wallet, tx_signature, outcome, error, submitted_at
		FROM execution_attempts
		WHERE dedup_key = ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, dedupKey)
	if err != nil {
		return nil, fmt.Errorf("query attempts by dedup key: %w", err)
	}
	defer rows.Close()

	var result []*domain.ExecutionAttempt
	for rows.Next() {
		var a domain.ExecutionAttempt
		var seq uint32
		var outcome string
		if err := rows.Scan(&a.DedupKey, &seq, &a.Wallet, &a.TxSignature, &outcome, &a.Err, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Seq = int(seq)
		a.Outcome = domain.AttemptOutcome(outcome)
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return result, nil
}
