package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, dedup_key, base_mint, pool_address, wallet,
	status, failure, reason, tx_signature, attempts,
	spent_lamports, score, event_slot, completed_at
`

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.TradeRecord) (err error) {
	defer observe("insert_trade", time.Now(), &err)

	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = s.pool.Exec(ctx, query,
		t.TradeID, t.DedupKey, t.BaseMint, t.PoolAddress, t.Wallet,
		string(t.Status), string(t.Failure), t.Reason, t.TxSignature, t.Attempts,
		int64(t.SpentLamports), t.Score, t.EventSlot, t.CompletedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (_ *domain.TradeRecord, err error) {
	defer observe("get_trade", time.Now(), &err)

	query := `SELECT ` + tradeColumns + ` FROM trades WHERE trade_id = $1`

	t, err := scanTrade(s.pool.QueryRow(ctx, query, tradeID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetByDedupKey retrieves all trades for a pair, ordered by completed_at ASC.
func (s *TradeStore) GetByDedupKey(ctx context.Context, dedupKey string) (_ []*domain.TradeRecord, err error) {
	defer observe("get_trades_by_dedup_key", time.Now(), &err)

	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE dedup_key = $1
		ORDER BY completed_at ASC, trade_id ASC
	`
	return s.queryTrades(ctx, query, dedupKey)
}

// GetByTimeRange retrieves trades completed within [start, end] (inclusive).
func (s *TradeStore) GetByTimeRange(ctx context.Context, start, end int64) (_ []*domain.TradeRecord, err error) {
	defer observe("get_trades_by_time_range", time.Now(), &err)

	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE completed_at >= $1 AND completed_at <= $2
		ORDER BY completed_at ASC, trade_id ASC
	`
	return s.queryTrades(ctx, query, start, end)
}

func (s *TradeStore) queryTrades(ctx context.Context, query string, args ...any) ([]*domain.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var result []*domain.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}

	return result, nil
}

func scanTrade(row pgx.Row) (*domain.TradeRecord, error) {
	var t domain.TradeRecord
	var status, failure string
	var spent int64
	err := row.Scan(
		&t.TradeID, &t.DedupKey, &t.BaseMint, &t.PoolAddress, &t.Wallet,
		&status, &failure, &t.Reason, &t.TxSignature, &t.Attempts,
		&spent, &t.Score, &t.EventSlot, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.ExecutionStatus(status)
	t.Failure = domain.FailureKind(failure)
	t.SpentLamports = uint64(spent)
	return &t, nil
}
