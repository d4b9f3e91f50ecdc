package storage

import (
	"context"

	"solana-sniper/internal/domain"
)

// WalletStore provides access to the wallet registry.
type WalletStore interface {
	// Insert adds a new wallet. Returns ErrDuplicateKey if pubkey exists.
	Insert(ctx context.Context, w *domain.Wallet) error

	// GetByPubkey retrieves a wallet by its public key. Returns
	// ErrNotFound if not exists.
	GetByPubkey(ctx context.Context, pubkey string) (*domain.Wallet, error)

	// List retrieves all wallets, ordered by pubkey.
	List(ctx context.Context) ([]*domain.Wallet, error)

	// UpdateBalance records a fresh balance snapshot for a wallet.
	// Returns ErrNotFound if the wallet does not exist.
	UpdateBalance(ctx context.Context, pubkey string, lamports uint64, refreshedAt int64) error
}

// TradeStore provides access to terminal trade outcomes.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.TradeRecord, error)

	// GetByDedupKey retrieves all trades for a pair, ordered by
	// completed_at ASC.
	GetByDedupKey(ctx context.Context, dedupKey string) ([]*domain.TradeRecord, error)

	// GetByTimeRange retrieves trades completed within [start, end]
	// (inclusive, Unix ms), ordered by completed_at ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.TradeRecord, error)
}

// AttemptStore is the append-only audit log of transaction attempts.
type AttemptStore interface {
	// Insert appends one attempt record.
	Insert(ctx context.Context, a *domain.ExecutionAttempt) error

	// InsertBulk appends multiple attempt records.
	InsertBulk(ctx context.Context, attempts []*domain.ExecutionAttempt) error

	// GetByDedupKey retrieves all attempts for a pair, ordered by seq ASC.
	GetByDedupKey(ctx context.Context, dedupKey string) ([]*domain.ExecutionAttempt, error)
}
