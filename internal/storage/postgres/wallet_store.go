package postgres

import (
	"context"
	"fmt"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Insert adds a new wallet. Returns ErrDuplicateKey if pubkey exists.
func (s *WalletStore) Insert(ctx context.Context, w *domain.Wallet) (err error) {
	defer observe("insert_wallet", time.Now(), &err)

	if w == nil || w.Pubkey == "" || len(w.PrivateKey) == 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO wallets (pubkey, private_key, lamports, refreshed_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err = s.pool.Exec(ctx, query, w.Pubkey, w.PrivateKey, int64(w.Lamports), w.RefreshedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByPubkey retrieves a wallet by its public key. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByPubkey(ctx context.Context, pubkey string) (_ *domain.Wallet, err error) {
	defer observe("get_wallet", time.Now(), &err)

	query := `
		SELECT pubkey, private_key, lamports, refreshed_at
		FROM wallets
		WHERE pubkey = $1
	`

	var w domain.Wallet
	var lamports int64
	err = s.pool.QueryRow(ctx, query, pubkey).Scan(&w.Pubkey, &w.PrivateKey, &lamports, &w.RefreshedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet by pubkey: %w", err)
	}
	w.Lamports = uint64(lamports)
	return &w, nil
}

// List retrieves all wallets, ordered by pubkey.
func (s *WalletStore) List(ctx context.Context) (_ []*domain.Wallet, err error) {
	defer observe("list_wallets", time.Now(), &err)

	query := `
		SELECT pubkey, private_key, lamports, refreshed_at
		FROM wallets
		ORDER BY pubkey ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var result []*domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		var lamports int64
		if err := rows.Scan(&w.Pubkey, &w.PrivateKey, &lamports, &w.RefreshedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		w.Lamports = uint64(lamports)
		result = append(result, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}

	return result, nil
}

// UpdateBalance records a fresh balance snapshot for a wallet.
func (s *WalletStore) UpdateBalance(ctx context.Context, pubkey string, lamports uint64, refreshedAt int64) (err error) {
	defer observe("update_wallet_balance", time.Now(), &err)

	query := `
		UPDATE wallets
		SET lamports = $2, refreshed_at = $3
		WHERE pubkey = $1
	`

	tag, err := s.pool.Exec(ctx, query, pubkey, int64(lamports), refreshedAt)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
