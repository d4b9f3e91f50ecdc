package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Wallet // keyed by pubkey
}

// NewWalletStore creates a new in-memory wallet store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.Wallet),
	}
}

// Insert adds a new wallet. Returns ErrDuplicateKey if pubkey exists.
func (s *WalletStore) Insert(_ context.Context, w *domain.Wallet) error {
	if w == nil || w.Pubkey == "" || len(w.PrivateKey) == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[w.Pubkey]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[w.Pubkey] = cloneWallet(w)
	return nil
}

// GetByPubkey retrieves a wallet by its public key. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByPubkey(_ context.Context, pubkey string) (*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.data[pubkey]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneWallet(w), nil
}

// List retrieves all wallets, ordered by pubkey.
func (s *WalletStore) List(_ context.Context) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Wallet, 0, len(s.data))
	for _, w := range s.data {
		result = append(result, cloneWallet(w))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Pubkey < result[j].Pubkey
	})

	return result, nil
}

// UpdateBalance records a fresh balance snapshot for a wallet.
func (s *WalletStore) UpdateBalance(_ context.Context, pubkey string, lamports uint64, refreshedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.data[pubkey]
	if !exists {
		return storage.ErrNotFound
	}
	w.Lamports = lamports
	w.RefreshedAt = refreshedAt
	return nil
}

func cloneWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	c.PrivateKey = append([]byte(nil), w.PrivateKey...)
	return &c
}

var _ storage.WalletStore = (*WalletStore)(nil)
