// Package wallet manages the pool of funded signing identities: a file
// keystore holding raw keypairs and a lease pool that hands each wallet
// to at most one execution at a time.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
)

// Keystore is a directory of walletN.json files, each holding one
// 64-byte ed25519 keypair as a JSON byte array. Key material lives
// only in the files; balance snapshots are kept in memory.
type Keystore struct {
	dir string

	mu        sync.RWMutex
	snapshots map[string]balanceSnapshot
}

type balanceSnapshot struct {
	lamports    uint64
	refreshedAt int64
}

var walletFilePattern = regexp.MustCompile(`^wallet(\d+)\.json$`)

// NewKeystore creates a keystore rooted at dir. The directory is
// created if missing.
func NewKeystore(dir string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{
		dir:       dir,
		snapshots: make(map[string]balanceSnapshot),
	}, nil
}

// CreateWallets generates count new keypairs and writes them as the
// next walletN.json files. Returns the created wallets.
func (k *Keystore) CreateWallets(count int) ([]*domain.Wallet, error) {
	if count < 1 {
		return nil, fmt.Errorf("wallet count must be positive, got %d", count)
	}

	next, err := k.nextIndex()
	if err != nil {
		return nil, err
	}

	created := make([]*domain.Wallet, 0, count)
	for i := 0; i < count; i++ {
		kp, err := solana.NewKeypair()
		if err != nil {
			return nil, fmt.Errorf("generate keypair: %w", err)
		}

		path := filepath.Join(k.dir, fmt.Sprintf("wallet%d.json", next+i))
		data, err := marshalKeyBytes(kp.Bytes())
		if err != nil {
			return nil, fmt.Errorf("marshal keypair: %w", err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}

		created = append(created, &domain.Wallet{
			Pubkey:     kp.Pubkey(),
			PrivateKey: kp.Bytes(),
		})
	}

	return created, nil
}

// List reads every walletN.json in index order.
func (k *Keystore) List(_ context.Context) ([]*domain.Wallet, error) {
	indices, err := k.indices()
	if err != nil {
		return nil, err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	wallets := make([]*domain.Wallet, 0, len(indices))
	for _, idx := range indices {
		w, err := k.read(idx)
		if err != nil {
			return nil, err
		}
		if snap, ok := k.snapshots[w.Pubkey]; ok {
			w.Lamports = snap.lamports
			w.RefreshedAt = snap.refreshedAt
		}
		wallets = append(wallets, w)
	}

	return wallets, nil
}

// GetByPubkey returns the wallet with the given public key.
func (k *Keystore) GetByPubkey(ctx context.Context, pubkey string) (*domain.Wallet, error) {
	wallets, err := k.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range wallets {
		if w.Pubkey == pubkey {
			return w, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetByIndex returns the wallet stored in walletN.json.
func (k *Keystore) GetByIndex(_ context.Context, index int) (*domain.Wallet, error) {
	w, err := k.read(index)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if snap, ok := k.snapshots[w.Pubkey]; ok {
		w.Lamports = snap.lamports
		w.RefreshedAt = snap.refreshedAt
	}
	return w, nil
}

// Insert writes a wallet as the next walletN.json file. Returns
// ErrDuplicateKey when the pubkey is already stored.
func (k *Keystore) Insert(ctx context.Context, w *domain.Wallet) error {
	if w == nil || w.Pubkey == "" || len(w.PrivateKey) != 64 {
		return storage.ErrInvalidInput
	}

	existing, err := k.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Pubkey == w.Pubkey {
			return storage.ErrDuplicateKey
		}
	}

	next, err := k.nextIndex()
	if err != nil {
		return err
	}

	data, err := marshalKeyBytes(w.PrivateKey)
	if err != nil {
		return fmt.Errorf("marshal keypair: %w", err)
	}
	path := filepath.Join(k.dir, fmt.Sprintf("wallet%d.json", next))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// UpdateBalance records an in-memory balance snapshot for a wallet.
func (k *Keystore) UpdateBalance(ctx context.Context, pubkey string, lamports uint64, refreshedAt int64) error {
	if _, err := k.GetByPubkey(ctx, pubkey); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.snapshots[pubkey] = balanceSnapshot{lamports: lamports, refreshedAt: refreshedAt}
	return nil
}

func (k *Keystore) read(index int) (*domain.Wallet, error) {
	path := filepath.Join(k.dir, fmt.Sprintf("wallet%d.json", index))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	raw, err := unmarshalKeyBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	kp, err := solana.KeypairFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	return &domain.Wallet{
		Pubkey:     kp.Pubkey(),
		PrivateKey: kp.Bytes(),
	}, nil
}

// The file format is a JSON array of byte values, not base64: the same
// layout solana-keygen writes.
func marshalKeyBytes(key []byte) ([]byte, error) {
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	return json.Marshal(ints)
}

func unmarshalKeyBytes(data []byte) ([]byte, error) {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, err
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("byte value %d out of range at index %d", v, i)
		}
		raw[i] = byte(v)
	}
	return raw, nil
}

func (k *Keystore) indices() ([]int, error) {
	entries, err := os.ReadDir(k.dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var indices []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := walletFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}

func (k *Keystore) nextIndex() (int, error) {
	indices, err := k.indices()
	if err != nil {
		return 0, err
	}
	if len(indices) == 0 {
		return 1, nil
	}
	return indices[len(indices)-1] + 1, nil
}

var _ storage.WalletStore = (*Keystore)(nil)
