package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage/memory"
)

// stubRPC implements solana.RPCClient for balance refreshes.
type stubRPC struct {
	mu       sync.Mutex
	balances map[string]uint64
}

func (s *stubRPC) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[pubkey], nil
}

func (s *stubRPC) setBalance(pubkey string, lamports uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[pubkey] = lamports
}

func (s *stubRPC) GetTransaction(context.Context, string) (*solana.Transaction, error) {
	return nil, errors.New("not implemented")
}
func (s *stubRPC) GetTokenAccountBalance(context.Context, string) (uint64, error) { return 0, nil }
func (s *stubRPC) GetAccountInfo(context.Context, string) ([]byte, error) { return nil, nil }
func (s *stubRPC) GetLatestBlockhash(context.Context) (*solana.Blockhash, error) {
	return nil, errors.New("not implemented")
}
func (s *stubRPC) SendTransaction(context.Context, string) (string, error) {
	return "", errors.New("not implemented")
}
func (s *stubRPC) GetSignatureStatuses(_ context.Context, sigs []string) ([]*solana.SignatureStatus, error) {
	return make([]*solana.SignatureStatus, len(sigs)), nil
}
func (s *stubRPC) GetBlockTime(context.Context, int64) (*int64, error) { return nil, nil }

func newTestPool(t *testing.T, count int, lamports uint64, opts ...Option) (*Pool, *stubRPC) {
	t.Helper()

	store := memory.NewWalletStore()
	rpc := &stubRPC{balances: make(map[string]uint64)}
	ctx := context.Background()

	for i := 0; i < count; i++ {
		kp, err := solana.NewKeypair()
		if err != nil {
			t.Fatal(err)
		}
		w := &domain.Wallet{
			Pubkey:     kp.Pubkey(),
			PrivateKey: kp.Bytes(),
			Lamports:   lamports,
		}
		if err := store.Insert(ctx, w); err != nil {
			t.Fatal(err)
		}
		rpc.setBalance(kp.Pubkey(), lamports)
	}

	pool, err := NewPool(ctx, store, rpc, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return pool, rpc
}

func TestPoolLeaseAndRelease(t *testing.T) {
	pool, _ := newTestPool(t, 2, 1_000_000_000)
	ctx := context.Background()

	h1, err := pool.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease failed: %v", err)
	}
	h2, err := pool.Lease(ctx)
	if err != nil {
		t.Fatalf("second Lease failed: %v", err)
	}
	if h1.Pubkey == h2.Pubkey {
		t.Error("same wallet leased twice")
	}

	if _, err := pool.Lease(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	if err := pool.Release(h1); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	h3, err := pool.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease after release failed: %v", err)
	}
	if h3.Pubkey != h1.Pubkey {
		t.Errorf("expected released wallet to come back")
	}
}

func TestPoolDoubleReleaseFails(t *testing.T) {
	pool, _ := newTestPool(t, 1, 1_000_000_000)

	h, err := pool.Lease(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.Release(h); err != nil {
		t.Fatalf("first Release failed: %v", err)
	}
	if err := pool.Release(h); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("expected ErrStaleHandle on double release, got %v", err)
	}
}

func TestPoolStaleHandleAfterRelease(t *testing.T) {
	pool, _ := newTestPool(t, 1, 1_000_000_000)
	ctx := context.Background()

	h1, err := pool.Lease(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := pool.Release(h1); err != nil {
		t.Fatal(err)
	}

	// Same wallet, new lease. The old handle must not release it.
	h2, err := pool.Lease(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := pool.Release(h1); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("expected ErrStaleHandle for old handle, got %v", err)
	}
	if err := pool.Release(h2); err != nil {
		t.Errorf("current handle release failed: %v", err)
	}
}

func TestPoolInsufficientFunds(t *testing.T) {
	pool, _ := newTestPool(t, 2, 1_000, WithMinBalance(1_000_000_000))

	_, err := pool.Lease(context.Background())
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestPoolLeaseWaitsForRelease(t *testing.T) {
	pool, _ := newTestPool(t, 1, 1_000_000_000, WithLeaseWait(2*time.Second))
	ctx := context.Background()

	h, err := pool.Lease(ctx)
	if err != nil {
		t.Fatal(err)
	}

	released := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		if err := pool.Release(h); err != nil {
			t.Errorf("Release failed: %v", err)
		}
		close(released)
	}()

	start := time.Now()
	h2, err := pool.Lease(ctx)
	if err != nil {
		t.Fatalf("waiting Lease failed: %v", err)
	}
	<-released
	if time.Since(start) > time.Second {
		t.Error("lease should have resumed promptly after release")
	}
	if err := pool.Release(h2); err != nil {
		t.Fatal(err)
	}
}

func TestPoolForceReleaseAll(t *testing.T) {
	pool, _ := newTestPool(t, 2, 1_000_000_000)
	ctx := context.Background()

	h1, err := pool.Lease(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Lease(ctx); err != nil {
		t.Fatal(err)
	}

	if n := pool.ForceReleaseAll(); n != 2 {
		t.Errorf("expected 2 forced releases, got %d", n)
	}

	// Old handles are dead.
	if err := pool.Release(h1); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("expected ErrStaleHandle after force release, got %v", err)
	}

	// Wallets are leasable again.
	if _, err := pool.Lease(ctx); err != nil {
		t.Errorf("Lease after force release failed: %v", err)
	}
}

func TestPoolClosed(t *testing.T) {
	pool, _ := newTestPool(t, 1, 1_000_000_000)

	pool.Close()

	_, err := pool.Lease(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestPoolRefreshUnparksWallet(t *testing.T) {
	pool, rpc := newTestPool(t, 1, 1_000, WithMinBalance(1_000_000_000))
	ctx := context.Background()

	if _, err := pool.Lease(ctx); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// Fund the wallet and refresh.
	pool.mu.Lock()
	var pk string
	for k := range pool.entries {
		pk = k
	}
	pool.mu.Unlock()
	rpc.setBalance(pk, 5_000_000_000)
	pool.RefreshBalances(ctx)

	h, err := pool.Lease(ctx)
	if err != nil {
		t.Fatalf("Lease after refresh failed: %v", err)
	}
	if h.Lamports != 5_000_000_000 {
		t.Errorf("snapshot not refreshed: %d", h.Lamports)
	}
}

func TestPoolEmptyStore(t *testing.T) {
	store := memory.NewWalletStore()
	rpc := &stubRPC{balances: make(map[string]uint64)}

	_, err := NewPool(context.Background(), store, rpc)
	if !errors.Is(err, ErrNoWallets) {
		t.Errorf("expected ErrNoWallets, got %v", err)
	}
}

func TestPoolConcurrentLeaseUnique(t *testing.T) {
	pool, _ := newTestPool(t, 4, 1_000_000_000)
	ctx := context.Background()

	var mu sync.Mutex
	leased := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := pool.Lease(ctx)
			if err != nil {
				return
			}
			mu.Lock()
			leased[h.Pubkey]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for pk, n := range leased {
		if n != 1 {
			t.Errorf("wallet %s leased %d times concurrently", pk, n)
		}
	}
	if len(leased) != 4 {
		t.Errorf("expected 4 distinct leases, got %d", len(leased))
	}
}
