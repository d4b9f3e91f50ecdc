package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
)

// Pool errors.
var (
	// ErrBusy means every funded wallet is currently leased.
	ErrBusy = errors.New("all wallets busy")

	// ErrInsufficientFunds means no wallet meets the minimum balance.
	ErrInsufficientFunds = errors.New("no wallet above minimum balance")

	// ErrNoWallets means the store holds no wallets at all.
	ErrNoWallets = errors.New("no wallets in store")

	// ErrClosed means the pool has been shut down.
	ErrClosed = errors.New("wallet pool closed")

	// ErrStaleHandle means a release did not match the current lease.
	// Seen on double release and after ForceReleaseAll.
	ErrStaleHandle = errors.New("stale wallet handle")
)

// DefaultRefreshInterval is how often balance snapshots are refreshed.
const DefaultRefreshInterval = 30 * time.Second

// Handle is a leased wallet. Exactly one handle per wallet is live at
// a time; the token ties a release to its lease.
type Handle struct {
	Pubkey   string
	Keypair  *solana.Keypair
	Lamports uint64 // balance snapshot at lease time
	Token    uint64
}

const (
	stateAvailable = iota
	stateLeased
	stateParked // below minimum balance, waiting for funding
)

type entry struct {
	wallet  *domain.Wallet
	keypair *solana.Keypair
	state   int
	token   uint64 // current lease token, 0 when not leased
}

// Pool hands out wallet leases. A wallet is leased to at most one
// caller at a time; release returns it for reuse.
type Pool struct {
	store      storage.WalletStore
	rpc        solana.RPCClient
	minBalance uint64
	leaseWait  time.Duration
	refresh    time.Duration

	mu        sync.Mutex
	entries   map[string]*entry
	available chan string
	nextToken uint64
	closed    bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithMinBalance sets the minimum lamport balance a wallet needs to be
// leased.
func WithMinBalance(lamports uint64) Option {
	return func(p *Pool) { p.minBalance = lamports }
}

// WithLeaseWait bounds how long Lease blocks when every wallet is
// leased. Zero means fail immediately with ErrBusy.
func WithLeaseWait(d time.Duration) Option {
	return func(p *Pool) { p.leaseWait = d }
}

// WithRefreshInterval sets the balance refresher period.
func WithRefreshInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.refresh = d
		}
	}
}

// NewPool loads every wallet from the store and builds the lease pool.
// Returns ErrNoWallets when the store is empty.
func NewPool(ctx context.Context, store storage.WalletStore, rpc solana.RPCClient, opts ...Option) (*Pool, error) {
	p := &Pool{
		store:   store,
		rpc:     rpc,
		refresh: DefaultRefreshInterval,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(p)
	}

	wallets, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}
	if len(wallets) == 0 {
		return nil, ErrNoWallets
	}

	p.available = make(chan string, len(wallets))
	for _, w := range wallets {
		kp, err := solana.KeypairFromBytes(w.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", w.Pubkey, err)
		}
		e := &entry{wallet: w, keypair: kp, state: stateAvailable}
		p.entries[w.Pubkey] = e
		p.available <- w.Pubkey
	}

	observability.UpdateWalletsAvailable(len(p.available))
	return p, nil
}

// Lease acquires an available funded wallet. When every wallet is
// leased it waits up to the configured lease wait, then fails with
// ErrBusy; ErrInsufficientFunds when wallets exist but none meet the
// minimum balance.
func (p *Pool) Lease(ctx context.Context) (*Handle, error) {
	deadline := time.Now().Add(p.leaseWait)

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			observability.RecordLeaseOutcome("closed")
			return nil, ErrClosed
		}
		p.mu.Unlock()

		select {
		case pubkey := <-p.available:
			if h := p.tryLease(pubkey); h != nil {
				observability.RecordLeaseOutcome("leased")
				return h, nil
			}
			// Below minimum balance, parked. Try the next one.
			continue
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, p.leaseFailure()
		}

		timer := time.NewTimer(remaining)
		select {
		case pubkey := <-p.available:
			timer.Stop()
			if h := p.tryLease(pubkey); h != nil {
				observability.RecordLeaseOutcome("leased")
				return h, nil
			}
		case <-timer.C:
			return nil, p.leaseFailure()
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// tryLease marks the wallet leased, or parks it when underfunded.
func (p *Pool) tryLease(pubkey string) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.entries[pubkey]
	if e.wallet.Lamports < p.minBalance {
		e.state = stateParked
		observability.UpdateWalletsAvailable(len(p.available))
		return nil
	}

	p.nextToken++
	e.state = stateLeased
	e.token = p.nextToken
	observability.UpdateWalletsAvailable(len(p.available))

	return &Handle{
		Pubkey:   e.wallet.Pubkey,
		Keypair:  e.keypair,
		Lamports: e.wallet.Lamports,
		Token:    e.token,
	}
}

func (p *Pool) leaseFailure() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		observability.RecordLeaseOutcome("closed")
		return ErrClosed
	}

	parked := 0
	for _, e := range p.entries {
		if e.state == stateParked {
			parked++
		}
	}
	if parked == len(p.entries) {
		observability.RecordLeaseOutcome("insufficient_funds")
		return ErrInsufficientFunds
	}
	observability.RecordLeaseOutcome("busy")
	return ErrBusy
}

// Release returns a leased wallet to the pool. The handle must match
// the current lease; a second release of the same handle fails with
// ErrStaleHandle.
func (p *Pool) Release(h *Handle) error {
	if h == nil {
		return ErrStaleHandle
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[h.Pubkey]
	if !ok || e.state != stateLeased || e.token != h.Token {
		return ErrStaleHandle
	}

	e.token = 0
	p.reinstate(e)
	return nil
}

// ForceReleaseAll invalidates every outstanding lease and returns the
// wallets to the pool. Used on the shutdown deadline path; late
// releases from abandoned executions then fail with ErrStaleHandle.
func (p *Pool) ForceReleaseAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	forced := 0
	for _, e := range p.entries {
		if e.state != stateLeased {
			continue
		}
		e.token = 0
		p.reinstate(e)
		forced++
		observability.RecordForcedRelease()
	}
	if forced > 0 {
		log.Printf("[wallet] Force-released %d leases", forced)
	}
	return forced
}

// reinstate moves an entry back to available or parked. Caller holds p.mu.
func (p *Pool) reinstate(e *entry) {
	if e.wallet.Lamports < p.minBalance {
		e.state = stateParked
	} else {
		e.state = stateAvailable
		p.available <- e.wallet.Pubkey
	}
	observability.UpdateWalletsAvailable(len(p.available))
}

// Close marks the pool closed. Outstanding handles can still be
// released; new leases fail with ErrClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// StartRefresher runs the balance refresher until ctx is cancelled.
func (p *Pool) StartRefresher(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.refresh)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.RefreshBalances(ctx)
			}
		}
	}()
}

// RefreshBalances fetches the current balance of every wallet, updates
// snapshots and the store, and unparks wallets that regained funding.
func (p *Pool) RefreshBalances(ctx context.Context) {
	p.mu.Lock()
	pubkeys := make([]string, 0, len(p.entries))
	for pk := range p.entries {
		pubkeys = append(pubkeys, pk)
	}
	p.mu.Unlock()

	now := time.Now().UnixMilli()
	for _, pk := range pubkeys {
		lamports, err := p.rpc.GetBalance(ctx, pk)
		if err != nil {
			log.Printf("[wallet] Balance refresh failed for %s: %v", pk, err)
			continue
		}

		p.mu.Lock()
		e := p.entries[pk]
		e.wallet.Lamports = lamports
		e.wallet.RefreshedAt = now
		if e.state == stateParked && lamports >= p.minBalance {
			e.state = stateAvailable
			p.available <- pk
			log.Printf("[wallet] Wallet %s refunded, back in rotation", pk)
		}
		observability.UpdateWalletsAvailable(len(p.available))
		p.mu.Unlock()

		observability.UpdateWalletBalance(pk, lamports)
		if err := p.store.UpdateBalance(ctx, pk, lamports, now); err != nil {
			log.Printf("[wallet] Balance snapshot store failed for %s: %v", pk, err)
		}
	}
}
