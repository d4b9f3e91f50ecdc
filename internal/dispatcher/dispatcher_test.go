package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"solana-sniper/internal/dedupe"
	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/evaluate"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage/memory"
	"solana-sniper/internal/wallet"
)

type fakeLeaser struct {
	mu         sync.Mutex
	leaseErr   error
	leases     int
	forceCalls int
	handle     *wallet.Handle
}

func (l *fakeLeaser) Lease(context.Context) (*wallet.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leases++
	if l.leaseErr != nil {
		return nil, l.leaseErr
	}
	return l.handle, nil
}

func (l *fakeLeaser) ForceReleaseAll() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forceCalls++
	return 1
}

func (l *fakeLeaser) stats() (leases, forced int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leases, l.forceCalls
}

type fakeExecutor struct {
	mu       sync.Mutex
	executed []*domain.Opportunity
	block    bool // when set, Execute returns only once ctx is canceled
}

func (e *fakeExecutor) Execute(ctx context.Context, opp *domain.Opportunity, _ *wallet.Handle) domain.ExecutionResult {
	e.mu.Lock()
	e.executed = append(e.executed, opp)
	block := e.block
	e.mu.Unlock()
	if block {
		<-ctx.Done()
		return domain.ExecutionResult{Status: domain.StatusAbandoned}
	}
	return domain.ExecutionResult{Status: domain.StatusConfirmed}
}

func (e *fakeExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.executed)
}

func newEvent(t *testing.T) *domain.PoolEvent {
	t.Helper()
	kp, err := solana.NewKeypair()
	require.NoError(t, err)
	return &domain.PoolEvent{
		PoolAddress:   "pool",
		BaseMint:      kp.Pubkey(),
		QuoteMint:     discovery.WSOL,
		QuoteLamports: 100_000_000_000,
		TxSignature:   "sig-" + kp.Pubkey()[:8],
		Slot:          500,
		BlockTime:     time.Now().UnixMilli(),
		DetectedAt:    time.Now(),
	}
}

type harness struct {
	disp   *Dispatcher
	leaser *fakeLeaser
	exec   *fakeExecutor
	trades *memory.TradeStore
	events chan *domain.PoolEvent
	done   chan struct{}
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	kp, err := solana.NewKeypair()
	require.NoError(t, err)

	h := &harness{
		leaser: &fakeLeaser{handle: &wallet.Handle{Pubkey: kp.Pubkey(), Keypair: kp, Lamports: 1e9, Token: 1}},
		exec:   &fakeExecutor{},
		trades: memory.NewTradeStore(),
		events: make(chan *domain.PoolEvent, 8),
		done:   make(chan struct{}),
	}

	eval := evaluate.New(evaluate.FilterConfig{
		MinQuoteLamports: 1_000_000_000,
		MaxPairAge:       time.Minute,
		ExecutionWindow:  5 * time.Second,
	})
	h.disp = New(eval, dedupe.NewSeenSet(time.Hour, 4), h.leaser, h.exec, h.trades, opts...)
	return h
}

func (h *harness) run(ctx context.Context) {
	go func() {
		h.disp.Run(ctx, h.events)
		close(h.done)
	}()
}

func (h *harness) finish(t *testing.T) {
	t.Helper()
	close(h.events)
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not drain")
	}
}

func TestDispatcher_ExecutesAcceptedEvent(t *testing.T) {
	h := newHarness(t)
	h.run(context.Background())

	h.events <- newEvent(t)
	h.finish(t)

	require.Equal(t, 1, h.exec.count())
	leases, _ := h.leaser.stats()
	require.Equal(t, 1, leases)
}

func TestDispatcher_RejectedEventNeverLeases(t *testing.T) {
	h := newHarness(t)
	h.run(context.Background())

	ev := newEvent(t)
	ev.QuoteLamports = 1 // below the liquidity floor
	h.events <- ev
	h.finish(t)

	require.Equal(t, 0, h.exec.count())
	leases, _ := h.leaser.stats()
	require.Equal(t, 0, leases)
}

func TestDispatcher_DuplicatePairExecutesOnce(t *testing.T) {
	h := newHarness(t)
	h.run(context.Background())

	ev := newEvent(t)
	second := *ev
	second.TxSignature = "other-sig"
	second.PoolAddress = "other-pool"
	h.events <- ev
	h.events <- &second
	h.finish(t)

	require.Equal(t, 1, h.exec.count(), "same pair must execute once")
	leases, _ := h.leaser.stats()
	require.Equal(t, 1, leases, "duplicates are dropped before leasing")
}

func TestDispatcher_NoWalletWritesTradeRecord(t *testing.T) {
	h := newHarness(t)
	h.leaser.leaseErr = wallet.ErrBusy
	h.run(context.Background())

	h.events <- newEvent(t)
	h.finish(t)

	require.Equal(t, 0, h.exec.count())
	trades, err := h.trades.GetByTimeRange(context.Background(), 0, time.Now().UnixMilli()+1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, domain.StatusAbandoned, trades[0].Status)
	require.Contains(t, trades[0].Reason, "no wallet available")
}

func TestDispatcher_AllWalletsUnderfundedFails(t *testing.T) {
	h := newHarness(t)
	h.leaser.leaseErr = wallet.ErrInsufficientFunds
	h.run(context.Background())

	h.events <- newEvent(t)
	h.finish(t)

	trades, err := h.trades.GetByTimeRange(context.Background(), 0, time.Now().UnixMilli()+1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, domain.StatusFailed, trades[0].Status)
	require.Equal(t, domain.FailInsufficientFunds, trades[0].Failure)
}

func TestDispatcher_ShutdownForceReleasesStragglers(t *testing.T) {
	h := newHarness(t, WithShutdownGrace(20*time.Millisecond))
	h.exec.block = true

	ctx, cancel := context.WithCancel(context.Background())
	h.run(ctx)

	h.events <- newEvent(t)
	// Let the execution start before shutting down.
	require.Eventually(t, func() bool { return h.exec.count() == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	_, forced := h.leaser.stats()
	require.Equal(t, 1, forced, "stragglers past the grace period are force-released")
}
