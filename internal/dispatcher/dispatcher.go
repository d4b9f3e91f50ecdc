package dispatcher

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"solana-sniper/internal/dedupe"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/evaluate"
	"solana-sniper/internal/idhash"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/wallet"
)

// DefaultShutdownGrace is how long in-flight executions may keep
// running after the dispatcher is told to stop.
const DefaultShutdownGrace = 10 * time.Second

// Executor runs an accepted opportunity to a terminal state. It owns
// the wallet handle from the moment it is called.
type Executor interface {
	Execute(ctx context.Context, opp *domain.Opportunity, h *wallet.Handle) domain.ExecutionResult
}

// Leaser hands out wallets and can reclaim them all on shutdown.
type Leaser interface {
	Lease(ctx context.Context) (*wallet.Handle, error)
	ForceReleaseAll() int
}

// Dispatcher connects detection to execution: it evaluates each pool
// event, deduplicates accepted ones by trading pair, leases a wallet
// and hands the opportunity to the executor on its own goroutine.
type Dispatcher struct {
	eval   *evaluate.Evaluator
	seen   *dedupe.SeenSet
	pool   Leaser
	exec   Executor
	trades storage.TradeStore
	grace  time.Duration
	now    func() time.Time

	wg sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithShutdownGrace sets how long in-flight executions get to finish
// after shutdown begins.
func WithShutdownGrace(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.grace = d }
}

// WithClock replaces the dispatcher clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(disp *Dispatcher) { disp.now = now }
}

// New creates a dispatcher. The trade store receives records for
// opportunities that never reached the executor.
func New(eval *evaluate.Evaluator, seen *dedupe.SeenSet, pool Leaser, exec Executor, trades storage.TradeStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		eval:   eval,
		seen:   seen,
		pool:   pool,
		exec:   exec,
		trades: trades,
		grace:  DefaultShutdownGrace,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes events until the channel closes or ctx is canceled,
// then drains in-flight executions. It blocks for the dispatcher's
// whole lifetime.
func (d *Dispatcher) Run(ctx context.Context, events <-chan *domain.PoolEvent) {
	// Executions outlive ctx so a shutdown does not strand wallets
	// mid-submission; execCancel fires only after the grace period.
	execCtx, execCancel := context.WithCancel(context.Background())
	defer execCancel()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				log.Printf("[dispatcher] event stream closed, draining")
				d.drain(execCancel)
				return
			}
			d.handle(ctx, execCtx, ev)
		case <-ctx.Done():
			log.Printf("[dispatcher] shutdown requested, draining")
			d.drain(execCancel)
			return
		}
	}
}

func (d *Dispatcher) handle(ctx, execCtx context.Context, ev *domain.PoolEvent) {
	start := d.now()
	decision := d.eval.Evaluate(ev)
	observability.RecordEvaluation(decision.Accepted, string(decision.Reason), d.now().Sub(start).Seconds())

	if !decision.Accepted {
		log.Printf("[dispatcher] REJECT %s/%s: %s", ev.BaseMint, ev.QuoteMint, decision.Reason)
		return
	}

	dedupKey := idhash.ComputeDedupKey(ev.BaseMint, ev.QuoteMint)
	if !d.seen.CheckAndInsert(dedupKey) {
		observability.RecordDuplicate()
		log.Printf("[dispatcher] DUPLICATE %s, pair already executed", dedupKey)
		return
	}

	opp := &domain.Opportunity{
		Event:    ev,
		DedupKey: dedupKey,
		Score:    decision.Score,
		Deadline: decision.Deadline,
	}

	h, err := d.pool.Lease(ctx)
	if err != nil {
		d.recordUndispatched(opp, err)
		return
	}
	log.Printf("[dispatcher] ACCEPT %s score=%.2f wallet=%s", dedupKey, opp.Score, h.Pubkey)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.exec.Execute(execCtx, opp, h)
	}()
}

// recordUndispatched persists the terminal record for an opportunity
// that never got a wallet, so the audit trail stays complete.
func (d *Dispatcher) recordUndispatched(opp *domain.Opportunity, cause error) {
	status := domain.StatusAbandoned
	var failure domain.FailureKind
	reason := "no wallet available: " + cause.Error()
	if errors.Is(cause, wallet.ErrInsufficientFunds) {
		status = domain.StatusFailed
		failure = domain.FailInsufficientFunds
		reason = "all wallets below minimum balance"
	}
	log.Printf("[dispatcher] DROP %s: %s", opp.DedupKey, reason)

	trade := &domain.TradeRecord{
		TradeID:     idhash.ComputeTradeID(opp.DedupKey, "", "", opp.Event.Slot),
		DedupKey:    opp.DedupKey,
		BaseMint:    opp.Event.BaseMint,
		PoolAddress: opp.Event.PoolAddress,
		Status:      status,
		Failure:     failure,
		Reason:      reason,
		Score:       opp.Score,
		EventSlot:   opp.Event.Slot,
		CompletedAt: d.now().UnixMilli(),
	}
	if err := d.trades.Insert(context.Background(), trade); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		log.Printf("[dispatcher] persist trade %s: %v", trade.TradeID, err)
	}
}

// drain waits the grace period for in-flight executions, then cancels
// the stragglers and force-releases their wallets.
func (d *Dispatcher) drain(execCancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[dispatcher] all executions finished")
		return
	case <-time.After(d.grace):
	}

	log.Printf("[dispatcher] grace period expired, canceling in-flight executions")
	execCancel()
	<-done
	if n := d.pool.ForceReleaseAll(); n > 0 {
		log.Printf("[dispatcher] force-released %d wallets", n)
	}
}
