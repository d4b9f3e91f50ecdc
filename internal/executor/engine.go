package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/idhash"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
	"solana-sniper/internal/storage"
	"solana-sniper/internal/wallet"
)

const (
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = 200 * time.Millisecond
	DefaultMaxRetryDelay       = 2 * time.Second
	DefaultAttemptTimeout      = 15 * time.Second
	DefaultConfirmPollInterval = 500 * time.Millisecond
	DefaultSlippageTolerance   = 0.10

	// feeReserve stays unspent to cover transaction fees and token
	// account rent.
	feeReserve = 10_000_000

	// Raydium v4 taker fee, 25 bps.
	swapFeeNumerator   = 25
	swapFeeDenominator = 10_000
)

// Releaser returns a leased wallet to its pool.
type Releaser interface {
	Release(h *wallet.Handle) error
}

// Config bounds what a single execution may spend and how hard it
// retries. MaxRetries counts retries beyond the first attempt, so a
// value of 2 allows three attempts in total.
type Config struct {
	MaxSpendLamports    uint64
	SlippageTolerance   float64
	MaxRetries          int
	RetryDelay          time.Duration
	MaxRetryDelay       time.Duration
	AttemptTimeout      time.Duration
	ConfirmPollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SlippageTolerance <= 0 {
		c.SlippageTolerance = DefaultSlippageTolerance
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.ConfirmPollInterval <= 0 {
		c.ConfirmPollInterval = DefaultConfirmPollInterval
	}
	return c
}

// Engine drives one opportunity from leased wallet to terminal trade
// outcome. Every submission try is recorded as an attempt, the
// terminal state as a trade.
type Engine struct {
	rpc      solana.RPCClient
	wallets  Releaser
	attempts storage.AttemptStore
	trades   storage.TradeStore
	cfg      Config
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the engine clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an execution engine. Zero Config fields fall back
// to defaults; MaxSpendLamports must be set by the caller.
func NewEngine(rpc solana.RPCClient, wallets Releaser, attempts storage.AttemptStore, trades storage.TradeStore, cfg Config, opts ...Option) (*Engine, error) {
	if cfg.MaxSpendLamports == 0 {
		return nil, errors.New("executor: MaxSpendLamports must be positive")
	}
	e := &Engine{
		rpc:      rpc,
		wallets:  wallets,
		attempts: attempts,
		trades:   trades,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute runs the opportunity to a terminal state. It always releases
// the wallet exactly once and always persists a trade record, so the
// caller can fire and forget.
func (e *Engine) Execute(ctx context.Context, opp *domain.Opportunity, h *wallet.Handle) domain.ExecutionResult {
	start := e.now()

	res, spent := e.run(ctx, opp, h)

	if err := e.wallets.Release(h); err != nil {
		log.Printf("[executor] release wallet %s: %v", h.Pubkey, err)
	}
	// Terminal records must land even when ctx was canceled mid-flight.
	e.finish(context.Background(), opp, h, res, spent, start)
	return res
}

// attemptResult is the verdict of a single submission try.
type attemptResult struct {
	confirmed bool
	retryable bool
	signature string
	failure   domain.FailureKind
	reason    string
}

func (e *Engine) run(ctx context.Context, opp *domain.Opportunity, h *wallet.Handle) (domain.ExecutionResult, uint64) {
	if e.now().After(opp.Deadline) {
		return domain.ExecutionResult{
			Status: domain.StatusAbandoned,
			Reason: "execution deadline passed before first attempt",
		}, 0
	}
	if h.Lamports <= feeReserve {
		return failed(domain.FailInsufficientFunds, "wallet balance covers fees only", 0), 0
	}

	amountIn := e.cfg.MaxSpendLamports
	if max := h.Lamports - feeReserve; amountIn > max {
		amountIn = max
	}

	acc, err := resolveSwapAccounts(ctx, e.rpc, opp.Event, h.Pubkey)
	if err != nil {
		return failed(domain.FailMalformed, err.Error(), 0), 0
	}

	maxAttempts := e.cfg.MaxRetries + 1
	for seq := 1; seq <= maxAttempts; seq++ {
		if seq > 1 {
			if !sleepCtx(ctx, e.backoff(seq)) {
				return abandoned(seq - 1), 0
			}
			if e.now().After(opp.Deadline) {
				// The deadline stopped the retries, not the attempt
				// budget. Not an error.
				return domain.ExecutionResult{
					Status:   domain.StatusAbandoned,
					Reason:   fmt.Sprintf("deadline elapsed during retries, after %d attempts", seq-1),
					Attempts: seq - 1,
				}, 0
			}
		}

		ar := e.attempt(ctx, opp, h, acc, amountIn, seq)
		switch {
		case ar.confirmed:
			return domain.ExecutionResult{
				Status:      domain.StatusConfirmed,
				TxSignature: ar.signature,
				Attempts:    seq,
			}, amountIn
		case ctx.Err() != nil:
			return abandoned(seq), 0
		case !ar.retryable:
			return failed(ar.failure, ar.reason, seq), 0
		}
		log.Printf("[executor] attempt %d for %s failed, will retry: %s", seq, opp.DedupKey, ar.reason)
	}

	return failed(domain.FailExhausted,
		fmt.Sprintf("no confirmation after %d attempts", maxAttempts), maxAttempts), 0
}

// attempt performs one submission try with fresh blockhash and fresh
// pool reserves, then waits for confirmation. The attempt is persisted
// whatever its outcome.
func (e *Engine) attempt(ctx context.Context, opp *domain.Opportunity, h *wallet.Handle, acc *swapAccounts, amountIn uint64, seq int) attemptResult {
	record := func(sig string, outcome domain.AttemptOutcome, errText string, submittedAt time.Time) {
		e.recordAttempt(ctx, &domain.ExecutionAttempt{
			DedupKey:    opp.DedupKey,
			Seq:         seq,
			Wallet:      h.Pubkey,
			TxSignature: sig,
			Outcome:     outcome,
			Err:         errText,
			SubmittedAt: submittedAt,
		})
	}

	bh, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		record("", domain.AttemptFailed, err.Error(), e.now())
		return attemptResult{retryable: true, reason: fmt.Sprintf("fetch blockhash: %v", err)}
	}

	quoteReserve, err := e.rpc.GetTokenAccountBalance(ctx, opp.Event.QuoteVault)
	if err != nil {
		record("", domain.AttemptFailed, err.Error(), e.now())
		return attemptResult{retryable: true, reason: fmt.Sprintf("fetch quote reserve: %v", err)}
	}
	baseReserve, err := e.rpc.GetTokenAccountBalance(ctx, opp.Event.BaseVault)
	if err != nil {
		record("", domain.AttemptFailed, err.Error(), e.now())
		return attemptResult{retryable: true, reason: fmt.Sprintf("fetch base reserve: %v", err)}
	}

	minOut := minAmountOut(baseReserve, quoteReserve, amountIn, e.cfg.SlippageTolerance)
	if minOut == 0 {
		record("", domain.AttemptFailed, "pool reserves yield zero output", e.now())
		return attemptResult{failure: domain.FailSlippage, reason: "pool too shallow for any output"}
	}

	tx, err := buildBuyTransaction(acc, h.Keypair, bh.Blockhash, amountIn, minOut)
	if err != nil {
		record("", domain.AttemptFailed, err.Error(), e.now())
		return attemptResult{failure: domain.FailMalformed, reason: fmt.Sprintf("build transaction: %v", err)}
	}

	submittedAt := e.now()
	if seq == 1 && !opp.Event.DetectedAt.IsZero() {
		observability.RecordDetectionToSubmit(submittedAt.Sub(opp.Event.DetectedAt).Seconds())
	}

	sig, err := e.rpc.SendTransaction(ctx, tx)
	if err != nil {
		ar := classifySubmitError(err)
		record("", domain.AttemptFailed, err.Error(), submittedAt)
		return ar
	}
	log.Printf("[executor] submitted %s for %s (attempt %d, spend %d lamports, min out %d)",
		sig, opp.DedupKey, seq, amountIn, minOut)

	ar := e.awaitConfirmation(ctx, sig, opp.Deadline)
	switch {
	case ar.confirmed:
		record(sig, domain.AttemptConfirmed, "", submittedAt)
	case ar.retryable && ar.reason == reasonConfirmTimeout:
		record(sig, domain.AttemptTimedOut, ar.reason, submittedAt)
	default:
		record(sig, domain.AttemptFailed, ar.reason, submittedAt)
	}
	return ar
}

const reasonConfirmTimeout = "confirmation timed out"

// awaitConfirmation polls signature status until confirmed commitment,
// a chain-side error, or the attempt window closes. A timed-out
// attempt is retryable with a fresh blockhash.
func (e *Engine) awaitConfirmation(ctx context.Context, sig string, deadline time.Time) attemptResult {
	waitUntil := e.now().Add(e.cfg.AttemptTimeout)
	if deadline.Before(waitUntil) {
		waitUntil = deadline
	}

	for {
		if !sleepCtx(ctx, e.cfg.ConfirmPollInterval) {
			return attemptResult{signature: sig, retryable: true, reason: "canceled while awaiting confirmation"}
		}

		statuses, err := e.rpc.GetSignatureStatuses(ctx, []string{sig})
		if err != nil {
			log.Printf("[executor] status poll for %s: %v", sig, err)
		} else if st := first(statuses); st != nil {
			if st.Err != nil {
				return classifyChainError(sig, st.Err)
			}
			if st.Confirmed() {
				return attemptResult{confirmed: true, signature: sig}
			}
		}

		if e.now().After(waitUntil) {
			return attemptResult{signature: sig, retryable: true, reason: reasonConfirmTimeout}
		}
	}
}

// classifySubmitError decides whether a sendTransaction failure is
// worth a fresh attempt. Transport failures are always retried since
// the node may never have seen the transaction; node-side rejections
// are terminal unless they only invalidate this attempt's blockhash.
func classifySubmitError(err error) attemptResult {
	var rpcErr *solana.RPCError
	if !errors.As(err, &rpcErr) {
		return attemptResult{retryable: true, reason: fmt.Sprintf("submit transport error: %v", err)}
	}

	msg := strings.ToLower(rpcErr.Message)
	switch {
	case strings.Contains(msg, "blockhash not found"):
		return attemptResult{retryable: true, reason: "blockhash expired before submission"}
	case strings.Contains(msg, "node is unhealthy") || strings.Contains(msg, "node is behind"):
		return attemptResult{retryable: true, reason: rpcErr.Message}
	case strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "insufficient lamports"):
		return attemptResult{failure: domain.FailInsufficientFunds, reason: rpcErr.Message}
	case strings.Contains(msg, "0x1e"):
		// Raydium custom error 30, output below the minimum.
		return attemptResult{failure: domain.FailSlippage, reason: rpcErr.Message}
	case rpcErr.Code == -32602 || strings.Contains(msg, "invalid"):
		return attemptResult{failure: domain.FailMalformed, reason: rpcErr.Message}
	default:
		return attemptResult{failure: domain.FailRejected, reason: rpcErr.Message}
	}
}

// classifyChainError maps an on-chain transaction error to a terminal
// failure. The transaction landed, so resubmitting the same swap would
// double-spend rather than recover.
func classifyChainError(sig string, chainErr interface{}) attemptResult {
	text := fmt.Sprint(chainErr)
	if strings.Contains(text, "0x1e") {
		return attemptResult{signature: sig, failure: domain.FailSlippage, reason: "swap output below minimum: " + text}
	}
	return attemptResult{signature: sig, failure: domain.FailRejected, reason: "transaction failed on chain: " + text}
}

// minAmountOut prices the swap against the current reserves with the
// constant-product formula, takes off the AMM fee, then applies the
// slippage tolerance.
func minAmountOut(baseReserve, quoteReserve, amountIn uint64, slippage float64) uint64 {
	if baseReserve == 0 || quoteReserve == 0 || amountIn == 0 {
		return 0
	}

	inWithFee := new(big.Int).SetUint64(amountIn)
	inWithFee.Mul(inWithFee, big.NewInt(swapFeeDenominator-swapFeeNumerator))
	inWithFee.Div(inWithFee, big.NewInt(swapFeeDenominator))

	out := new(big.Int).SetUint64(baseReserve)
	out.Mul(out, inWithFee)
	out.Div(out, new(big.Int).Add(new(big.Int).SetUint64(quoteReserve), inWithFee))

	scaled := int64((1 - slippage) * float64(swapFeeDenominator))
	if scaled < 0 {
		scaled = 0
	}
	out.Mul(out, big.NewInt(scaled))
	out.Div(out, big.NewInt(swapFeeDenominator))

	if !out.IsUint64() {
		return 0
	}
	return out.Uint64()
}

// backoff doubles the retry delay per attempt up to MaxRetryDelay.
// Doubling stops at the cap so large attempt counts cannot overflow.
func (e *Engine) backoff(seq int) time.Duration {
	d := e.cfg.RetryDelay
	for i := 2; i < seq; i++ {
		d *= 2
		if d >= e.cfg.MaxRetryDelay {
			return e.cfg.MaxRetryDelay
		}
	}
	if d > e.cfg.MaxRetryDelay {
		d = e.cfg.MaxRetryDelay
	}
	return d
}

func (e *Engine) recordAttempt(ctx context.Context, a *domain.ExecutionAttempt) {
	observability.RecordAttempt(strings.ToLower(string(a.Outcome)))
	if err := e.attempts.Insert(ctx, a); err != nil {
		log.Printf("[executor] persist attempt %s/%d: %v", a.DedupKey, a.Seq, err)
	}
}

// finish emits the terminal metrics and persists the trade record.
func (e *Engine) finish(ctx context.Context, opp *domain.Opportunity, h *wallet.Handle, res domain.ExecutionResult, spent uint64, start time.Time) {
	elapsed := e.now().Sub(start)
	observability.RecordExecution(strings.ToLower(string(res.Status)), elapsed.Seconds())

	switch res.Status {
	case domain.StatusConfirmed:
		log.Printf("[executor] confirmed %s for %s in %v (%d attempts, %d lamports)",
			res.TxSignature, opp.DedupKey, elapsed, res.Attempts, spent)
	default:
		log.Printf("[executor] %s for %s after %d attempts: %s",
			strings.ToLower(string(res.Status)), opp.DedupKey, res.Attempts, res.Reason)
	}

	trade := &domain.TradeRecord{
		TradeID:       idhash.ComputeTradeID(opp.DedupKey, h.Pubkey, res.TxSignature, opp.Event.Slot),
		DedupKey:      opp.DedupKey,
		BaseMint:      opp.Event.BaseMint,
		PoolAddress:   opp.Event.PoolAddress,
		Wallet:        h.Pubkey,
		Status:        res.Status,
		Failure:       res.Failure,
		Reason:        res.Reason,
		TxSignature:   res.TxSignature,
		Attempts:      res.Attempts,
		SpentLamports: spent,
		Score:         opp.Score,
		EventSlot:     opp.Event.Slot,
		CompletedAt:   e.now().UnixMilli(),
	}
	if err := e.trades.Insert(ctx, trade); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		log.Printf("[executor] persist trade %s: %v", trade.TradeID, err)
	}
}

func failed(kind domain.FailureKind, reason string, attempts int) domain.ExecutionResult {
	return domain.ExecutionResult{
		Status:   domain.StatusFailed,
		Failure:  kind,
		Reason:   reason,
		Attempts: attempts,
	}
}

func abandoned(attempts int) domain.ExecutionResult {
	return domain.ExecutionResult{
		Status:   domain.StatusAbandoned,
		Reason:   "shutdown before completion",
		Attempts: attempts,
	}
}

func first(statuses []*solana.SignatureStatus) *solana.SignatureStatus {
	if len(statuses) == 0 {
		return nil
	}
	return statuses[0]
}

// sleepCtx waits d or until ctx is done, reporting whether the full
// wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
