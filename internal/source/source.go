// Package source turns the Raydium log subscription into a stream of
// pool creation events. It owns the bounded buffer between chain
// ingestion and the dispatcher and the outage watchdog that fails the
// process when the chain connection cannot be restored.
package source

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/observability"
	"solana-sniper/internal/solana"
)

const (
	maxTxRetries   = 3
	baseRetryDelay = 500 * time.Millisecond

	// DefaultBufferSize bounds the detected-event queue. When full the
	// oldest event is dropped: a stale pool is worthless, a fresh one
	// is not.
	DefaultBufferSize = 256

	// DefaultMaxOutage is how long the source tolerates a silent
	// connection before giving up.
	DefaultMaxOutage = 2 * time.Minute

	watchdogInterval = 5 * time.Second
)

// SourceError is a fatal source failure. The pipeline cannot continue
// without a chain connection; callers should exit non-zero.
type SourceError struct {
	Outage time.Duration
	Cause  error
}

func (e *SourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("chain event source failed after %v outage: %v", e.Outage, e.Cause)
	}
	return fmt.Sprintf("chain event source failed after %v outage", e.Outage)
}

func (e *SourceError) Unwrap() error { return e.Cause }

// PoolEventSource streams Raydium pool creations detected from the
// logs subscription.
type PoolEventSource struct {
	ws     solana.WSClient
	rpc    solana.RPCClient
	parser *discovery.PoolParser

	bufferSize int
	maxOutage  time.Duration

	mu     sync.Mutex
	err    error
	events chan *domain.PoolEvent
}

// Option configures a PoolEventSource.
type Option func(*PoolEventSource)

// WithBufferSize overrides the detected-event buffer size.
func WithBufferSize(n int) Option {
	return func(s *PoolEventSource) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithMaxOutage overrides the outage deadline.
func WithMaxOutage(d time.Duration) Option {
	return func(s *PoolEventSource) {
		if d > 0 {
			s.maxOutage = d
		}
	}
}

// New creates a pool event source over the given chain clients.
func New(ws solana.WSClient, rpc solana.RPCClient, opts ...Option) *PoolEventSource {
	s := &PoolEventSource{
		ws:         ws,
		rpc:        rpc,
		parser:     discovery.NewPoolParser(),
		bufferSize: DefaultBufferSize,
		maxOutage:  DefaultMaxOutage,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe starts the subscription and returns the event channel. The
// channel is closed when ctx is cancelled or the source fails; after a
// close, Err() reports whether the stop was fatal.
func (s *PoolEventSource) Subscribe(ctx context.Context) (<-chan *domain.PoolEvent, error) {
	logsCh, err := s.ws.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions: []string{discovery.RaydiumAMMV4},
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to raydium logs: %w", err)
	}
	log.Printf("[source] Subscribed to program: %s", discovery.RaydiumAMMV4)

	s.events = make(chan *domain.PoolEvent, s.bufferSize)

	go s.run(ctx, logsCh)
	return s.events, nil
}

// Err returns the fatal error that stopped the source, or nil when it
// stopped because the context was cancelled.
func (s *PoolEventSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *PoolEventSource) run(ctx context.Context, logsCh <-chan solana.LogNotification) {
	defer close(s.events)

	tick := watchdogInterval
	if s.maxOutage < tick {
		tick = s.maxOutage
	}
	watchdog := time.NewTicker(tick)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-watchdog.C:
			outage := time.Since(s.ws.LastActivity())
			if outage > s.maxOutage {
				s.fail(&SourceError{Outage: outage})
				return
			}
		case notif, ok := <-logsCh:
			if !ok {
				s.fail(&SourceError{
					Outage: time.Since(s.ws.LastActivity()),
					Cause:  fmt.Errorf("log subscription closed"),
				})
				return
			}
			s.processNotification(ctx, notif)
		}
	}
}

func (s *PoolEventSource) fail(err *SourceError) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	log.Printf("[source] FATAL: %v", err)
}

// processNotification checks one log notification for a pool creation
// and, if it is one, fetches the transaction and emits the event.
func (s *PoolEventSource) processNotification(ctx context.Context, notif solana.LogNotification) {
	// Skip failed transactions
	if notif.Err != nil {
		return
	}
	if !s.parser.IsPoolCreation(notif.Logs) {
		return
	}

	log.Printf("[source] Pool creation candidate: sig=%s slot=%d", notif.Signature, notif.Slot)

	// Fetch full transaction for account keys and blockTime with retry
	tx, err := retryGetTransaction(ctx, s.rpc, notif.Signature)
	if err != nil || tx == nil {
		log.Printf("WARN: RPC fetch failed for pool creation tx %s after %d retries, event dropped: %v", notif.Signature, maxTxRetries, err)
		return
	}
	if tx.Meta != nil && tx.Meta.Err != nil {
		return
	}

	var accountKeys []string
	if tx.Message != nil {
		accountKeys = tx.Message.AccountKeys
	}

	logs := notif.Logs
	if tx.Meta != nil && len(tx.Meta.LogMessages) > 0 {
		logs = tx.Meta.LogMessages
	}

	event := s.parser.ParsePoolCreation(logs, accountKeys, notif.Signature, notif.Slot, tx.BlockTime*1000)
	if event == nil {
		log.Printf("[source] SKIP: unparseable pool creation tx %s", notif.Signature)
		return
	}

	observability.RecordEventDetected(float64(event.DetectedAt.Unix()))
	s.emit(event)
}

// emit enqueues an event, dropping the oldest buffered event when the
// buffer is full. Never blocks.
func (s *PoolEventSource) emit(event *domain.PoolEvent) {
	for {
		select {
		case s.events <- event:
			observability.UpdateSourceBuffer(len(s.events))
			return
		default:
		}

		select {
		case stale := <-s.events:
			observability.RecordEventDropped()
			log.Printf("[source] DROP: buffer full, dropping oldest event pool=%s", stale.PoolAddress)
		default:
		}
	}
}

// retryGetTransaction fetches a transaction with exponential backoff retry.
func retryGetTransaction(ctx context.Context, rpc solana.RPCClient, signature string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		tx, err := rpc.GetTransaction(ctx, signature)
		if err == nil {
			return tx, nil
		}
		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// Exponential backoff: 500ms, 1s, 2s
		delay := baseRetryDelay * time.Duration(1<<attempt)
		log.Printf("[source] Retry %d/%d for GetTransaction %s after %v: %v", attempt+1, maxTxRetries, signature, delay, err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
