// Package evaluate turns detected pool events into accept/reject
// decisions. Evaluation is a pure function of the event and the
// configured filters; it never performs I/O.
package evaluate

import (
	"time"

	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// DefaultBudget bounds a single evaluation. An overrun rejects the
// event rather than stalling the dispatcher.
const DefaultBudget = 20 * time.Millisecond

// FilterConfig holds the acceptance filters.
type FilterConfig struct {
	// MinQuoteLamports is the minimum initial quote-side liquidity.
	MinQuoteLamports uint64
	// MaxPairAge rejects pools older than this at evaluation time.
	MaxPairAge time.Duration
	// Allowlist, when non-empty, restricts accepted base mints to its
	// members. Denylist always rejects its members and wins over the
	// allowlist.
	Allowlist []string
	Denylist  []string
	// ExecutionWindow sets the accept deadline relative to evaluation
	// time.
	ExecutionWindow time.Duration
}

// Evaluator applies FilterConfig to pool events under a time budget.
type Evaluator struct {
	cfg    FilterConfig
	budget time.Duration
	allow  map[string]struct{}
	deny   map[string]struct{}
	now    func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithBudget overrides the evaluation time budget.
func WithBudget(d time.Duration) Option {
	return func(e *Evaluator) { e.budget = d }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New creates an evaluator for the given filters.
func New(cfg FilterConfig, opts ...Option) *Evaluator {
	e := &Evaluator{
		cfg:    cfg,
		budget: DefaultBudget,
		allow:  make(map[string]struct{}, len(cfg.Allowlist)),
		deny:   make(map[string]struct{}, len(cfg.Denylist)),
		now:    time.Now,
	}
	for _, m := range cfg.Allowlist {
		e.allow[m] = struct{}{}
	}
	for _, m := range cfg.Denylist {
		e.deny[m] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate decides whether event is worth executing. The decision is
// deterministic for a given event and clock reading, except that a
// budget overrun yields Reject(EVALUATION_TIMEOUT).
func (e *Evaluator) Evaluate(event *domain.PoolEvent) domain.Decision {
	start := e.now()
	deadline := start.Add(e.budget)

	d := e.evaluate(event, start)

	// The budget is checked after the filters run. They are pure
	// in-memory lookups, so an overrun only happens under scheduler
	// stalls. Any filter that performs I/O must take the deadline and
	// stop early instead.
	if e.now().After(deadline) {
		return reject(domain.ReasonTimeout)
	}
	return d
}

func (e *Evaluator) evaluate(event *domain.PoolEvent, now time.Time) domain.Decision {
	if event.QuoteMint != discovery.WSOL {
		return reject(domain.ReasonQuoteNotSOL)
	}
	if err := solana.ValidatePubkey(event.BaseMint); err != nil {
		return reject(domain.ReasonBadMint)
	}
	if _, ok := e.deny[event.BaseMint]; ok {
		return reject(domain.ReasonDenylisted)
	}
	if len(e.allow) > 0 {
		if _, ok := e.allow[event.BaseMint]; !ok {
			return reject(domain.ReasonNotAllowlisted)
		}
	}
	if event.QuoteLamports < e.cfg.MinQuoteLamports {
		return reject(domain.ReasonLowLiquidity)
	}
	age := event.PairAge(now)
	if e.cfg.MaxPairAge > 0 && age > e.cfg.MaxPairAge {
		return reject(domain.ReasonPairTooOld)
	}

	return domain.Decision{
		Accepted: true,
		Score:    e.score(event, age),
		Deadline: now.Add(e.cfg.ExecutionWindow),
	}
}

// score ranks accepted events: liquidity-weighted with a freshness
// bonus. Only used for prioritization and reporting, never to veto.
func (e *Evaluator) score(event *domain.PoolEvent, age time.Duration) float64 {
	liquidity := float64(event.QuoteLamports) / 1e9

	freshness := 1.0
	if e.cfg.MaxPairAge > 0 && age > 0 {
		freshness = 1.0 - float64(age)/float64(e.cfg.MaxPairAge)
		if freshness < 0 {
			freshness = 0
		}
	}

	return liquidity * (1.0 + freshness)
}

func reject(reason domain.RejectReason) domain.Decision {
	return domain.Decision{Accepted: false, Reason: reason}
}
