package domain

import "time"

// AttemptOutcome is the per-attempt terminal state.
type AttemptOutcome string

const (
	AttemptPending   AttemptOutcome = "PENDING"
	AttemptConfirmed AttemptOutcome = "CONFIRMED"
	AttemptFailed    AttemptOutcome = "FAILED"
	AttemptTimedOut  AttemptOutcome = "TIMED_OUT"
)

// ExecutionAttempt records one submission try for an opportunity.
type ExecutionAttempt struct {
	DedupKey    string
	Seq         int // 1-based attempt number
	Wallet      string
	TxSignature string // empty if the attempt never reached submission
	Outcome     AttemptOutcome
	Err         string
	SubmittedAt time.Time
}

// FailureKind classifies terminal execution failures.
type FailureKind string

const (
	FailMalformed         FailureKind = "MALFORMED_TRANSACTION"
	FailInsufficientFunds FailureKind = "INSUFFICIENT_FUNDS"
	FailRejected          FailureKind = "CHAIN_REJECTED"
	FailSlippage          FailureKind = "SLIPPAGE_EXCEEDED"
	FailExhausted         FailureKind = "RETRIES_EXHAUSTED"
)

// ExecutionStatus is the terminal state of an opportunity execution.
type ExecutionStatus string

const (
	StatusConfirmed ExecutionStatus = "CONFIRMED"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusAbandoned ExecutionStatus = "ABANDONED"
)

// ExecutionResult is what the execution engine returns for one opportunity.
type ExecutionResult struct {
	Status      ExecutionStatus
	TxSignature string      // set when Status is CONFIRMED
	Failure     FailureKind // set when Status is FAILED
	Reason      string      // human-readable detail, e.g. abandon cause
	Attempts    int
}

// TradeRecord is the persisted terminal outcome of one opportunity.
type TradeRecord struct {
	TradeID       string // deterministic hash, see idhash
	DedupKey      string
	BaseMint      string
	PoolAddress   string
	Wallet        string
	Status        ExecutionStatus
	Failure       FailureKind
	Reason        string
	TxSignature   string
	Attempts      int
	SpentLamports uint64
	Score         float64
	EventSlot     int64
	CompletedAt   int64 // Unix timestamp in milliseconds
}
