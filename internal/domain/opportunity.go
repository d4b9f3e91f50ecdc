package domain

import "time"

// RejectReason explains why an event did not become an opportunity.
type RejectReason string

const (
	ReasonLowLiquidity   RejectReason = "LOW_LIQUIDITY"
	ReasonPairTooOld     RejectReason = "PAIR_TOO_OLD"
	ReasonDenylisted     RejectReason = "DENYLISTED"
	ReasonNotAllowlisted RejectReason = "NOT_ALLOWLISTED"
	ReasonQuoteNotSOL    RejectReason = "QUOTE_NOT_SOL"
	ReasonBadMint        RejectReason = "BAD_MINT"
	ReasonTimeout        RejectReason = "EVALUATION_TIMEOUT"
)

// Decision is the evaluator verdict for a single pool event.
// Accepted decisions carry a score and an execution deadline.
type Decision struct {
	Accepted bool
	Reason   RejectReason // set when Accepted is false
	Score    float64
	Deadline time.Time
}

// Opportunity is an accepted pool event bound for execution.
// The dispatcher owns it until handoff to the execution engine;
// ownership transfers at dispatch and the dispatcher must not touch
// it afterwards.
type Opportunity struct {
	Event    *PoolEvent
	DedupKey string
	Score    float64
	Deadline time.Time
}

// Less orders opportunities by score descending, with ties broken by
// earlier event block time and then by signature for determinism.
func (o *Opportunity) Less(other *Opportunity) bool {
	if o.Score != other.Score {
		return o.Score > other.Score
	}
	if o.Event.BlockTime != other.Event.BlockTime {
		return o.Event.BlockTime < other.Event.BlockTime
	}
	return o.Event.TxSignature < other.Event.TxSignature
}
