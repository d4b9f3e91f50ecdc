package domain

import "time"

// PoolEvent represents a detected pool creation on a DEX.
// It is immutable after construction and is discarded after evaluation.
type PoolEvent struct {
	PoolAddress string // AMM pool account
	BaseMint    string // newly listed token mint
	QuoteMint   string // quote mint, WSOL for SOL pairs

	// Raydium v4 accounts needed to build a swap against this pool.
	Authority  string
	OpenOrders string
	BaseVault  string
	QuoteVault string
	Market     string // serum market backing the pool, from the init ray_log

	// Initial liquidity at pool creation, in raw token units.
	BaseLamports  uint64
	QuoteLamports uint64

	TxSignature string
	Slot        int64
	BlockTime   int64     // Unix timestamp in milliseconds
	DetectedAt  time.Time // local receive time
}

// PairAge returns how long ago the pool was created, relative to now.
// Falls back to DetectedAt when the chain did not report a block time.
func (e *PoolEvent) PairAge(now time.Time) time.Duration {
	if e.BlockTime > 0 {
		return now.Sub(time.UnixMilli(e.BlockTime))
	}
	return now.Sub(e.DetectedAt)
}
