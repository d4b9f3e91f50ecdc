package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeDedupKey computes a deterministic dedup key for a trading pair
// using SHA256. The key depends only on the pair identifiers, so two
// pool-creation events for the same pair map to the same key regardless
// of pool address or signature.
// Formula: SHA256(base_mint|quote_mint)
// Returns hex-encoded hash (64 characters).
func ComputeDedupKey(baseMint, quoteMint string) string {
	data := fmt.Sprintf("%s|%s", baseMint, quoteMint)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeTradeID computes a deterministic trade record identifier.
// Formula: SHA256(dedup_key|wallet|tx_signature|slot)
func ComputeTradeID(dedupKey, wallet, txSignature string, slot int64) string {
	data := fmt.Sprintf("%s|%s|%s|%d", dedupKey, wallet, txSignature, slot)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
