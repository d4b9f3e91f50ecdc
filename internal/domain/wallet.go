package domain

// Wallet is one funded signing identity in the pool's persisted store.
type Wallet struct {
	Pubkey      string // base58 ed25519 public key
	PrivateKey  []byte // 64-byte ed25519 private key (seed || pubkey)
	Lamports    uint64 // last observed balance snapshot
	RefreshedAt int64  // Unix timestamp ms of the snapshot
}
