package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface the pipeline needs.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenAccountBalance returns the raw token amount held by an
	// SPL token account.
	GetTokenAccountBalance(ctx context.Context, account string) (uint64, error)

	// GetAccountInfo returns the raw data of an account, or nil when
	// the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) ([]byte, error)

	// GetLatestBlockhash returns the most recent confirmed blockhash.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a signed, base64-encoded transaction.
	// It is never retried at the transport level.
	SendTransaction(ctx context.Context, signedTx string) (string, error)

	// GetSignatureStatuses returns confirmation status per signature.
	// A nil entry means the signature is unknown to the cluster.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetBlockTime returns the estimated production time of a slot.
	GetBlockTime(ctx context.Context, slot int64) (*int64, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
}

// Blockhash is a recent blockhash with its expiry height.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SignatureStatus is the cluster-side status of a submitted signature.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *uint64
	ConfirmationStatus string // "processed", "confirmed" or "finalized"
	Err                interface{}
}

// Confirmed reports whether the signature reached at least confirmed
// commitment without a transaction error.
func (s *SignatureStatus) Confirmed() bool {
	if s == nil || s.Err != nil {
		return false
	}
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}
