package solana

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// SerumProgram is the OpenBook (Serum v3) DEX program ID.
const SerumProgram = "srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX"

// SerumMarket holds the market-state accounts a swap against a Raydium
// pool routes through.
type SerumMarket struct {
	OwnAddress   string
	BaseVault    string
	QuoteVault   string
	RequestQueue string
	EventQueue   string
	Bids         string
	Asks         string
	VaultSigner  string
}

// Market state v3 field offsets: 5 bytes of padding, then account
// flags (8), own address (32), vault signer nonce (8), base mint (32),
// quote mint (32), base vault (32), base deposits (8), base fees (8),
// quote vault (32), quote deposits (8), quote fees (8), dust
// threshold (8), request queue (32), event queue (32), bids (32),
// asks (32).
const (
	marketOwnAddressOffset   = 13
	marketVaultNonceOffset   = 45
	marketBaseVaultOffset    = 117
	marketQuoteVaultOffset   = 165
	marketRequestQueueOffset = 221
	marketEventQueueOffset   = 253
	marketBidsOffset         = 285
	marketAsksOffset         = 317
	marketStateMinLen        = 349
)

// ParseSerumMarket decodes a serum market account and derives the
// vault signer from the stored nonce.
func ParseSerumMarket(data []byte) (*SerumMarket, error) {
	if len(data) < marketStateMinLen {
		return nil, fmt.Errorf("market state is %d bytes, want at least %d", len(data), marketStateMinLen)
	}

	pubkeyAt := func(off int) string {
		return base58.Encode(data[off : off+32])
	}

	m := &SerumMarket{
		OwnAddress:   pubkeyAt(marketOwnAddressOffset),
		BaseVault:    pubkeyAt(marketBaseVaultOffset),
		QuoteVault:   pubkeyAt(marketQuoteVaultOffset),
		RequestQueue: pubkeyAt(marketRequestQueueOffset),
		EventQueue:   pubkeyAt(marketEventQueueOffset),
		Bids:         pubkeyAt(marketBidsOffset),
		Asks:         pubkeyAt(marketAsksOffset),
	}

	// vault_signer = create_program_address([market, nonce_le_u64])
	nonce := make([]byte, 8)
	copy(nonce, data[marketVaultNonceOffset:marketVaultNonceOffset+8])
	market := data[marketOwnAddressOffset : marketOwnAddressOffset+32]

	signer, err := CreateProgramAddress([][]byte{market, nonce}, SerumProgram)
	if err != nil {
		return nil, fmt.Errorf("derive vault signer: %w", err)
	}
	m.VaultSigner = signer

	return m, nil
}

// BuildSerumMarketState serializes the fields ParseSerumMarket reads.
// Test helper for round-tripping market accounts.
func BuildSerumMarketState(m *SerumMarket, vaultSignerNonce uint64) ([]byte, error) {
	data := make([]byte, marketStateMinLen)

	put := func(off int, addr string) error {
		b, err := DecodePubkey(addr)
		if err != nil {
			return err
		}
		copy(data[off:off+32], b)
		return nil
	}

	if err := put(marketOwnAddressOffset, m.OwnAddress); err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint64(data[marketVaultNonceOffset:], vaultSignerNonce)
	if err := put(marketBaseVaultOffset, m.BaseVault); err != nil {
		return nil, err
	}
	if err := put(marketQuoteVaultOffset, m.QuoteVault); err != nil {
		return nil, err
	}
	if err := put(marketRequestQueueOffset, m.RequestQueue); err != nil {
		return nil, err
	}
	if err := put(marketEventQueueOffset, m.EventQueue); err != nil {
		return nil, err
	}
	if err := put(marketBidsOffset, m.Bids); err != nil {
		return nil, err
	}
	if err := put(marketAsksOffset, m.Asks); err != nil {
		return nil, err
	}

	return data, nil
}
