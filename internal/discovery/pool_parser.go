package discovery

import (
	"encoding/base64"
	"encoding/binary"
	"regexp"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"solana-sniper/internal/domain"
)

// Known program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// WSOL is the Wrapped SOL mint address.
	WSOL = "So11111111111111111111111111111111111111112"
)

// initMarker appears in the program logs of a pool creation transaction.
const initMarker = "initialize2"

// Raydium AMM v4 initialize2 account layout. The indices the sniper
// needs:
// 4: AMM ID (pool), 5: AMM authority, 6: AMM open orders,
// 7: LP mint, 8: coin mint, 9: PC mint, 10: coin vault, 11: PC vault.
const (
	initPoolIndex       = 4
	initAuthorityIndex  = 5
	initOpenOrdersIndex = 6
	initCoinMintIndex   = 8
	initPCMintIndex     = 9
	initCoinVaultIndex  = 10
	initPCVaultIndex    = 11
	initMinAccounts     = 12
)

// PoolParser extracts pool-creation events from Raydium AMM v4
// transactions.
type PoolParser struct {
	rayLogPattern *regexp.Regexp
}

// NewPoolParser creates a Raydium pool-creation parser.
func NewPoolParser() *PoolParser {
	return &PoolParser{
		rayLogPattern: regexp.MustCompile(`ray_log: ([A-Za-z0-9+/=]+)`),
	}
}

// IsPoolCreation reports whether the logs of a transaction contain the
// initialize2 marker. Cheap pre-filter before fetching the full
// transaction.
func (p *PoolParser) IsPoolCreation(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, initMarker) {
			return true
		}
	}
	return false
}

// ParsePoolCreation builds a PoolEvent from an initialize2 transaction's
// logs and account keys. Returns nil when the transaction is not a
// parseable pool creation.
//
// The event is oriented so that BaseMint is the newly listed token and
// QuoteMint the funding side: when the coin side is WSOL the pair is
// flipped, vaults included.
func (p *PoolParser) ParsePoolCreation(logs []string, accountKeys []string, txSig string, slot int64, timestamp int64) *domain.PoolEvent {
	if !p.IsPoolCreation(logs) {
		return nil
	}
	if len(accountKeys) < initMinAccounts {
		return nil
	}

	event := &domain.PoolEvent{
		PoolAddress: accountKeys[initPoolIndex],
		Authority:   accountKeys[initAuthorityIndex],
		OpenOrders:  accountKeys[initOpenOrdersIndex],
		BaseMint:    accountKeys[initCoinMintIndex],
		QuoteMint:   accountKeys[initPCMintIndex],
		BaseVault:   accountKeys[initCoinVaultIndex],
		QuoteVault:  accountKeys[initPCVaultIndex],
		TxSignature: txSig,
		Slot:        slot,
		BlockTime:   timestamp,
		DetectedAt:  time.Now(),
	}

	if init, ok := p.parseInitLog(logs); ok {
		event.BaseLamports = init.coinAmount
		event.QuoteLamports = init.pcAmount
		event.Market = init.market
	}

	if event.BaseMint == WSOL {
		event.BaseMint, event.QuoteMint = event.QuoteMint, event.BaseMint
		event.BaseVault, event.QuoteVault = event.QuoteVault, event.BaseVault
		event.BaseLamports, event.QuoteLamports = event.QuoteLamports, event.BaseLamports
	}

	return event
}

// Raydium init ray_log layout:
// log_type(1) + time(8) + pc_decimals(1) + coin_decimals(1) +
// pc_lot_size(8) + coin_lot_size(8) + pc_amount(8) + coin_amount(8) + market(32)
const (
	initLogType          = 0x00
	initPCAmountOffset   = 27
	initCoinAmountOffset = 35
	initMarketOffset     = 43
	initLogMinLen        = 43
	initLogFullLen       = 75
)

type initLog struct {
	coinAmount uint64
	pcAmount   uint64
	market     string
}

// parseInitLog extracts the initial deposit amounts and the serum
// market from the init ray_log entry, if present.
func (p *PoolParser) parseInitLog(logs []string) (initLog, bool) {
	for _, line := range logs {
		matches := p.rayLogPattern.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(matches[1])
		if err != nil {
			continue
		}
		if len(data) < initLogMinLen || data[0] != initLogType {
			continue
		}

		init := initLog{
			pcAmount:   binary.LittleEndian.Uint64(data[initPCAmountOffset : initPCAmountOffset+8]),
			coinAmount: binary.LittleEndian.Uint64(data[initCoinAmountOffset : initCoinAmountOffset+8]),
		}
		if len(data) >= initLogFullLen {
			init.market = base58.Encode(data[initMarketOffset : initMarketOffset+32])
		}
		return init, true
	}
	return initLog{}, false
}
