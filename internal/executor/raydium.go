package executor

import (
	"context"
	"encoding/binary"
	"fmt"

	"solana-sniper/internal/discovery"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/solana"
)

// swapBaseInTag is the Raydium AMM v4 instruction discriminator for a
// fixed-input swap.
const swapBaseInTag = 9

// swapAccounts is the resolved account set for one buy. The serum
// market legs come from the market account on chain, the user token
// accounts are associated token addresses of the leased wallet.
type swapAccounts struct {
	pool       *domain.PoolEvent
	market     *solana.SerumMarket
	owner      string
	userSource string // wrapped SOL token account, funds the swap
	userDest   string // token account receiving the base mint
}

// resolveSwapAccounts fetches the serum market backing the pool and
// derives the wallet's token accounts for both legs of the swap.
func resolveSwapAccounts(ctx context.Context, rpc solana.RPCClient, event *domain.PoolEvent, owner string) (*swapAccounts, error) {
	if event.Market == "" {
		return nil, fmt.Errorf("pool %s carries no serum market", event.PoolAddress)
	}

	data, err := rpc.GetAccountInfo(ctx, event.Market)
	if err != nil {
		return nil, fmt.Errorf("fetch market %s: %w", event.Market, err)
	}
	if data == nil {
		return nil, fmt.Errorf("market account %s does not exist", event.Market)
	}
	market, err := solana.ParseSerumMarket(data)
	if err != nil {
		return nil, fmt.Errorf("parse market %s: %w", event.Market, err)
	}

	source, err := solana.FindAssociatedTokenAddress(owner, discovery.WSOL)
	if err != nil {
		return nil, fmt.Errorf("derive WSOL account: %w", err)
	}
	dest, err := solana.FindAssociatedTokenAddress(owner, event.BaseMint)
	if err != nil {
		return nil, fmt.Errorf("derive token account for %s: %w", event.BaseMint, err)
	}

	return &swapAccounts{
		pool:       event,
		market:     market,
		owner:      owner,
		userSource: source,
		userDest:   dest,
	}, nil
}

// buildSwapBaseIn builds the Raydium swap_base_in instruction routed
// through the pool's serum market. This is the 17-account variant that
// omits amm_target_orders.
func buildSwapBaseIn(acc *swapAccounts, amountIn, minAmountOut uint64) solana.Instruction {
	data := make([]byte, 17)
	data[0] = swapBaseInTag
	binary.LittleEndian.PutUint64(data[1:9], amountIn)
	binary.LittleEndian.PutUint64(data[9:17], minAmountOut)

	return solana.Instruction{
		ProgramID: discovery.RaydiumAMMV4,
		Accounts: []solana.AccountMeta{
			{Pubkey: solana.TokenProgram},
			{Pubkey: acc.pool.PoolAddress, Writable: true},
			{Pubkey: acc.pool.Authority},
			{Pubkey: acc.pool.OpenOrders, Writable: true},
			{Pubkey: acc.pool.BaseVault, Writable: true},
			{Pubkey: acc.pool.QuoteVault, Writable: true},
			{Pubkey: solana.SerumProgram},
			{Pubkey: acc.market.OwnAddress, Writable: true},
			{Pubkey: acc.market.Bids, Writable: true},
			{Pubkey: acc.market.Asks, Writable: true},
			{Pubkey: acc.market.EventQueue, Writable: true},
			{Pubkey: acc.market.BaseVault, Writable: true},
			{Pubkey: acc.market.QuoteVault, Writable: true},
			{Pubkey: acc.market.VaultSigner},
			{Pubkey: acc.userSource, Writable: true},
			{Pubkey: acc.userDest, Writable: true},
			{Pubkey: acc.owner, Signer: true},
		},
		Data: data,
	}
}

// buildBuyTransaction assembles and signs the full buy: create both
// associated token accounts if missing, wrap amountIn lamports into
// WSOL and swap them for the base mint.
func buildBuyTransaction(acc *swapAccounts, signer *solana.Keypair, blockhash string, amountIn, minAmountOut uint64) (string, error) {
	return solana.BuildTransaction(signer, blockhash,
		solana.CreateATAIdempotent(acc.owner, acc.owner, discovery.WSOL, acc.userSource),
		solana.SystemTransfer(acc.owner, acc.userSource, amountIn),
		solana.SyncNative(acc.userSource),
		solana.CreateATAIdempotent(acc.owner, acc.owner, acc.pool.BaseMint, acc.userDest),
		buildSwapBaseIn(acc, amountIn, minAmountOut),
	)
}
