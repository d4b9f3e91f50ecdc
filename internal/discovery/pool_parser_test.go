package discovery

import (
	"encoding/base64"
	"encoding/binary"
	"testing"
)

func initAccountKeys() []string {
	return []string{
		"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL",
		"11111111111111111111111111111111",
		"SysvarRent111111111111111111111111111111111",
		"PoolAddr11111111111111111111111111111111111",
		"Author111111111111111111111111111111111111",
		"OpenOrders111111111111111111111111111111111",
		"LPMint1111111111111111111111111111111111111",
		"CoinMint111111111111111111111111111111111111",
		"So11111111111111111111111111111111111111112",
		"CoinVault11111111111111111111111111111111111",
		"PCVault111111111111111111111111111111111111",
	}
}

func initRayLog(coinAmount, pcAmount uint64) string {
	data := make([]byte, 75)
	data[0] = 0x00
	binary.LittleEndian.PutUint64(data[27:35], pcAmount)
	binary.LittleEndian.PutUint64(data[35:43], coinAmount)
	return "Program log: ray_log: " + base64.StdEncoding.EncodeToString(data)
}

func TestIsPoolCreation(t *testing.T) {
	p := NewPoolParser()

	logs := []string{
		"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 invoke [1]",
		"Program log: initialize2: InitializeInstruction2 { nonce: 254, open_time: 0 }",
	}
	if !p.IsPoolCreation(logs) {
		t.Error("expected pool creation to be detected")
	}

	swapLogs := []string{
		"Program 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8 invoke [1]",
		"Program log: ray_log: A8rLOgAAAAAA",
	}
	if p.IsPoolCreation(swapLogs) {
		t.Error("swap logs should not be detected as pool creation")
	}
}

func TestParsePoolCreation(t *testing.T) {
	p := NewPoolParser()

	logs := []string{
		"Program log: initialize2: InitializeInstruction2 { nonce: 254 }",
		initRayLog(1_000_000_000_000, 500_000_000_000),
	}

	event := p.ParsePoolCreation(logs, initAccountKeys(), "sig1", 100, 1700000000000)
	if event == nil {
		t.Fatal("expected a pool event")
	}

	if event.PoolAddress != "PoolAddr11111111111111111111111111111111111" {
		t.Errorf("unexpected pool address %s", event.PoolAddress)
	}
	if event.BaseMint != "CoinMint111111111111111111111111111111111111" {
		t.Errorf("unexpected base mint %s", event.BaseMint)
	}
	if event.QuoteMint != WSOL {
		t.Errorf("unexpected quote mint %s", event.QuoteMint)
	}
	if event.BaseLamports != 1_000_000_000_000 {
		t.Errorf("unexpected base amount %d", event.BaseLamports)
	}
	if event.QuoteLamports != 500_000_000_000 {
		t.Errorf("unexpected quote amount %d", event.QuoteLamports)
	}
	if event.TxSignature != "sig1" || event.Slot != 100 {
		t.Errorf("unexpected signature/slot: %s/%d", event.TxSignature, event.Slot)
	}
	// Market bytes in the test ray_log are zero.
	if event.Market != "11111111111111111111111111111111" {
		t.Errorf("unexpected market %s", event.Market)
	}
}

func TestParsePoolCreationOrientsWSOL(t *testing.T) {
	p := NewPoolParser()

	keys := initAccountKeys()
	// WSOL on the coin side, new token on the PC side.
	keys[8], keys[9] = keys[9], keys[8]
	keys[10], keys[11] = keys[11], keys[10]

	logs := []string{
		"Program log: initialize2: InitializeInstruction2 { nonce: 254 }",
		initRayLog(500_000_000_000, 1_000_000_000_000),
	}

	event := p.ParsePoolCreation(logs, keys, "sig2", 101, 1700000000000)
	if event == nil {
		t.Fatal("expected a pool event")
	}
	if event.QuoteMint != WSOL {
		t.Errorf("quote should be WSOL after orientation, got %s", event.QuoteMint)
	}
	if event.BaseMint != "CoinMint111111111111111111111111111111111111" {
		t.Errorf("unexpected base mint %s", event.BaseMint)
	}
	if event.QuoteLamports != 500_000_000_000 {
		t.Errorf("quote amount should follow WSOL side, got %d", event.QuoteLamports)
	}
}

func TestParsePoolCreationRejectsShortAccounts(t *testing.T) {
	p := NewPoolParser()

	logs := []string{"Program log: initialize2"}
	if event := p.ParsePoolCreation(logs, initAccountKeys()[:6], "sig3", 102, 0); event != nil {
		t.Error("expected nil for truncated account keys")
	}
	if event := p.ParsePoolCreation([]string{"Program log: Swap"}, initAccountKeys(), "sig4", 103, 0); event != nil {
		t.Error("expected nil for non-creation logs")
	}
}
