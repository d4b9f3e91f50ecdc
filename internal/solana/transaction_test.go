package solana

import (
	"encoding/base64"
	"testing"

	"github.com/mr-tron/base58"
)

func testBlockhash() string {
	// Any 32-byte value works as a blockhash for serialization tests.
	b := make([]byte, 32)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return base58.Encode(b)
}

func TestBuildTransaction_Transfer(t *testing.T) {
	from, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	to, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}

	instr := SystemTransfer(from.Pubkey(), to.Pubkey(), 1_000_000)
	encoded, err := BuildTransaction(from, testBlockhash(), instr)
	if err != nil {
		t.Fatalf("BuildTransaction: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("result is not valid base64: %v", err)
	}

	// shortvec(1) + one 64-byte signature + message
	if raw[0] != 1 {
		t.Errorf("expected 1 signature, header says %d", raw[0])
	}

	msg := raw[1+64:]
	// Header: 1 signer, 0 readonly signed; accounts: from, to, system program.
	if msg[0] != 1 {
		t.Errorf("numRequiredSignatures = %d, want 1", msg[0])
	}
	if msg[1] != 0 {
		t.Errorf("numReadonlySigned = %d, want 0", msg[1])
	}
	if msg[2] != 1 {
		t.Errorf("numReadonlyUnsigned = %d, want 1 (system program)", msg[2])
	}
	if msg[3] != 3 {
		t.Errorf("account count = %d, want 3", msg[3])
	}

	// Fee payer must be the first account key.
	feePayer := base58.Encode(msg[4 : 4+32])
	if feePayer != from.Pubkey() {
		t.Errorf("first account key = %s, want fee payer %s", feePayer, from.Pubkey())
	}
}

func TestBuildTransaction_DedupesAccounts(t *testing.T) {
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}

	// Self-transfer mentions the same account twice.
	instr := SystemTransfer(kp.Pubkey(), kp.Pubkey(), 1)
	encoded, err := BuildTransaction(kp, testBlockhash(), instr)
	if err != nil {
		t.Fatalf("BuildTransaction: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(encoded)
	msg := raw[1+64:]
	if msg[3] != 2 {
		t.Errorf("account count = %d, want 2 (wallet + system program)", msg[3])
	}
}

func TestAppendShortvecLen(t *testing.T) {
	cases := []struct {
		n    int
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xac, 0x02}},
	}

	for _, c := range cases {
		got := appendShortvecLen(nil, c.n)
		if len(got) != len(c.want) {
			t.Errorf("shortvec(%d) = %v, want %v", c.n, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("shortvec(%d) = %v, want %v", c.n, got, c.want)
				break
			}
		}
	}
}

func TestKeypairRoundTrip(t *testing.T) {
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}

	restored, err := KeypairFromBytes(kp.Bytes())
	if err != nil {
		t.Fatalf("KeypairFromBytes: %v", err)
	}

	if restored.Pubkey() != kp.Pubkey() {
		t.Errorf("restored pubkey %s != original %s", restored.Pubkey(), kp.Pubkey())
	}
}

func TestKeypairFromBytes_RejectsBadLength(t *testing.T) {
	if _, err := KeypairFromBytes(make([]byte, 32)); err == nil {
		t.Error("expected error for 32-byte input")
	}
}

func TestValidatePubkey(t *testing.T) {
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}

	if err := ValidatePubkey(kp.Pubkey()); err != nil {
		t.Errorf("fresh keypair pubkey should validate: %v", err)
	}

	if err := ValidatePubkey("not-base58-0OIl"); err == nil {
		t.Error("expected error for malformed address")
	}
}

func TestFindAssociatedTokenAddress_OffCurve(t *testing.T) {
	wallet, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	mint, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}

	ata, err := FindAssociatedTokenAddress(wallet.Pubkey(), mint.Pubkey())
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress: %v", err)
	}

	b, err := DecodePubkey(ata)
	if err != nil {
		t.Fatalf("derived address is not a valid pubkey: %v", err)
	}
	if IsOnCurve(b) {
		t.Error("program derived address must be off-curve")
	}

	// Derivation is deterministic.
	again, err := FindAssociatedTokenAddress(wallet.Pubkey(), mint.Pubkey())
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress: %v", err)
	}
	if again != ata {
		t.Errorf("derivation not deterministic: %s != %s", again, ata)
	}
}
