package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"solana-sniper/internal/storage"
)

func TestKeystoreCreateAndList(t *testing.T) {
	ks, err := NewKeystore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	created, err := ks.CreateWallets(3)
	if err != nil {
		t.Fatalf("CreateWallets failed: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 wallets, got %d", len(created))
	}

	wallets, err := ks.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(wallets) != 3 {
		t.Fatalf("expected 3 listed wallets, got %d", len(wallets))
	}
	for i, w := range wallets {
		if w.Pubkey != created[i].Pubkey {
			t.Errorf("wallet %d pubkey mismatch", i)
		}
		if len(w.PrivateKey) != 64 {
			t.Errorf("wallet %d key length %d", i, len(w.PrivateKey))
		}
	}
}

func TestKeystoreFileFormat(t *testing.T) {
	dir := t.TempDir()
	ks, err := NewKeystore(dir)
	if err != nil {
		t.Fatal(err)
	}

	created, err := ks.CreateWallets(1)
	if err != nil {
		t.Fatal(err)
	}

	// The file must be a JSON array of 64 byte values.
	data, err := os.ReadFile(filepath.Join(dir, "wallet1.json"))
	if err != nil {
		t.Fatal(err)
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		t.Fatalf("wallet file is not a JSON number array: %v", err)
	}
	if len(ints) != 64 {
		t.Fatalf("expected 64 byte values, got %d", len(ints))
	}
	for i, v := range ints {
		if byte(v) != created[0].PrivateKey[i] {
			t.Fatalf("byte %d mismatch", i)
		}
	}
}

func TestKeystoreNumberingContinues(t *testing.T) {
	dir := t.TempDir()
	ks, err := NewKeystore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ks.CreateWallets(2); err != nil {
		t.Fatal(err)
	}
	if _, err := ks.CreateWallets(1); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "wallet3.json")); err != nil {
		t.Errorf("expected wallet3.json to exist: %v", err)
	}
}

func TestKeystoreGetByIndex(t *testing.T) {
	ks, err := NewKeystore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	created, err := ks.CreateWallets(2)
	if err != nil {
		t.Fatal(err)
	}

	w, err := ks.GetByIndex(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetByIndex failed: %v", err)
	}
	if w.Pubkey != created[1].Pubkey {
		t.Errorf("pubkey mismatch")
	}

	_, err = ks.GetByIndex(context.Background(), 9)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestKeystoreBalanceSnapshots(t *testing.T) {
	ks, err := NewKeystore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	created, err := ks.CreateWallets(1)
	if err != nil {
		t.Fatal(err)
	}
	pk := created[0].Pubkey

	if err := ks.UpdateBalance(ctx, pk, 3_000_000_000, 1700000000000); err != nil {
		t.Fatalf("UpdateBalance failed: %v", err)
	}

	w, err := ks.GetByPubkey(ctx, pk)
	if err != nil {
		t.Fatal(err)
	}
	if w.Lamports != 3_000_000_000 {
		t.Errorf("Lamports = %d", w.Lamports)
	}

	if err := ks.UpdateBalance(ctx, "missing", 1, 1); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestKeystoreInsertRejectsDuplicate(t *testing.T) {
	ks, err := NewKeystore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	created, err := ks.CreateWallets(1)
	if err != nil {
		t.Fatal(err)
	}

	err = ks.Insert(ctx, created[0])
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}
