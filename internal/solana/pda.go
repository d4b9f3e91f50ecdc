package solana

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// pdaMarker terminates the seed input for program derived addresses.
const pdaMarker = "ProgramDerivedAddress"

// CreateProgramAddress derives the program address for the exact seed
// list. Fails when the result lands on the curve.
func CreateProgramAddress(seeds [][]byte, programID string) (string, error) {
	program, err := DecodePubkey(programID)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write(program)
	h.Write([]byte(pdaMarker))

	candidate := h.Sum(nil)
	if IsOnCurve(candidate) {
		return "", fmt.Errorf("derived address is on the curve")
	}
	return base58.Encode(candidate), nil
}

// FindProgramAddress derives the first off-curve address for the given
// seeds, walking the bump seed down from 255.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	if _, err := DecodePubkey(programID); err != nil {
		return "", 0, err
	}

	for bump := 255; bump >= 0; bump-- {
		withBump := make([][]byte, 0, len(seeds)+1)
		withBump = append(withBump, seeds...)
		withBump = append(withBump, []byte{uint8(bump)})

		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}

	return "", 0, fmt.Errorf("no viable program address for seeds")
}

// FindAssociatedTokenAddress derives the associated token account for a
// wallet and mint.
func FindAssociatedTokenAddress(wallet, mint string) (string, error) {
	walletKey, err := DecodePubkey(wallet)
	if err != nil {
		return "", err
	}
	mintKey, err := DecodePubkey(mint)
	if err != nil {
		return "", err
	}
	tokenProgram, err := DecodePubkey(TokenProgram)
	if err != nil {
		return "", err
	}

	addr, _, err := FindProgramAddress(
		[][]byte{walletKey, tokenProgram, mintKey},
		AssociatedTokenProgram,
	)
	return addr, err
}

// CreateATAIdempotent builds the associated-token-program instruction
// that creates the ATA if it does not exist yet (CreateIdempotent).
func CreateATAIdempotent(payer, owner, mint, ata string) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenProgram,
		Accounts: []AccountMeta{
			{Pubkey: payer, Signer: true, Writable: true},
			{Pubkey: ata, Writable: true},
			{Pubkey: owner},
			{Pubkey: mint},
			{Pubkey: SystemProgram},
			{Pubkey: TokenProgram},
		},
		Data: []byte{1}, // CreateIdempotent discriminator
	}
}
