package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Well-known program IDs.
const (
	SystemProgram          = "11111111111111111111111111111111"
	TokenProgram           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgram = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// AccountMeta describes how an instruction touches an account.
type AccountMeta struct {
	Pubkey   string
	Signer   bool
	Writable bool
}

// Instruction is one program invocation within a transaction.
type Instruction struct {
	ProgramID string
	Accounts  []AccountMeta
	Data      []byte
}

// SystemTransfer builds a system-program lamport transfer.
func SystemTransfer(from, to string, lamports uint64) Instruction {
	// System instruction index 2 = Transfer, u32 LE tag + u64 LE lamports.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return Instruction{
		ProgramID: SystemProgram,
		Accounts: []AccountMeta{
			{Pubkey: from, Signer: true, Writable: true},
			{Pubkey: to, Writable: true},
		},
		Data: data,
	}
}

// SyncNative builds the token-program instruction that updates a
// wrapped-SOL account's token balance from its lamport balance.
func SyncNative(account string) Instruction {
	return Instruction{
		ProgramID: TokenProgram,
		Accounts: []AccountMeta{
			{Pubkey: account, Writable: true},
		},
		Data: []byte{17},
	}
}

// BuildTransaction compiles, signs and serializes a legacy transaction
// with a single fee-paying signer. The result is base64 suitable for
// sendTransaction.
func BuildTransaction(signer *Keypair, recentBlockhash string, instructions ...Instruction) (string, error) {
	if len(instructions) == 0 {
		return "", fmt.Errorf("no instructions")
	}

	msg, err := compileMessage(signer.Pubkey(), recentBlockhash, instructions)
	if err != nil {
		return "", err
	}

	sig := signer.Sign(msg)

	// Transaction wire format: shortvec signature count, signatures, message.
	var tx []byte
	tx = appendShortvecLen(tx, 1)
	tx = append(tx, sig...)
	tx = append(tx, msg...)

	return base64.StdEncoding.EncodeToString(tx), nil
}

// compiledAccount tracks the merged access flags for one account key.
type compiledAccount struct {
	pubkey   string
	signer   bool
	writable bool
}

// compileMessage builds the legacy message bytes: header, account keys,
// recent blockhash, compiled instructions.
func compileMessage(feePayer, recentBlockhash string, instructions []Instruction) ([]byte, error) {
	accounts := []compiledAccount{{pubkey: feePayer, signer: true, writable: true}}
	index := map[string]int{feePayer: 0}

	merge := func(meta AccountMeta) {
		if i, ok := index[meta.Pubkey]; ok {
			accounts[i].signer = accounts[i].signer || meta.Signer
			accounts[i].writable = accounts[i].writable || meta.Writable
			return
		}
		index[meta.Pubkey] = len(accounts)
		accounts = append(accounts, compiledAccount{
			pubkey:   meta.Pubkey,
			signer:   meta.Signer,
			writable: meta.Writable,
		})
	}

	for _, instr := range instructions {
		for _, meta := range instr.Accounts {
			merge(meta)
		}
		merge(AccountMeta{Pubkey: instr.ProgramID})
	}

	// Message account order: writable signers, readonly signers,
	// writable non-signers, readonly non-signers. Fee payer stays first.
	ordered := make([]compiledAccount, 0, len(accounts))
	for _, class := range []func(compiledAccount) bool{
		func(a compiledAccount) bool { return a.signer && a.writable },
		func(a compiledAccount) bool { return a.signer && !a.writable },
		func(a compiledAccount) bool { return !a.signer && a.writable },
		func(a compiledAccount) bool { return !a.signer && !a.writable },
	} {
		for _, a := range accounts {
			if class(a) {
				ordered = append(ordered, a)
			}
		}
	}

	pos := make(map[string]uint8, len(ordered))
	var numSigners, numReadonlySigned, numReadonlyUnsigned int
	for i, a := range ordered {
		if i > 255 {
			return nil, fmt.Errorf("too many accounts: %d", len(ordered))
		}
		pos[a.pubkey] = uint8(i)
		if a.signer {
			numSigners++
			if !a.writable {
				numReadonlySigned++
			}
		} else if !a.writable {
			numReadonlyUnsigned++
		}
	}

	blockhash, err := DecodePubkey(recentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("decode blockhash: %w", err)
	}

	var msg []byte
	msg = append(msg, uint8(numSigners), uint8(numReadonlySigned), uint8(numReadonlyUnsigned))

	msg = appendShortvecLen(msg, len(ordered))
	for _, a := range ordered {
		key, err := DecodePubkey(a.pubkey)
		if err != nil {
			return nil, err
		}
		msg = append(msg, key...)
	}

	msg = append(msg, blockhash...)

	msg = appendShortvecLen(msg, len(instructions))
	for _, instr := range instructions {
		msg = append(msg, pos[instr.ProgramID])
		msg = appendShortvecLen(msg, len(instr.Accounts))
		for _, meta := range instr.Accounts {
			msg = append(msg, pos[meta.Pubkey])
		}
		msg = appendShortvecLen(msg, len(instr.Data))
		msg = append(msg, instr.Data...)
	}

	return msg, nil
}

// appendShortvecLen appends a compact-u16 length prefix.
func appendShortvecLen(b []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(b, byte(n))
		}
		b = append(b, byte(n&0x7f)|0x80)
		n >>= 7
	}
}
