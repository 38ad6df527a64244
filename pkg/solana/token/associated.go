package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/system"
)

// AssociatedTokenAccountProgramKey  is the address of the associated token account program that should be used.
//
// Current key: ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL
var AssociatedTokenAccountProgramKey = ed25519.PublicKey{140, 151, 37, 143, 78, 36, 137, 241, 187, 61, 16, 41, 20, 142, 13, 131, 11, 90, 19, 153, 218, 255, 16, 132, 4, 142, 123, 216, 219, 233, 248, 89}

type AssociatedCommand byte

const (
	AssociatedCommandCreate AssociatedCommand = iota
	AssociatedCommandCreateIdempotent
)

// GetAssociatedAccount returns the associated account address for a legacy
// SPL token.
//
// Reference: https://spl.solana.com/associated-token-account#finding-the-associated-token-account-address
func GetAssociatedAccount(wallet, mint ed25519.PublicKey) (ed25519.PublicKey, error) {
	return GetAssociatedAccountForProgram(wallet, mint, ProgramKey)
}

// GetAssociatedAccountForProgram returns the associated account address of
// wallet for a mint owned by tokenProgram.
func GetAssociatedAccountForProgram(wallet, mint, tokenProgram ed25519.PublicKey) (ed25519.PublicKey, error) {
	return solana.FindProgramAddress(
		AssociatedTokenAccountProgramKey,
		wallet,
		tokenProgram,
		mint,
	)
}

// CreateAssociatedTokenAccount creates the associated account, failing if it
// already exists.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/0639953c7dd0f5228c3ceda3ba68fece3b46ff1d/associated-token-account/program/src/lib.rs#L54
func CreateAssociatedTokenAccount(tokenProgram, payer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	return createAssociatedTokenAccount(AssociatedCommandCreate, tokenProgram, payer, wallet, mint)
}

// CreateAssociatedTokenAccountIdempotent creates the associated account if it
// doesn't already exist.
func CreateAssociatedTokenAccountIdempotent(tokenProgram, payer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	return createAssociatedTokenAccount(AssociatedCommandCreateIdempotent, tokenProgram, payer, wallet, mint)
}

func createAssociatedTokenAccount(cmd AssociatedCommand, tokenProgram, payer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	addr, err := GetAssociatedAccountForProgram(wallet, mint, tokenProgram)
	if err != nil {
		return solana.Instruction{}, nil, err
	}

	return solana.NewInstruction(
		AssociatedTokenAccountProgramKey,
		[]byte{byte(cmd)},
		solana.NewAccountMeta(payer, true),
		solana.NewAccountMeta(addr, false),
		solana.NewReadonlyAccountMeta(wallet, false),
		solana.NewReadonlyAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(system.ProgramKey[:], false),
		solana.NewReadonlyAccountMeta(tokenProgram, false),
	), addr, nil
}

type DecompiledCreateAssociatedAccount struct {
	Idempotent   bool
	Payer        ed25519.PublicKey
	Address      ed25519.PublicKey
	Owner        ed25519.PublicKey
	Mint         ed25519.PublicKey
	TokenProgram ed25519.PublicKey
}

// DecodeCreateAssociatedAccount decodes both create variants. Empty data is
// treated as a non-idempotent create.
func DecodeCreateAssociatedAccount(ix solana.Instruction) (*DecompiledCreateAssociatedAccount, error) {
	if !bytes.Equal(ix.Program, AssociatedTokenAccountProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}

	var idempotent bool
	switch {
	case len(ix.Data) == 0, len(ix.Data) == 1 && ix.Data[0] == byte(AssociatedCommandCreate):
	case len(ix.Data) == 1 && ix.Data[0] == byte(AssociatedCommandCreateIdempotent):
		idempotent = true
	default:
		return nil, solana.ErrIncorrectInstruction
	}

	if len(ix.Accounts) != 6 {
		return nil, errors.Errorf("invalid number of accounts: %d (expected %d)", len(ix.Accounts), 6)
	}
	if !bytes.Equal(ix.Accounts[4].PublicKey, system.ProgramKey[:]) {
		return nil, errors.Errorf("system program key mismatch")
	}
	if !IsTokenProgram(ix.Accounts[5].PublicKey) {
		return nil, errors.Errorf("token program key mismatch")
	}

	return &DecompiledCreateAssociatedAccount{
		Idempotent:   idempotent,
		Payer:        ix.Accounts[0].PublicKey,
		Address:      ix.Accounts[1].PublicKey,
		Owner:        ix.Accounts[2].PublicKey,
		Mint:         ix.Accounts[3].PublicKey,
		TokenProgram: ix.Accounts[5].PublicKey,
	}, nil
}

func DecompileCreateAssociatedAccount(m solana.Message, index int) (*DecompiledCreateAssociatedAccount, error) {
	ix, err := decompile(m, index)
	if err != nil {
		return nil, err
	}
	return DecodeCreateAssociatedAccount(ix)
}
