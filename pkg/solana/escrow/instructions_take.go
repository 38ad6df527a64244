package escrow

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/runtime"
	"github.com/code-payments/code-escrow/pkg/solana/system"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

// Positional accounts plus the trailing associated token program
const takeAccountCount = 12

type TakeInstructionAccounts struct {
	Taker        ed25519.PublicKey
	Maker        ed25519.PublicKey
	Escrow       ed25519.PublicKey
	MintA        ed25519.PublicKey
	MintB        ed25519.PublicKey
	Vault        ed25519.PublicKey
	TakerAtaA    ed25519.PublicKey
	TakerAtaB    ed25519.PublicKey
	MakerAtaB    ed25519.PublicKey
	TokenProgram ed25519.PublicKey
}

// NewTakeInstruction settles an escrow: the taker pays the requested amount
// of mint B to the maker and receives the vault's mint A.
//
// Accounts expected by this instruction:
//
//  0. `[writable, signer]` The taker.
//  1. `[writable]` The maker, receiving the rent of the closed accounts.
//  2. `[writable]` The escrow record.
//  3. `[]` Mint A.
//  4. `[]` Mint B.
//  5. `[writable]` The vault.
//  6. `[writable]` The taker's mint A account, created if missing.
//  7. `[writable]` The taker's mint B account.
//  8. `[writable]` The maker's mint B account, created if missing.
//  9. `[]` The system program.
//  10. `[]` The token program owning both mints.
//  11. `[]` The associated token account program.
func NewTakeInstruction(
	programID ed25519.PublicKey,
	accounts *TakeInstructionAccounts,
) solana.Instruction {
	return solana.Instruction{
		Program: programID,

		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Taker,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.Maker,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Escrow,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.MintA,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.MintB,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Vault,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.TakerAtaA,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.TakerAtaB,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.MakerAtaB,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  system.ProgramKey[:],
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.TokenProgram,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  token.AssociatedTokenAccountProgramKey,
				IsWritable: false,
				IsSigner:   false,
			},
		},

		Data: []byte{byte(InstructionTypeTake)},
	}
}

// DecodeTakeInstruction is the inverse of NewTakeInstruction.
func DecodeTakeInstruction(ix solana.Instruction, programID ed25519.PublicKey) (*TakeInstructionAccounts, error) {
	t, err := GetInstructionType(ix, programID)
	if err != nil {
		return nil, err
	}
	if t != InstructionTypeTake {
		return nil, solana.ErrIncorrectInstruction
	}
	if len(ix.Accounts) < takeAccountCount {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}

	return &TakeInstructionAccounts{
		Taker:        ix.Accounts[0].PublicKey,
		Maker:        ix.Accounts[1].PublicKey,
		Escrow:       ix.Accounts[2].PublicKey,
		MintA:        ix.Accounts[3].PublicKey,
		MintB:        ix.Accounts[4].PublicKey,
		Vault:        ix.Accounts[5].PublicKey,
		TakerAtaA:    ix.Accounts[6].PublicKey,
		TakerAtaB:    ix.Accounts[7].PublicKey,
		MakerAtaB:    ix.Accounts[8].PublicKey,
		TokenProgram: ix.Accounts[10].PublicKey,
	}, nil
}

func DecompileTakeInstruction(m solana.Message, index int, programID ed25519.PublicKey) (*TakeInstructionAccounts, error) {
	ix, err := decompile(m, index)
	if err != nil {
		return nil, err
	}
	return DecodeTakeInstruction(ix, programID)
}

func processTake(ctx *runtime.Context, accounts []*runtime.AccountInfo) error {
	if len(accounts) < takeAccountCount {
		return solana.ErrNotEnoughAccountKeys
	}

	taker := accounts[0]
	maker := accounts[1]
	escrow := accounts[2]
	mintA := accounts[3]
	mintB := accounts[4]
	vault := accounts[5]
	takerAtaA := accounts[6]
	takerAtaB := accounts[7]
	makerAtaB := accounts[8]
	systemProgram := accounts[9]
	tokenProgram := accounts[10]
	associatedTokenProgram := accounts[11]

	if !taker.IsSigner {
		return ErrNotSigner
	}

	record, err := loadEscrow(ctx, escrow)
	if err != nil {
		return err
	}
	if !bytes.Equal(record.MintA, mintA.Key) || !bytes.Equal(record.MintB, mintB.Key) {
		return solana.ErrInvalidAccountData
	}

	if err := checkSystemProgram(systemProgram); err != nil {
		return err
	}
	if err := checkAssociatedTokenProgram(associatedTokenProgram); err != nil {
		return err
	}
	if err := checkMints(tokenProgram, mintA, mintB); err != nil {
		return err
	}
	if err := checkEscrowAddress(ctx, escrow, maker.Key, record); err != nil {
		return err
	}
	if err := checkVaultAddress(escrow, mintA, vault, tokenProgram); err != nil {
		return err
	}

	vaultAccount, err := loadVault(vault, tokenProgram)
	if err != nil {
		return err
	}

	if err := ensureAssociatedAccount(ctx, tokenProgram, taker, taker.Key, mintA, takerAtaA); err != nil {
		return err
	}
	if err := ensureAssociatedAccount(ctx, tokenProgram, taker, maker.Key, mintB, makerAtaB); err != nil {
		return err
	}

	if err := drainVault(ctx, record, escrow, vault, takerAtaA, maker, tokenProgram, vaultAccount.Amount); err != nil {
		return err
	}

	err = ctx.Invoke(token.Transfer(tokenProgram.Key, takerAtaB.Key, makerAtaB.Key, taker.Key, record.Receive))
	if err != nil {
		return err
	}

	return closeEscrow(escrow, maker)
}
