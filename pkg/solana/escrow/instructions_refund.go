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
const refundAccountCount = 8

type RefundInstructionAccounts struct {
	Maker        ed25519.PublicKey
	Escrow       ed25519.PublicKey
	MintA        ed25519.PublicKey
	MakerAtaA    ed25519.PublicKey
	Vault        ed25519.PublicKey
	TokenProgram ed25519.PublicKey
}

// NewRefundInstruction cancels an escrow, returning the vault's mint A to
// the maker.
//
// Accounts expected by this instruction:
//
//  0. `[writable, signer]` The maker.
//  1. `[writable]` The escrow record.
//  2. `[]` Mint A.
//  3. `[writable]` The maker's mint A account, created if missing.
//  4. `[writable]` The vault.
//  5. `[]` The system program.
//  6. `[]` The token program owning mint A.
//  7. `[]` The associated token account program.
func NewRefundInstruction(
	programID ed25519.PublicKey,
	accounts *RefundInstructionAccounts,
) solana.Instruction {
	return solana.Instruction{
		Program: programID,

		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Maker,
				IsWritable: true,
				IsSigner:   true,
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
				PublicKey:  accounts.MakerAtaA,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Vault,
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

		Data: []byte{byte(InstructionTypeRefund)},
	}
}

// DecodeRefundInstruction is the inverse of NewRefundInstruction.
func DecodeRefundInstruction(ix solana.Instruction, programID ed25519.PublicKey) (*RefundInstructionAccounts, error) {
	t, err := GetInstructionType(ix, programID)
	if err != nil {
		return nil, err
	}
	if t != InstructionTypeRefund {
		return nil, solana.ErrIncorrectInstruction
	}
	if len(ix.Accounts) < refundAccountCount {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}

	return &RefundInstructionAccounts{
		Maker:        ix.Accounts[0].PublicKey,
		Escrow:       ix.Accounts[1].PublicKey,
		MintA:        ix.Accounts[2].PublicKey,
		MakerAtaA:    ix.Accounts[3].PublicKey,
		Vault:        ix.Accounts[4].PublicKey,
		TokenProgram: ix.Accounts[6].PublicKey,
	}, nil
}

func DecompileRefundInstruction(m solana.Message, index int, programID ed25519.PublicKey) (*RefundInstructionAccounts, error) {
	ix, err := decompile(m, index)
	if err != nil {
		return nil, err
	}
	return DecodeRefundInstruction(ix, programID)
}

func processRefund(ctx *runtime.Context, accounts []*runtime.AccountInfo) error {
	if len(accounts) < refundAccountCount {
		return solana.ErrNotEnoughAccountKeys
	}

	maker := accounts[0]
	escrow := accounts[1]
	mintA := accounts[2]
	makerAtaA := accounts[3]
	vault := accounts[4]
	systemProgram := accounts[5]
	tokenProgram := accounts[6]
	associatedTokenProgram := accounts[7]

	if !maker.IsSigner {
		return ErrNotSigner
	}

	if _, err := token.ResolveMintInterface(mintA.Owner(), mintA.Data()); err != nil {
		return err
	}

	record, err := loadEscrow(ctx, escrow)
	if err != nil {
		return err
	}
	if !bytes.Equal(record.MintA, mintA.Key) {
		return solana.ErrInvalidAccountData
	}

	if err := checkSystemProgram(systemProgram); err != nil {
		return err
	}
	if err := checkAssociatedTokenProgram(associatedTokenProgram); err != nil {
		return err
	}
	if err := checkMints(tokenProgram, mintA); err != nil {
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

	if err := ensureAssociatedAccount(ctx, tokenProgram, maker, maker.Key, mintA, makerAtaA); err != nil {
		return err
	}

	if err := drainVault(ctx, record, escrow, vault, makerAtaA, maker, tokenProgram, vaultAccount.Amount); err != nil {
		return err
	}

	return closeEscrow(escrow, maker)
}
