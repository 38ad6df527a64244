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

// loadEscrow reads a live escrow record. Only records owned by the program
// with the exact record size are considered.
func loadEscrow(ctx *runtime.Context, info *runtime.AccountInfo) (*EscrowAccount, error) {
	if !info.IsOwnedBy(ctx.ProgramID()) {
		return nil, solana.ErrInvalidAccountOwner
	}

	var record EscrowAccount
	if err := record.Unmarshal(info.Data()); err != nil {
		return nil, err
	}
	return &record, nil
}

// checkEscrowAddress proves the record lives at the address derived from the
// supplied maker and the stored seed and bump.
func checkEscrowAddress(ctx *runtime.Context, info *runtime.AccountInfo, maker ed25519.PublicKey, record *EscrowAccount) error {
	address, err := CreateEscrowAddress(maker, record.Seed, record.Bump, ctx.ProgramID())
	if err != nil {
		return solana.ErrInvalidAccountOwner
	}
	if !bytes.Equal(address, info.Key) {
		return solana.ErrInvalidAccountOwner
	}
	return nil
}

func checkSystemProgram(info *runtime.AccountInfo) error {
	if !bytes.Equal(info.Key, system.ProgramKey[:]) {
		return solana.ErrIncorrectProgramID
	}
	return nil
}

func checkAssociatedTokenProgram(info *runtime.AccountInfo) error {
	if !bytes.Equal(info.Key, token.AssociatedTokenAccountProgramKey) {
		return solana.ErrIncorrectProgramID
	}
	return nil
}

// checkMints requires every mint to be a valid mint of the supplied token
// program.
func checkMints(tokenProgram *runtime.AccountInfo, mints ...*runtime.AccountInfo) error {
	if !token.IsTokenProgram(tokenProgram.Key) {
		return solana.ErrIncorrectProgramID
	}

	for _, mint := range mints {
		if _, err := token.ResolveMintInterface(mint.Owner(), mint.Data()); err != nil {
			return err
		}
		if !bytes.Equal(mint.Owner(), tokenProgram.Key) {
			return solana.ErrIncorrectProgramID
		}
	}
	return nil
}

func checkVaultAddress(escrow, mintA, vault, tokenProgram *runtime.AccountInfo) error {
	expected, err := GetVaultAddress(escrow.Key, mintA.Key, tokenProgram.Key)
	if err != nil {
		return errors.Wrap(solana.ErrInvalidAccountData, err.Error())
	}
	if !bytes.Equal(expected, vault.Key) {
		return solana.ErrInvalidAccountData
	}
	return nil
}

func loadVault(vault, tokenProgram *runtime.AccountInfo) (*token.Account, error) {
	if !vault.IsOwnedBy(tokenProgram.Key) {
		return nil, solana.ErrAccountNotFound
	}

	var account token.Account
	if !account.Unmarshal(vault.Data()) {
		return nil, solana.ErrInvalidAccountData
	}
	return &account, nil
}

// ensureAssociatedAccount creates the associated account of owner for mint if
// it doesn't exist yet, paid for by payer.
func ensureAssociatedAccount(ctx *runtime.Context, tokenProgram, payer *runtime.AccountInfo, owner []byte, mint, info *runtime.AccountInfo) error {
	ix, address, err := token.CreateAssociatedTokenAccountIdempotent(tokenProgram.Key, payer.Key, owner, mint.Key)
	if err != nil {
		return errors.Wrap(solana.ErrInvalidSeeds, err.Error())
	}
	if !bytes.Equal(address, info.Key) {
		return solana.ErrInvalidAccountData
	}
	return ctx.Invoke(ix)
}

// drainVault moves the entire vault balance to destination and closes the
// vault to the maker, both authorized by the escrow record's address.
func drainVault(
	ctx *runtime.Context,
	record *EscrowAccount,
	escrow, vault, destination, maker, tokenProgram *runtime.AccountInfo,
	amount uint64,
) error {
	signer := escrowSignerSeeds(record.Maker, record.Seed, record.Bump)

	err := ctx.InvokeSigned(token.Transfer(tokenProgram.Key, vault.Key, destination.Key, escrow.Key, amount), signer)
	if err != nil {
		return err
	}

	return ctx.InvokeSigned(token.CloseAccount(tokenProgram.Key, vault.Key, maker.Key, escrow.Key), signer)
}

// closeEscrow returns the record's rent to the maker and hands the empty
// account back to the system program.
func closeEscrow(escrow, maker *runtime.AccountInfo) error {
	if err := maker.AddLamports(escrow.Lamports()); err != nil {
		return err
	}
	escrow.SetLamports(0)

	if err := escrow.Realloc(0); err != nil {
		return err
	}
	escrow.Assign(system.ProgramKey[:])
	return nil
}

func decompile(m solana.Message, index int) (solana.Instruction, error) {
	if index >= len(m.Instructions) {
		return solana.Instruction{}, errors.Errorf("instruction doesn't exist at %d", index)
	}
	return solana.DecompileInstruction(m, index)
}
