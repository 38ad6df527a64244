package runtime

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/system"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

type associatedTokenProgram struct{}

func (p *associatedTokenProgram) Process(ctx *Context, accounts []*AccountInfo, data []byte) error {
	ix := toInstruction(ctx.ProgramID(), accounts, data)

	args, err := token.DecodeCreateAssociatedAccount(ix)
	if err != nil {
		if err == solana.ErrIncorrectInstruction {
			return solana.ErrInvalidInstructionData
		}
		return errors.Wrap(solana.ErrNotEnoughAccountKeys, err.Error())
	}

	payer, ata, mint := accounts[0], accounts[1], accounts[3]

	expected, bump, err := solana.FindProgramAddressAndBump(
		ctx.ProgramID(),
		args.Owner,
		args.TokenProgram,
		args.Mint,
	)
	if err != nil {
		return errors.Wrap(solana.ErrInvalidSeeds, err.Error())
	}
	if !bytes.Equal(expected, ata.Key) {
		return errors.Wrap(solana.ErrInvalidSeeds, "associated address mismatch")
	}

	if ata.IsOwnedBy(args.TokenProgram) {
		if !args.Idempotent {
			return solana.ErrAccountAlreadyInitialized
		}

		var existing token.Account
		if !existing.Unmarshal(ata.Data()) || existing.State == token.AccountStateUninitialized {
			return solana.ErrInvalidAccountData
		}
		if !bytes.Equal(existing.Owner, args.Owner) || !bytes.Equal(existing.Mint, args.Mint) {
			return solana.ErrInvalidAccountOwner
		}
		return nil
	}
	if !ata.IsOwnedBy(system.ProgramKey[:]) || !ata.DataIsEmpty() {
		return solana.ErrInvalidAccountOwner
	}

	if !mint.IsOwnedBy(args.TokenProgram) {
		return solana.ErrIncorrectProgramID
	}

	err = ctx.InvokeSigned(
		system.CreateAccount(
			payer.Key,
			ata.Key,
			args.TokenProgram,
			ctx.MinimumBalance(token.AccountSize),
			token.AccountSize,
		),
		[][]byte{args.Owner, args.TokenProgram, args.Mint, {bump}},
	)
	if err != nil {
		return err
	}

	return ctx.Invoke(token.InitializeAccount3(args.TokenProgram, ata.Key, args.Mint, args.Owner))
}
