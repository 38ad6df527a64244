package runtime

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/system"
)

type systemProgram struct{}

func (p *systemProgram) Process(ctx *Context, accounts []*AccountInfo, data []byte) error {
	ix := toInstruction(ctx.ProgramID(), accounts, data)

	cmd, err := system.GetCommand(ix)
	if err != nil {
		return solana.ErrInvalidInstructionData
	}

	switch cmd {
	case system.CommandCreateAccount:
		args, err := system.DecodeCreateAccount(ix)
		if err != nil {
			return errors.Wrap(solana.ErrInvalidInstructionData, err.Error())
		}
		return p.createAccount(ctx, accounts[0], accounts[1], args)
	case system.CommandAssign:
		args, err := system.DecodeAssign(ix)
		if err != nil {
			return errors.Wrap(solana.ErrInvalidInstructionData, err.Error())
		}
		return p.assign(accounts[0], args.Owner)
	case system.CommandTransfer:
		args, err := system.DecodeTransfer(ix)
		if err != nil {
			return errors.Wrap(solana.ErrInvalidInstructionData, err.Error())
		}
		return p.transfer(accounts[0], accounts[1], args.Lamports)
	case system.CommandAllocate:
		args, err := system.DecodeAllocate(ix)
		if err != nil {
			return errors.Wrap(solana.ErrInvalidInstructionData, err.Error())
		}
		return p.allocate(ctx, accounts[0], args.Size)
	default:
		return solana.ErrInvalidInstructionData
	}
}

func (p *systemProgram) createAccount(ctx *Context, funder, account *AccountInfo, args *system.DecompiledCreateAccount) error {
	if account.Lamports() > 0 {
		return errors.Wrap(system.ErrorAccountAlreadyInUse, "account already has lamports")
	}

	if err := p.allocate(ctx, account, args.Size); err != nil {
		return err
	}
	if err := p.assign(account, args.Owner); err != nil {
		return err
	}
	return p.transfer(funder, account, args.Lamports)
}

func (p *systemProgram) allocate(ctx *Context, account *AccountInfo, size uint64) error {
	if !account.IsSigner {
		return solana.ErrMissingRequiredSignature
	}
	if !account.DataIsEmpty() || !account.IsOwnedBy(ctx.ProgramID()) {
		return system.ErrorAccountAlreadyInUse
	}
	if size > ctx.exec.maxAccountDataLength() {
		return system.ErrorInvalidAccountDataLength
	}

	return account.Realloc(int(size))
}

func (p *systemProgram) assign(account *AccountInfo, owner []byte) error {
	if account.IsOwnedBy(owner) {
		return nil
	}
	if !account.IsSigner {
		return solana.ErrMissingRequiredSignature
	}

	account.Assign(owner)
	return nil
}

func (p *systemProgram) transfer(from, to *AccountInfo, lamports uint64) error {
	if !from.IsSigner {
		return solana.ErrMissingRequiredSignature
	}
	if !from.DataIsEmpty() {
		return errors.Wrap(solana.ErrInvalidArgument, "from must not carry data")
	}
	if from.Lamports() < lamports {
		return system.ErrorResultWithNegativeLamports
	}

	if err := from.SubLamports(lamports); err != nil {
		return err
	}
	return to.AddLamports(lamports)
}

func toInstruction(program []byte, accounts []*AccountInfo, data []byte) solana.Instruction {
	metas := make([]solana.AccountMeta, len(accounts))
	for i, info := range accounts {
		metas[i] = solana.AccountMeta{
			PublicKey:  info.Key,
			IsSigner:   info.IsSigner,
			IsWritable: info.IsWritable,
		}
	}
	return solana.NewInstruction(program, data, metas...)
}
