package runtime

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

// tokenProgram serves both the legacy and the extended token program. The
// executing program id decides which accounts it may act on.
type tokenProgram struct{}

func (p *tokenProgram) Process(ctx *Context, accounts []*AccountInfo, data []byte) error {
	ix := toInstruction(ctx.ProgramID(), accounts, data)

	cmd, err := token.GetCommand(ix)
	if err != nil {
		return errors.Wrap(token.ErrorInvalidInstruction, err.Error())
	}

	switch cmd {
	case token.CommandInitializeMint2:
		args, err := token.DecodeInitializeMint2(ix)
		if err != nil {
			return errors.Wrap(token.ErrorInvalidInstruction, err.Error())
		}
		return p.initializeMint(ctx, accounts[0], args)
	case token.CommandInitializeAccount3:
		args, err := token.DecodeInitializeAccount3(ix)
		if err != nil {
			return errors.Wrap(token.ErrorInvalidInstruction, err.Error())
		}
		return p.initializeAccount(ctx, accounts[0], accounts[1], args)
	case token.CommandMintTo:
		args, err := token.DecodeMintTo(ix)
		if err != nil {
			return errors.Wrap(token.ErrorInvalidInstruction, err.Error())
		}
		return p.mintTo(ctx, accounts[0], accounts[1], accounts[2], args.Amount)
	case token.CommandTransfer:
		args, err := token.DecodeTransfer(ix)
		if err != nil {
			return errors.Wrap(token.ErrorInvalidInstruction, err.Error())
		}
		return p.transfer(ctx, accounts[0], accounts[1], accounts[2], args.Amount)
	case token.CommandCloseAccount:
		if _, err := token.DecodeCloseAccount(ix); err != nil {
			return errors.Wrap(token.ErrorInvalidInstruction, err.Error())
		}
		return p.closeAccount(ctx, accounts[0], accounts[1], accounts[2])
	default:
		return errors.Wrapf(token.ErrorInvalidInstruction, "unsupported command %d", cmd)
	}
}

func (p *tokenProgram) initializeMint(ctx *Context, info *AccountInfo, args *token.DecompiledInitializeMint) error {
	if !info.IsOwnedBy(ctx.ProgramID()) {
		return solana.ErrIncorrectProgramID
	}
	if info.DataLen() < token.MintSize {
		return solana.ErrInvalidAccountData
	}

	var mint token.Mint
	mint.Unmarshal(info.Data())
	if mint.IsInitialized {
		return token.ErrorAlreadyInUse
	}
	if info.Lamports() < ctx.MinimumBalance(uint64(info.DataLen())) {
		return token.ErrorNotRentExempt
	}

	mint = token.Mint{
		MintAuthority: args.MintAuthority,
		Decimals:      args.Decimals,
		IsInitialized: true,
	}
	copy(info.Data(), mint.Marshal())
	return nil
}

func (p *tokenProgram) initializeAccount(ctx *Context, info, mintInfo *AccountInfo, args *token.DecompiledInitializeAccount) error {
	if !info.IsOwnedBy(ctx.ProgramID()) {
		return solana.ErrIncorrectProgramID
	}
	if info.DataLen() < token.AccountSize {
		return solana.ErrInvalidAccountData
	}

	var account token.Account
	account.Unmarshal(info.Data())
	if account.State != token.AccountStateUninitialized {
		return token.ErrorAlreadyInUse
	}
	if info.Lamports() < ctx.MinimumBalance(uint64(info.DataLen())) {
		return token.ErrorNotRentExempt
	}

	if _, err := p.loadMint(ctx, mintInfo); err != nil {
		return err
	}

	account = token.Account{
		Mint:  mintInfo.Key,
		Owner: args.Owner,
		State: token.AccountStateInitialized,
	}
	copy(info.Data(), account.Marshal())
	return nil
}

func (p *tokenProgram) mintTo(ctx *Context, mintInfo, destInfo, authority *AccountInfo, amount uint64) error {
	mint, err := p.loadMint(ctx, mintInfo)
	if err != nil {
		return err
	}
	dest, err := p.loadAccount(ctx, destInfo)
	if err != nil {
		return err
	}

	if !bytes.Equal(dest.Mint, mintInfo.Key) {
		return token.ErrorMintMismatch
	}
	if mint.MintAuthority == nil {
		return token.ErrorFixedSupply
	}
	if err := p.validateOwner(mint.MintAuthority, authority); err != nil {
		return err
	}

	if mint.Supply+amount < mint.Supply || dest.Amount+amount < dest.Amount {
		return token.ErrorOverflow
	}
	mint.Supply += amount
	dest.Amount += amount

	copy(mintInfo.Data(), mint.Marshal())
	copy(destInfo.Data(), dest.Marshal())
	return nil
}

func (p *tokenProgram) transfer(ctx *Context, sourceInfo, destInfo, authority *AccountInfo, amount uint64) error {
	source, err := p.loadAccount(ctx, sourceInfo)
	if err != nil {
		return err
	}
	dest, err := p.loadAccount(ctx, destInfo)
	if err != nil {
		return err
	}

	if source.State == token.AccountStateFrozen || dest.State == token.AccountStateFrozen {
		return token.ErrorAccountFrozen
	}
	if !bytes.Equal(source.Mint, dest.Mint) {
		return token.ErrorMintMismatch
	}
	if err := p.validateOwner(source.Owner, authority); err != nil {
		return err
	}
	if source.Amount < amount {
		return token.ErrorInsufficientFunds
	}

	if bytes.Equal(sourceInfo.Key, destInfo.Key) {
		return nil
	}
	if dest.Amount+amount < dest.Amount {
		return token.ErrorOverflow
	}

	source.Amount -= amount
	dest.Amount += amount

	copy(sourceInfo.Data(), source.Marshal())
	copy(destInfo.Data(), dest.Marshal())
	return nil
}

func (p *tokenProgram) closeAccount(ctx *Context, info, destInfo, authority *AccountInfo) error {
	if bytes.Equal(info.Key, destInfo.Key) {
		return solana.ErrInvalidAccountData
	}

	account, err := p.loadAccount(ctx, info)
	if err != nil {
		return err
	}
	if account.Amount != 0 {
		return token.ErrorNonNativeHasBalance
	}

	closeAuthority := account.Owner
	if account.CloseAuthority != nil {
		closeAuthority = account.CloseAuthority
	}
	if err := p.validateOwner(closeAuthority, authority); err != nil {
		return err
	}

	if err := destInfo.AddLamports(info.Lamports()); err != nil {
		return err
	}
	info.SetLamports(0)
	return info.Realloc(0)
}

func (p *tokenProgram) validateOwner(expected []byte, authority *AccountInfo) error {
	if !bytes.Equal(expected, authority.Key) {
		return token.ErrorOwnerMismatch
	}
	if !authority.IsSigner {
		return solana.ErrMissingRequiredSignature
	}
	return nil
}

func (p *tokenProgram) loadMint(ctx *Context, info *AccountInfo) (*token.Mint, error) {
	if !info.IsOwnedBy(ctx.ProgramID()) {
		return nil, solana.ErrIncorrectProgramID
	}

	var mint token.Mint
	if !mint.Unmarshal(info.Data()) || !mint.IsInitialized {
		return nil, token.ErrorInvalidMint
	}
	return &mint, nil
}

func (p *tokenProgram) loadAccount(ctx *Context, info *AccountInfo) (*token.Account, error) {
	if !info.IsOwnedBy(ctx.ProgramID()) {
		return nil, solana.ErrIncorrectProgramID
	}

	var account token.Account
	if !account.Unmarshal(info.Data()) || account.State == token.AccountStateUninitialized {
		return nil, token.ErrorUninitializedState
	}
	return &account, nil
}
