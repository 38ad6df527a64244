package escrow

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/binary"
	"github.com/code-payments/code-escrow/pkg/solana/runtime"
	"github.com/code-payments/code-escrow/pkg/solana/system"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

const (
	MakeInstructionArgsSize = (8 + // seed
		8 + // receive
		8) // amount

	// Positional accounts plus the trailing associated token program
	makeAccountCount = 9
)

type MakeInstructionArgs struct {
	Seed    uint64
	Receive uint64
	Amount  uint64
}

type MakeInstructionAccounts struct {
	Maker        ed25519.PublicKey
	Escrow       ed25519.PublicKey
	MintA        ed25519.PublicKey
	MintB        ed25519.PublicKey
	MakerAtaA    ed25519.PublicKey
	Vault        ed25519.PublicKey
	TokenProgram ed25519.PublicKey
}

// NewMakeInstruction deposits Amount of mint A from the maker into a new
// escrow asking for Receive of mint B.
//
// Accounts expected by this instruction:
//
//  0. `[writable, signer]` The maker, funding both new accounts.
//  1. `[writable]` The escrow record, derived from the maker and seed.
//  2. `[]` Mint A.
//  3. `[]` Mint B.
//  4. `[writable]` The maker's mint A account.
//  5. `[writable]` The vault, the escrow record's associated mint A account.
//  6. `[]` The system program.
//  7. `[]` The token program owning both mints.
//  8. `[]` The associated token account program.
func NewMakeInstruction(
	programID ed25519.PublicKey,
	accounts *MakeInstructionAccounts,
	args *MakeInstructionArgs,
) solana.Instruction {
	var offset int

	data := make([]byte, 1+MakeInstructionArgsSize)
	binary.PutUint8(data, uint8(InstructionTypeMake), &offset)
	binary.PutUint64(data[offset:], args.Seed, &offset)
	binary.PutUint64(data[offset:], args.Receive, &offset)
	binary.PutUint64(data[offset:], args.Amount, &offset)

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
				PublicKey:  accounts.MintB,
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

		Data: data,
	}
}

// DecodeMakeInstruction is the inverse of NewMakeInstruction.
func DecodeMakeInstruction(ix solana.Instruction, programID ed25519.PublicKey) (*MakeInstructionAccounts, *MakeInstructionArgs, error) {
	t, err := GetInstructionType(ix, programID)
	if err != nil {
		return nil, nil, err
	}
	if t != InstructionTypeMake {
		return nil, nil, solana.ErrIncorrectInstruction
	}
	if len(ix.Accounts) < makeAccountCount {
		return nil, nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}

	args, err := parseMakeArgs(ix.Data[1:])
	if err != nil {
		return nil, nil, err
	}

	return &MakeInstructionAccounts{
		Maker:        ix.Accounts[0].PublicKey,
		Escrow:       ix.Accounts[1].PublicKey,
		MintA:        ix.Accounts[2].PublicKey,
		MintB:        ix.Accounts[3].PublicKey,
		MakerAtaA:    ix.Accounts[4].PublicKey,
		Vault:        ix.Accounts[5].PublicKey,
		TokenProgram: ix.Accounts[7].PublicKey,
	}, args, nil
}

func DecompileMakeInstruction(m solana.Message, index int, programID ed25519.PublicKey) (*MakeInstructionAccounts, *MakeInstructionArgs, error) {
	ix, err := decompile(m, index)
	if err != nil {
		return nil, nil, err
	}
	return DecodeMakeInstruction(ix, programID)
}

func parseMakeArgs(data []byte) (*MakeInstructionArgs, error) {
	if len(data) != MakeInstructionArgsSize {
		return nil, solana.ErrInvalidInstructionData
	}

	var args MakeInstructionArgs
	var offset int
	binary.GetUint64(data[offset:], &args.Seed, &offset)
	binary.GetUint64(data[offset:], &args.Receive, &offset)
	binary.GetUint64(data[offset:], &args.Amount, &offset)

	if args.Amount == 0 || args.Receive == 0 {
		return nil, solana.ErrInvalidInstructionData
	}
	return &args, nil
}

func processMake(ctx *runtime.Context, accounts []*runtime.AccountInfo, data []byte) error {
	if len(accounts) < makeAccountCount {
		return solana.ErrNotEnoughAccountKeys
	}

	maker := accounts[0]
	escrow := accounts[1]
	mintA := accounts[2]
	mintB := accounts[3]
	makerAtaA := accounts[4]
	vault := accounts[5]
	systemProgram := accounts[6]
	tokenProgram := accounts[7]
	associatedTokenProgram := accounts[8]

	if !maker.IsSigner {
		return ErrNotSigner
	}

	args, err := parseMakeArgs(data)
	if err != nil {
		return err
	}

	address, bump, err := GetEscrowAddress(&GetEscrowAddressArgs{
		Maker: maker.Key,
		Seed:  args.Seed,
	}, ctx.ProgramID())
	if err != nil {
		return errors.Wrap(solana.ErrInvalidAccountData, err.Error())
	}
	if !bytes.Equal(address, escrow.Key) {
		return solana.ErrInvalidAccountData
	}

	if !escrow.IsOwnedBy(system.ProgramKey[:]) || !escrow.DataIsEmpty() || escrow.Lamports() != 0 {
		return solana.ErrAccountAlreadyInitialized
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
	if err := checkVaultAddress(escrow, mintA, vault, tokenProgram); err != nil {
		return err
	}

	signer := escrowSignerSeeds(maker.Key, args.Seed, bump)

	err = ctx.InvokeSigned(
		system.CreateAccount(
			maker.Key,
			escrow.Key,
			ctx.ProgramID(),
			ctx.MinimumBalance(EscrowAccountSize),
			EscrowAccountSize,
		),
		signer,
	)
	if err != nil {
		return err
	}

	createVault, _, err := token.CreateAssociatedTokenAccount(tokenProgram.Key, maker.Key, escrow.Key, mintA.Key)
	if err != nil {
		return errors.Wrap(solana.ErrInvalidSeeds, err.Error())
	}
	if err := ctx.Invoke(createVault); err != nil {
		return err
	}

	record := &EscrowAccount{
		Seed:    args.Seed,
		Maker:   maker.Key,
		MintA:   mintA.Key,
		MintB:   mintB.Key,
		Receive: args.Receive,
		Bump:    bump,
	}
	copy(escrow.Data(), record.Marshal())

	return ctx.Invoke(token.Transfer(tokenProgram.Key, makerAtaA.Key, vault.Key, maker.Key, args.Amount))
}
