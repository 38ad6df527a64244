package token

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"math"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
)

// ProgramKey is the address of the legacy token program.
//
// Current key: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
var ProgramKey = ed25519.PublicKey{6, 221, 246, 225, 215, 101, 161, 147, 217, 203, 225, 70, 206, 235, 121, 172, 28, 180, 133, 237, 95, 91, 55, 145, 58, 140, 245, 133, 126, 255, 0, 169}

// Token2022ProgramKey is the address of the extended token program, which
// shares the legacy instruction set and base account layouts.
var Token2022ProgramKey = mustBase58Decode("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// IsTokenProgram reports whether key is one of the supported token programs.
func IsTokenProgram(key ed25519.PublicKey) bool {
	return bytes.Equal(key, ProgramKey) || bytes.Equal(key, Token2022ProgramKey)
}

type Command byte

const (
	CommandInitializeMint Command = iota
	CommandInitializeAccount
	CommandInitializeMultisig
	CommandTransfer
	CommandApprove
	CommandRevoke
	CommandSetAuthority
	CommandMintTo
	CommandBurn
	CommandCloseAccount
	CommandFreezeAccount
	CommandThawAccount
	CommandTransfer2
	CommandApprove2
	CommandMintTo2
	CommandBurn2
	CommandSyncNative
	CommandInitializeAccount2
	CommandInitializeAccount3
	CommandInitializeMultisig2
	CommandInitializeMint2

	CommandUnknown = Command(math.MaxUint8)
)

// Token program errors, returned as custom program errors.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/error.rs
const (
	ErrorNotRentExempt solana.CustomError = iota
	ErrorInsufficientFunds
	ErrorInvalidMint
	ErrorMintMismatch
	ErrorOwnerMismatch
	ErrorFixedSupply
	ErrorAlreadyInUse
	ErrorInvalidNumberOfProvidedSigners
	ErrorInvalidNumberOfRequiredSigners
	ErrorUninitializedState
	ErrorNativeNotSupported
	ErrorNonNativeHasBalance
	ErrorInvalidInstruction
	ErrorInvalidState
	ErrorOverflow
	ErrorAuthorityTypeNotSupported
	ErrorMintCannotFreeze
	ErrorAccountFrozen
	ErrorMintDecimalsMismatch
)

// GetCommand returns the command of a token program instruction.
func GetCommand(ix solana.Instruction) (Command, error) {
	if !IsTokenProgram(ix.Program) {
		return CommandUnknown, solana.ErrIncorrectProgram
	}
	if len(ix.Data) == 0 {
		return CommandUnknown, errors.New("token instruction missing data")
	}

	return Command(ix.Data[0]), nil
}

func checkCommand(ix solana.Instruction, expected Command, dataSize, minAccounts int) error {
	command, err := GetCommand(ix)
	if err != nil {
		return err
	}
	if command != expected {
		return solana.ErrIncorrectInstruction
	}
	// note: accounts are checked with < instead of != to support multisig cases.
	if len(ix.Accounts) < minAccounts {
		return errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != dataSize {
		return errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}
	return nil
}

// InitializeMint2 initializes a new mint without requiring the rent sysvar.
//
// Accounts expected by this instruction:
//
//  0. `[writable]` The mint to initialize.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L405
func InitializeMint2(program, mint ed25519.PublicKey, decimals byte, mintAuthority ed25519.PublicKey) solana.Instruction {
	data := make([]byte, initializeMint2DataSize)
	data[0] = byte(CommandInitializeMint2)
	data[1] = decimals
	copy(data[2:], mintAuthority)
	// no freeze authority; data[34] is the option flag

	return solana.NewInstruction(
		program,
		data,
		solana.NewAccountMeta(mint, false),
	)
}

const initializeMint2DataSize = 1 + 1 + ed25519.PublicKeySize + 1

type DecompiledInitializeMint struct {
	Mint          ed25519.PublicKey
	Decimals      byte
	MintAuthority ed25519.PublicKey
}

func DecodeInitializeMint2(ix solana.Instruction) (*DecompiledInitializeMint, error) {
	if err := checkCommand(ix, CommandInitializeMint2, initializeMint2DataSize, 1); err != nil {
		return nil, err
	}

	v := &DecompiledInitializeMint{
		Mint:          ix.Accounts[0].PublicKey,
		Decimals:      ix.Data[1],
		MintAuthority: make(ed25519.PublicKey, ed25519.PublicKeySize),
	}
	copy(v.MintAuthority, ix.Data[2:])
	return v, nil
}

// InitializeAccount3 initializes a token account for mint, owned by owner,
// without requiring the rent sysvar.
//
// Accounts expected by this instruction:
//
//  0. `[writable]`  The account to initialize.
//  1. `[]` The mint this account will be associated with.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L389
func InitializeAccount3(program, account, mint, owner ed25519.PublicKey) solana.Instruction {
	data := make([]byte, initializeAccount3DataSize)
	data[0] = byte(CommandInitializeAccount3)
	copy(data[1:], owner)

	return solana.NewInstruction(
		program,
		data,
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(mint, false),
	)
}

const initializeAccount3DataSize = 1 + ed25519.PublicKeySize

type DecompiledInitializeAccount struct {
	Account ed25519.PublicKey
	Mint    ed25519.PublicKey
	Owner   ed25519.PublicKey
}

func DecodeInitializeAccount3(ix solana.Instruction) (*DecompiledInitializeAccount, error) {
	if err := checkCommand(ix, CommandInitializeAccount3, initializeAccount3DataSize, 2); err != nil {
		return nil, err
	}

	v := &DecompiledInitializeAccount{
		Account: ix.Accounts[0].PublicKey,
		Mint:    ix.Accounts[1].PublicKey,
		Owner:   make(ed25519.PublicKey, ed25519.PublicKeySize),
	}
	copy(v.Owner, ix.Data[1:])
	return v, nil
}

// Transfer moves amount tokens between two accounts of the same mint.
//
// Accounts expected by this instruction:
//
//  0. `[writable]` The source account.
//  1. `[writable]` The destination account.
//  2. `[signer]` The source account's owner/delegate.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L76-L91
func Transfer(program, source, dest, owner ed25519.PublicKey, amount uint64) solana.Instruction {
	data := make([]byte, transferDataSize)
	data[0] = byte(CommandTransfer)
	binary.LittleEndian.PutUint64(data[1:], amount)

	return solana.NewInstruction(
		program,
		data,
		solana.NewAccountMeta(source, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

const transferDataSize = 1 + 8

type DecompiledTransfer struct {
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
	Amount      uint64
}

func DecodeTransfer(ix solana.Instruction) (*DecompiledTransfer, error) {
	if err := checkCommand(ix, CommandTransfer, transferDataSize, 3); err != nil {
		return nil, err
	}

	return &DecompiledTransfer{
		Source:      ix.Accounts[0].PublicKey,
		Destination: ix.Accounts[1].PublicKey,
		Owner:       ix.Accounts[2].PublicKey,
		Amount:      binary.LittleEndian.Uint64(ix.Data[1:]),
	}, nil
}

func DecompileTransfer(m solana.Message, index int) (*DecompiledTransfer, error) {
	ix, err := decompile(m, index)
	if err != nil {
		return nil, err
	}
	return DecodeTransfer(ix)
}

// MintTo mints new tokens into an account.
//
// Accounts expected by this instruction:
//
//  0. `[writable]` The mint.
//  1. `[writable]` The account to mint tokens to.
//  2. `[signer]` The mint's minting authority.
func MintTo(program, mint, dest, authority ed25519.PublicKey, amount uint64) solana.Instruction {
	data := make([]byte, mintToDataSize)
	data[0] = byte(CommandMintTo)
	binary.LittleEndian.PutUint64(data[1:], amount)

	return solana.NewInstruction(
		program,
		data,
		solana.NewAccountMeta(mint, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(authority, true),
	)
}

const mintToDataSize = 1 + 8

type DecompiledMintTo struct {
	Mint        ed25519.PublicKey
	Destination ed25519.PublicKey
	Authority   ed25519.PublicKey
	Amount      uint64
}

func DecodeMintTo(ix solana.Instruction) (*DecompiledMintTo, error) {
	if err := checkCommand(ix, CommandMintTo, mintToDataSize, 3); err != nil {
		return nil, err
	}

	return &DecompiledMintTo{
		Mint:        ix.Accounts[0].PublicKey,
		Destination: ix.Accounts[1].PublicKey,
		Authority:   ix.Accounts[2].PublicKey,
		Amount:      binary.LittleEndian.Uint64(ix.Data[1:]),
	}, nil
}

// CloseAccount closes a token account by transferring all its lamports to the
// destination account. Non-native accounts may only be closed if their token
// amount is zero.
//
// Accounts expected by this instruction:
//
//  0. `[writable]` The account to close.
//  1. `[writable]` The destination account.
//  2. `[signer]` The account's owner.
func CloseAccount(program, account, dest, owner ed25519.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		program,
		[]byte{byte(CommandCloseAccount)},
		solana.NewAccountMeta(account, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

type DecompiledCloseAccount struct {
	Account     ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
}

func DecodeCloseAccount(ix solana.Instruction) (*DecompiledCloseAccount, error) {
	if err := checkCommand(ix, CommandCloseAccount, 1, 3); err != nil {
		return nil, err
	}

	return &DecompiledCloseAccount{
		Account:     ix.Accounts[0].PublicKey,
		Destination: ix.Accounts[1].PublicKey,
		Owner:       ix.Accounts[2].PublicKey,
	}, nil
}

func DecompileCloseAccount(m solana.Message, index int) (*DecompiledCloseAccount, error) {
	ix, err := decompile(m, index)
	if err != nil {
		return nil, err
	}
	return DecodeCloseAccount(ix)
}

func decompile(m solana.Message, index int) (solana.Instruction, error) {
	if index >= len(m.Instructions) {
		return solana.Instruction{}, errors.Errorf("instruction doesn't exist at %d", index)
	}
	return solana.DecompileInstruction(m, index)
}

func mustBase58Decode(value string) ed25519.PublicKey {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
