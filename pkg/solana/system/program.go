package system

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
)

// ProgramKey is the system program address, 11111111111111111111111111111111.
var ProgramKey [32]byte

type Command uint32

const (
	CommandCreateAccount Command = iota
	CommandAssign
	CommandTransfer
	CommandCreateAccountWithSeed
	CommandAdvanceNonceAccount
	CommandWithdrawNonceAccount
	CommandInitializeNonceAccount
	CommandAuthorizeNonceAccount
	CommandAllocate
)

const commandSize = 4

// System program errors, returned as custom program errors.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs#L22
const (
	ErrorAccountAlreadyInUse solana.CustomError = iota
	ErrorResultWithNegativeLamports
	ErrorInvalidProgramID
	ErrorInvalidAccountDataLength
)

// GetCommand returns the command of a system program instruction.
func GetCommand(ix solana.Instruction) (Command, error) {
	if !bytes.Equal(ix.Program, ProgramKey[:]) {
		return 0, solana.ErrIncorrectProgram
	}
	if len(ix.Data) < commandSize {
		return 0, solana.ErrIncorrectInstruction
	}
	return Command(binary.LittleEndian.Uint32(ix.Data)), nil
}

func checkCommand(ix solana.Instruction, expected Command, dataSize, accounts int) error {
	command, err := GetCommand(ix)
	if err != nil {
		return err
	}
	if command != expected {
		return solana.ErrIncorrectInstruction
	}
	if len(ix.Accounts) != accounts {
		return errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != dataSize {
		return errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}
	return nil
}

func newCommandData(command Command, size int) []byte {
	data := make([]byte, size)
	binary.LittleEndian.PutUint32(data, uint32(command))
	return data
}

// CreateAccount allocates size bytes at address, funds it with lamports from
// funder and assigns it to owner.
//
// Account references
//  0. [WRITE, SIGNER] Funding account
//  1. [WRITE, SIGNER] New account
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L58-L72
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	data := newCommandData(CommandCreateAccount, createAccountDataSize)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	binary.LittleEndian.PutUint64(data[4+8:], size)
	copy(data[4+2*8:], owner)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

const createAccountDataSize = commandSize + 8 + 8 + ed25519.PublicKeySize

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

func DecodeCreateAccount(ix solana.Instruction) (*DecompiledCreateAccount, error) {
	if err := checkCommand(ix, CommandCreateAccount, createAccountDataSize, 2); err != nil {
		return nil, err
	}

	v := &DecompiledCreateAccount{
		Funder:   ix.Accounts[0].PublicKey,
		Address:  ix.Accounts[1].PublicKey,
		Lamports: binary.LittleEndian.Uint64(ix.Data[4:]),
		Size:     binary.LittleEndian.Uint64(ix.Data[4+8:]),
		Owner:    make(ed25519.PublicKey, ed25519.PublicKeySize),
	}
	copy(v.Owner, ix.Data[4+2*8:])

	return v, nil
}

func DecompileCreateAccount(m solana.Message, index int) (*DecompiledCreateAccount, error) {
	ix, err := decompile(m, index)
	if err != nil {
		return nil, err
	}
	return DecodeCreateAccount(ix)
}

// Assign changes the owner of address.
//
// Account references
//  0. [WRITE, SIGNER] Assigned account
func Assign(address, owner ed25519.PublicKey) solana.Instruction {
	data := newCommandData(CommandAssign, assignDataSize)
	copy(data[4:], owner)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(address, true),
	)
}

const assignDataSize = commandSize + ed25519.PublicKeySize

type DecompiledAssign struct {
	Address ed25519.PublicKey
	Owner   ed25519.PublicKey
}

func DecodeAssign(ix solana.Instruction) (*DecompiledAssign, error) {
	if err := checkCommand(ix, CommandAssign, assignDataSize, 1); err != nil {
		return nil, err
	}

	v := &DecompiledAssign{
		Address: ix.Accounts[0].PublicKey,
		Owner:   make(ed25519.PublicKey, ed25519.PublicKeySize),
	}
	copy(v.Owner, ix.Data[4:])
	return v, nil
}

// Transfer moves lamports between system owned accounts.
//
// Account references
//  0. [WRITE, SIGNER] Funding account
//  1. [WRITE] Recipient account
func Transfer(from, to ed25519.PublicKey, lamports uint64) solana.Instruction {
	data := newCommandData(CommandTransfer, transferDataSize)
	binary.LittleEndian.PutUint64(data[4:], lamports)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(from, true),
		solana.NewAccountMeta(to, false),
	)
}

const transferDataSize = commandSize + 8

type DecompiledTransfer struct {
	From     ed25519.PublicKey
	To       ed25519.PublicKey
	Lamports uint64
}

func DecodeTransfer(ix solana.Instruction) (*DecompiledTransfer, error) {
	if err := checkCommand(ix, CommandTransfer, transferDataSize, 2); err != nil {
		return nil, err
	}

	return &DecompiledTransfer{
		From:     ix.Accounts[0].PublicKey,
		To:       ix.Accounts[1].PublicKey,
		Lamports: binary.LittleEndian.Uint64(ix.Data[4:]),
	}, nil
}

func DecompileTransfer(m solana.Message, index int) (*DecompiledTransfer, error) {
	ix, err := decompile(m, index)
	if err != nil {
		return nil, err
	}
	return DecodeTransfer(ix)
}

// Allocate sets the data size of a new, system owned account.
//
// Account references
//  0. [WRITE, SIGNER] New account
func Allocate(address ed25519.PublicKey, size uint64) solana.Instruction {
	data := newCommandData(CommandAllocate, allocateDataSize)
	binary.LittleEndian.PutUint64(data[4:], size)

	return solana.NewInstruction(
		ProgramKey[:],
		data,
		solana.NewAccountMeta(address, true),
	)
}

const allocateDataSize = commandSize + 8

type DecompiledAllocate struct {
	Address ed25519.PublicKey
	Size    uint64
}

func DecodeAllocate(ix solana.Instruction) (*DecompiledAllocate, error) {
	if err := checkCommand(ix, CommandAllocate, allocateDataSize, 1); err != nil {
		return nil, err
	}

	return &DecompiledAllocate{
		Address: ix.Accounts[0].PublicKey,
		Size:    binary.LittleEndian.Uint64(ix.Data[4:]),
	}, nil
}

func decompile(m solana.Message, index int) (solana.Instruction, error) {
	if index >= len(m.Instructions) {
		return solana.Instruction{}, errors.Errorf("instruction doesn't exist at %d", index)
	}
	return solana.DecompileInstruction(m, index)
}
