package escrow

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/runtime"
)

var (
	PROGRAM_ADDRESS = mustBase58Decode("Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS")
	PROGRAM_ID      = ed25519.PublicKey(PROGRAM_ADDRESS)
)

type InstructionType uint8

const (
	InstructionTypeMake InstructionType = iota
	InstructionTypeTake
	InstructionTypeRefund
)

func (t InstructionType) String() string {
	switch t {
	case InstructionTypeMake:
		return "make"
	case InstructionTypeTake:
		return "take"
	case InstructionTypeRefund:
		return "refund"
	}
	return "unknown"
}

// Program is the escrow program. It holds no state beyond its own address,
// which scopes every escrow address it derives and signs for.
type Program struct {
	id ed25519.PublicKey
}

var _ runtime.Program = (*Program)(nil)

// NewProgram returns the escrow program deployed at id.
func NewProgram(id ed25519.PublicKey) *Program {
	return &Program{
		id: id,
	}
}

func (p *Program) ID() ed25519.PublicKey {
	return p.id
}

// Process routes an instruction to its handler using the leading opcode byte.
func (p *Program) Process(ctx *runtime.Context, accounts []*runtime.AccountInfo, data []byte) error {
	if len(data) == 0 {
		return solana.ErrInvalidInstructionData
	}

	switch InstructionType(data[0]) {
	case InstructionTypeMake:
		return processMake(ctx, accounts, data[1:])
	case InstructionTypeTake:
		return processTake(ctx, accounts)
	case InstructionTypeRefund:
		return processRefund(ctx, accounts)
	default:
		return solana.ErrInvalidInstructionData
	}
}

// GetInstructionType returns the escrow instruction type of ix.
func GetInstructionType(ix solana.Instruction, programID ed25519.PublicKey) (InstructionType, error) {
	if !ix.Program.Equal(programID) {
		return 0, solana.ErrIncorrectProgram
	}
	if len(ix.Data) == 0 || ix.Data[0] > byte(InstructionTypeRefund) {
		return 0, solana.ErrIncorrectInstruction
	}
	return InstructionType(ix.Data[0]), nil
}

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
