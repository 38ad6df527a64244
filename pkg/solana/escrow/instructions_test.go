package escrow

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/token"
	"github.com/code-payments/code-escrow/pkg/testutil"
)

func TestMakeInstruction(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 6)

	accounts := &MakeInstructionAccounts{
		Maker:        keys[0],
		Escrow:       keys[1],
		MintA:        keys[2],
		MintB:        keys[3],
		MakerAtaA:    keys[4],
		Vault:        keys[5],
		TokenProgram: token.ProgramKey,
	}
	args := &MakeInstructionArgs{
		Seed:    7,
		Receive: 500,
		Amount:  1000,
	}

	ix := NewMakeInstruction(PROGRAM_ID, accounts, args)
	require.Len(t, ix.Data, 25)
	assert.EqualValues(t, InstructionTypeMake, ix.Data[0])
	assert.EqualValues(t, 7, binary.LittleEndian.Uint64(ix.Data[1:]))
	assert.EqualValues(t, 500, binary.LittleEndian.Uint64(ix.Data[9:]))
	assert.EqualValues(t, 1000, binary.LittleEndian.Uint64(ix.Data[17:]))

	assert.True(t, ix.Accounts[0].IsSigner)
	assert.True(t, ix.Accounts[0].IsWritable)
	assert.True(t, ix.Accounts[1].IsWritable)
	assert.False(t, ix.Accounts[2].IsWritable)

	decodedAccounts, decodedArgs, err := DecodeMakeInstruction(ix, PROGRAM_ID)
	require.NoError(t, err)
	assert.Equal(t, accounts, decodedAccounts)
	assert.Equal(t, args, decodedArgs)

	_, _, err = DecodeMakeInstruction(ix, token.ProgramKey)
	assert.Equal(t, solana.ErrIncorrectProgram, err)

	tx := solana.NewTransaction(keys[0], ix)
	decodedAccounts, decodedArgs, err = DecompileMakeInstruction(tx.Message, 0, PROGRAM_ID)
	require.NoError(t, err)
	assert.Equal(t, accounts, decodedAccounts)
	assert.Equal(t, args, decodedArgs)

	_, _, err = DecompileMakeInstruction(tx.Message, 1, PROGRAM_ID)
	assert.Error(t, err)
}

func TestParseMakeArgs(t *testing.T) {
	valid := make([]byte, MakeInstructionArgsSize)
	binary.LittleEndian.PutUint64(valid[0:], 1)
	binary.LittleEndian.PutUint64(valid[8:], 2)
	binary.LittleEndian.PutUint64(valid[16:], 3)

	args, err := parseMakeArgs(valid)
	require.NoError(t, err)
	assert.Equal(t, &MakeInstructionArgs{Seed: 1, Receive: 2, Amount: 3}, args)

	zeroSeed := append([]byte{}, valid...)
	binary.LittleEndian.PutUint64(zeroSeed[0:], 0)
	_, err = parseMakeArgs(zeroSeed)
	assert.NoError(t, err)

	zeroReceive := append([]byte{}, valid...)
	binary.LittleEndian.PutUint64(zeroReceive[8:], 0)
	_, err = parseMakeArgs(zeroReceive)
	assert.Equal(t, solana.ErrInvalidInstructionData, err)

	zeroAmount := append([]byte{}, valid...)
	binary.LittleEndian.PutUint64(zeroAmount[16:], 0)
	_, err = parseMakeArgs(zeroAmount)
	assert.Equal(t, solana.ErrInvalidInstructionData, err)

	_, err = parseMakeArgs(valid[:23])
	assert.Equal(t, solana.ErrInvalidInstructionData, err)
	_, err = parseMakeArgs(append(valid, 0))
	assert.Equal(t, solana.ErrInvalidInstructionData, err)
}

func TestTakeAndRefundInstructions(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 9)

	take := &TakeInstructionAccounts{
		Taker:        keys[0],
		Maker:        keys[1],
		Escrow:       keys[2],
		MintA:        keys[3],
		MintB:        keys[4],
		Vault:        keys[5],
		TakerAtaA:    keys[6],
		TakerAtaB:    keys[7],
		MakerAtaB:    keys[8],
		TokenProgram: token.Token2022ProgramKey,
	}

	ix := NewTakeInstruction(PROGRAM_ID, take)
	assert.Equal(t, []byte{byte(InstructionTypeTake)}, ix.Data)
	assert.True(t, ix.Accounts[1].IsWritable)
	assert.False(t, ix.Accounts[1].IsSigner)

	decodedTake, err := DecodeTakeInstruction(ix, PROGRAM_ID)
	require.NoError(t, err)
	assert.Equal(t, take, decodedTake)

	_, err = DecodeRefundInstruction(ix, PROGRAM_ID)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	refund := &RefundInstructionAccounts{
		Maker:        keys[1],
		Escrow:       keys[2],
		MintA:        keys[3],
		MakerAtaA:    keys[4],
		Vault:        keys[5],
		TokenProgram: token.ProgramKey,
	}

	ix = NewRefundInstruction(PROGRAM_ID, refund)
	assert.Equal(t, []byte{byte(InstructionTypeRefund)}, ix.Data)

	tx := solana.NewTransaction(keys[1], ix)
	decodedRefund, err := DecompileRefundInstruction(tx.Message, 0, PROGRAM_ID)
	require.NoError(t, err)
	assert.Equal(t, refund, decodedRefund)

	_, _, err = DecodeMakeInstruction(ix, PROGRAM_ID)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
}

func TestGetProgramError(t *testing.T) {
	txErr, err := solana.TransactionErrorFromInstructionError(&solana.InstructionError{
		Index: 0,
		Err:   ErrNotSigner,
	})
	require.NoError(t, err)
	assert.Equal(t, ErrNotSigner, GetProgramError(txErr))

	assert.Equal(t, solana.ErrInvalidAccountOwner, GetProgramError(solana.ErrInvalidAccountOwner))
	assert.Nil(t, GetProgramError(solana.ErrNoAccountInfo))
	assert.Nil(t, GetProgramError(nil))
}
