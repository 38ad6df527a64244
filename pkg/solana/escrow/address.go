package escrow

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/token"
)

var (
	escrowPrefix = []byte("escrow")
)

type GetEscrowAddressArgs struct {
	Maker ed25519.PublicKey
	Seed  uint64
}

// GetEscrowAddress derives the escrow record address of a maker and seed
// under programID, along with its bump.
func GetEscrowAddress(args *GetEscrowAddressArgs, programID ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		programID,
		escrowPrefix,
		args.Maker,
		seedBytes(args.Seed),
	)
}

// CreateEscrowAddress recomputes an escrow record address from a known bump.
func CreateEscrowAddress(maker ed25519.PublicKey, seed uint64, bump uint8, programID ed25519.PublicKey) (ed25519.PublicKey, error) {
	return solana.CreateProgramAddress(programID, escrowSignerSeeds(maker, seed, bump)...)
}

// GetVaultAddress returns the vault of an escrow record: the associated token
// account of the record for mintA.
func GetVaultAddress(escrow, mintA, tokenProgram ed25519.PublicKey) (ed25519.PublicKey, error) {
	return token.GetAssociatedAccountForProgram(escrow, mintA, tokenProgram)
}

func escrowSignerSeeds(maker ed25519.PublicKey, seed uint64, bump uint8) [][]byte {
	return [][]byte{
		escrowPrefix,
		maker,
		seedBytes(seed),
		{bump},
	}
}

func seedBytes(seed uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, seed)
	return b
}
