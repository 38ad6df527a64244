package escrow

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/binary"
)

const (
	EscrowAccountSize = (8 + // seed
		32 + // maker
		32 + // mint_a
		32 + // mint_b
		8 + // receive
		1 + // bump
		7) // padding

	escrowPaddingSize = 7

	// MakerOffset is the offset of the maker within an escrow record, used to
	// filter program accounts by maker.
	MakerOffset = 8
)

// EscrowAccount is a pending bilateral swap: the maker has deposited mint A
// into the vault and asks for Receive units of mint B.
type EscrowAccount struct {
	Seed    uint64
	Maker   ed25519.PublicKey
	MintA   ed25519.PublicKey
	MintB   ed25519.PublicKey
	Receive uint64
	Bump    uint8
}

func (obj *EscrowAccount) Clone() *EscrowAccount {
	return &EscrowAccount{
		Seed:    obj.Seed,
		Maker:   append(ed25519.PublicKey(nil), obj.Maker...),
		MintA:   append(ed25519.PublicKey(nil), obj.MintA...),
		MintB:   append(ed25519.PublicKey(nil), obj.MintB...),
		Receive: obj.Receive,
		Bump:    obj.Bump,
	}
}

func (obj *EscrowAccount) Marshal() []byte {
	data := make([]byte, EscrowAccountSize)

	var offset int
	binary.PutUint64(data[offset:], obj.Seed, &offset)
	binary.PutKey32(data[offset:], obj.Maker, &offset)
	binary.PutKey32(data[offset:], obj.MintA, &offset)
	binary.PutKey32(data[offset:], obj.MintB, &offset)
	binary.PutUint64(data[offset:], obj.Receive, &offset)
	binary.PutUint8(data[offset:], obj.Bump, &offset)
	binary.PutZeroes(data[offset:], escrowPaddingSize, &offset)

	return data
}

// Unmarshal decodes an escrow record. The data must be exactly
// EscrowAccountSize bytes with zeroed padding.
func (obj *EscrowAccount) Unmarshal(data []byte) error {
	if len(data) != EscrowAccountSize {
		return solana.ErrInvalidAccountData
	}

	var offset int
	binary.GetUint64(data[offset:], &obj.Seed, &offset)
	binary.GetKey32(data[offset:], &obj.Maker, &offset)
	binary.GetKey32(data[offset:], &obj.MintA, &offset)
	binary.GetKey32(data[offset:], &obj.MintB, &offset)
	binary.GetUint64(data[offset:], &obj.Receive, &offset)
	binary.GetUint8(data[offset:], &obj.Bump, &offset)
	if !binary.AreZeroes(data[offset:], escrowPaddingSize, &offset) {
		return solana.ErrInvalidAccountData
	}

	return nil
}

func (obj *EscrowAccount) String() string {
	return fmt.Sprintf(
		"EscrowAccount{seed=%d,maker=%s,mint_a=%s,mint_b=%s,receive=%d,bump=%d}",
		obj.Seed,
		base58.Encode(obj.Maker),
		base58.Encode(obj.MintA),
		base58.Encode(obj.MintB),
		obj.Receive,
		obj.Bump,
	)
}
