package token

import (
	"bytes"
	"crypto/ed25519"

	"github.com/code-payments/code-escrow/pkg/solana"
)

type MintKind uint8

const (
	MintKindUnknown MintKind = iota
	MintKindLegacy
	MintKindToken2022
)

// mintAccountType is the account type discriminator written by the extended
// token program at the start of extension data.
const mintAccountType = 2

func (k MintKind) String() string {
	switch k {
	case MintKindLegacy:
		return "legacy"
	case MintKindToken2022:
		return "token-2022"
	}
	return "unknown"
}

// ResolveMintInterface verifies that an account with the given owner and data
// is a mint under either supported token program and returns which one.
//
// Legacy mints must be exactly MintSize bytes. Extended mints are either
// exactly MintSize bytes, or carry a mint discriminator in their first byte.
func ResolveMintInterface(owner ed25519.PublicKey, data []byte) (MintKind, error) {
	switch {
	case bytes.Equal(owner, ProgramKey):
		if len(data) != MintSize {
			return MintKindUnknown, solana.ErrInvalidAccountData
		}
		return MintKindLegacy, nil
	case bytes.Equal(owner, Token2022ProgramKey):
		if len(data) != MintSize {
			if len(data) == 0 || data[0] != mintAccountType {
				return MintKindUnknown, solana.ErrInvalidAccountData
			}
		}
		return MintKindToken2022, nil
	default:
		return MintKindUnknown, solana.ErrInvalidAccountOwner
	}
}

// ProgramForMintKind returns the token program that owns mints of kind k.
func ProgramForMintKind(k MintKind) ed25519.PublicKey {
	if k == MintKindToken2022 {
		return Token2022ProgramKey
	}
	return ProgramKey
}
