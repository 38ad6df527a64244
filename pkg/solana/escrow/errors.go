package escrow

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
)

// Escrow program errors, reported as custom program errors.
const (
	// A required authorizing account did not sign the transaction
	ErrorCodeNotSigner solana.CustomError = iota
	// A supplied account address doesn't match the expected derivation
	ErrorCodeInvalidAddress
)

var (
	ErrNotSigner      error = ErrorCodeNotSigner
	ErrInvalidAddress error = ErrorCodeInvalidAddress
)

// GetProgramError returns the error an escrow instruction failed with, or nil
// if err isn't the result of a failed instruction. The returned value is
// either a CustomError from this package or one of the solana.Err* builtins.
func GetProgramError(err error) error {
	if ie := solana.GetInstructionError(err); ie != nil {
		return ie.Err
	}

	cause := errors.Cause(err)
	if solana.IsProgramError(cause) {
		return cause
	}
	return nil
}
