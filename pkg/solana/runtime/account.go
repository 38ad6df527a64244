package runtime

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-escrow/pkg/solana"
	"github.com/code-payments/code-escrow/pkg/solana/system"
)

// Account is the ledger state stored at an address.
type Account struct {
	Lamports   uint64
	Data       []byte
	Owner      ed25519.PublicKey
	Executable bool
}

func (a *Account) clone() *Account {
	cloned := &Account{
		Lamports:   a.Lamports,
		Owner:      make(ed25519.PublicKey, ed25519.PublicKeySize),
		Executable: a.Executable,
	}
	copy(cloned.Owner, a.Owner)
	if a.Data != nil {
		cloned.Data = make([]byte, len(a.Data))
		copy(cloned.Data, a.Data)
	}
	return cloned
}

func (a *Account) exists() bool {
	return a.Lamports > 0
}

func newEmptyAccount() *Account {
	owner := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(owner, system.ProgramKey[:])
	return &Account{Owner: owner}
}

// AccountInfo is a program's view of an account passed to an instruction.
// Programs may mutate the underlying account directly; the runtime verifies
// every change against the owner and privilege rules when the program returns.
type AccountInfo struct {
	Key        ed25519.PublicKey
	IsSigner   bool
	IsWritable bool

	account *Account
}

func (a *AccountInfo) Lamports() uint64 {
	return a.account.Lamports
}

func (a *AccountInfo) SetLamports(lamports uint64) {
	a.account.Lamports = lamports
}

// Data returns the account data. Writes are visible to the rest of the
// transaction.
func (a *AccountInfo) Data() []byte {
	return a.account.Data
}

func (a *AccountInfo) DataLen() int {
	return len(a.account.Data)
}

func (a *AccountInfo) DataIsEmpty() bool {
	return len(a.account.Data) == 0
}

func (a *AccountInfo) Owner() ed25519.PublicKey {
	return a.account.Owner
}

func (a *AccountInfo) IsOwnedBy(program ed25519.PublicKey) bool {
	return bytes.Equal(a.account.Owner, program)
}

func (a *AccountInfo) Executable() bool {
	return a.account.Executable
}

// Realloc resizes the account data, zero filling any new bytes.
func (a *AccountInfo) Realloc(size int) error {
	if size < 0 {
		return solana.ErrInvalidRealloc
	}

	resized := make([]byte, size)
	copy(resized, a.account.Data)
	a.account.Data = resized
	return nil
}

// Assign changes the owner of the account. Only the current owner may do so,
// and only while the data is zeroed.
func (a *AccountInfo) Assign(owner ed25519.PublicKey) {
	a.account.Owner = make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(a.account.Owner, owner)
}

// AddLamports credits the account, failing on overflow.
func (a *AccountInfo) AddLamports(lamports uint64) error {
	if a.account.Lamports+lamports < a.account.Lamports {
		return solana.ErrArithmeticOverflow
	}
	a.account.Lamports += lamports
	return nil
}

// SubLamports debits the account, failing if the balance is insufficient.
func (a *AccountInfo) SubLamports(lamports uint64) error {
	if a.account.Lamports < lamports {
		return errors.Wrapf(solana.ErrInsufficientFunds, "balance %d < %d", a.account.Lamports, lamports)
	}
	a.account.Lamports -= lamports
	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
