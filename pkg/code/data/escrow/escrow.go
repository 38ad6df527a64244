package escrow

import (
	"errors"
	"time"

	"github.com/code-payments/code-escrow/pkg/pointer"
)

type State uint8

const (
	StateUnknown State = iota
	StateOpen
	StateSettled
	StateRefunded
	StateClosed // Closed without going through this index, observed by the reconciler
)

// Record is the off-ledger index entry for an escrow created through the
// client. The ledger remains the source of truth for balances.
type Record struct {
	Id uint64

	Address string

	Maker string
	MintA string
	MintB string

	Seed    uint64
	Bump    uint8
	Receive uint64
	Amount  uint64

	Taker *string

	State State

	MakeSignature  string
	CloseSignature *string

	Version uint64

	CreatedAt time.Time
	ClosedAt  *time.Time
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		Address: r.Address,

		Maker: r.Maker,
		MintA: r.MintA,
		MintB: r.MintB,

		Seed:    r.Seed,
		Bump:    r.Bump,
		Receive: r.Receive,
		Amount:  r.Amount,

		Taker: pointer.StringCopy(r.Taker),

		State: r.State,

		MakeSignature:  r.MakeSignature,
		CloseSignature: pointer.StringCopy(r.CloseSignature),

		Version: r.Version,

		CreatedAt: r.CreatedAt,
		ClosedAt:  pointer.TimeCopy(r.ClosedAt),
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Address = r.Address

	dst.Maker = r.Maker
	dst.MintA = r.MintA
	dst.MintB = r.MintB

	dst.Seed = r.Seed
	dst.Bump = r.Bump
	dst.Receive = r.Receive
	dst.Amount = r.Amount

	dst.Taker = pointer.StringCopy(r.Taker)

	dst.State = r.State

	dst.MakeSignature = r.MakeSignature
	dst.CloseSignature = pointer.StringCopy(r.CloseSignature)

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
	dst.ClosedAt = pointer.TimeCopy(r.ClosedAt)
}

func (r *Record) Validate() error {
	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if len(r.Maker) == 0 {
		return errors.New("maker is required")
	}

	if len(r.MintA) == 0 {
		return errors.New("mint a is required")
	}

	if len(r.MintB) == 0 {
		return errors.New("mint b is required")
	}

	if r.Receive == 0 {
		return errors.New("receive amount is required")
	}

	if r.Amount == 0 {
		return errors.New("deposit amount is required")
	}

	if len(r.MakeSignature) == 0 {
		return errors.New("make signature is required")
	}

	if r.State == StateUnknown {
		return errors.New("state is required")
	}

	if r.Taker != nil && len(*r.Taker) == 0 {
		return errors.New("taker is empty")
	}

	if r.CloseSignature != nil && len(*r.CloseSignature) == 0 {
		return errors.New("close signature is empty")
	}

	switch r.State {
	case StateOpen:
		if r.Taker != nil || r.CloseSignature != nil || r.ClosedAt != nil {
			return errors.New("open escrow cannot have closing details")
		}
	case StateSettled:
		if r.Taker == nil {
			return errors.New("taker is required for settled escrow")
		}
		if r.CloseSignature == nil {
			return errors.New("close signature is required for settled escrow")
		}
	case StateRefunded:
		if r.Taker != nil {
			return errors.New("refunded escrow cannot have a taker")
		}
		if r.CloseSignature == nil {
			return errors.New("close signature is required for refunded escrow")
		}
	}

	if r.State != StateOpen && r.ClosedAt == nil {
		return errors.New("closed timestamp is required")
	}

	return nil
}

// IsTerminal reports whether the escrow no longer exists on the ledger.
func (s State) IsTerminal() bool {
	return s == StateSettled || s == StateRefunded || s == StateClosed
}

// CanTransitionTo reports whether a record in state s may be saved in state
// next. Open records may stay open or close once; terminal records are
// immutable.
func (s State) CanTransitionTo(next State) bool {
	return s == StateOpen && next != StateUnknown
}

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSettled:
		return "settled"
	case StateRefunded:
		return "refunded"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
