package escrow

import (
	"context"
	"errors"

	"github.com/code-payments/code-escrow/pkg/database/query"
)

var (
	ErrEscrowNotFound         = errors.New("escrow not found")
	ErrEscrowExists           = errors.New("escrow already exists")
	ErrStaleVersion           = errors.New("escrow version is stale")
	ErrInvalidStateTransition = errors.New("invalid escrow state transition")
)

type Store interface {
	// Save creates or updates an escrow record. Updates are versioned and may
	// only move an open escrow into a terminal state.
	Save(ctx context.Context, record *Record) error

	// GetByAddress gets an escrow by its on-ledger address
	GetByAddress(ctx context.Context, address string) (*Record, error)

	// GetAllByMaker gets all escrows created by a maker
	GetAllByMaker(ctx context.Context, maker string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// GetAllByState gets all escrows by state
	GetAllByState(ctx context.Context, state State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// CountByState returns the count of escrows in the requested state
	CountByState(ctx context.Context, state State) (uint64, error)
}
