package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/code-escrow/pkg/code/data/escrow"
	pgutil "github.com/code-payments/code-escrow/pkg/database/postgres"
	q "github.com/code-payments/code-escrow/pkg/database/query"
	"github.com/code-payments/code-escrow/pkg/pointer"
)

const (
	tableName = "codewallet__core_escrow"

	allColumns = `id, address, maker, mint_a, mint_b, seed, bump, receive, amount, taker, state, make_signature, close_signature, version, created_at, closed_at`
)

type model struct {
	Id             sql.NullInt64  `db:"id"`
	Address        string         `db:"address"`
	Maker          string         `db:"maker"`
	MintA          string         `db:"mint_a"`
	MintB          string         `db:"mint_b"`
	Seed           int64          `db:"seed"`
	Bump           uint8          `db:"bump"`
	Receive        int64          `db:"receive"`
	Amount         int64          `db:"amount"`
	Taker          sql.NullString `db:"taker"`
	State          uint8          `db:"state"`
	MakeSignature  string         `db:"make_signature"`
	CloseSignature sql.NullString `db:"close_signature"`
	Version        uint64         `db:"version"`
	CreatedAt      time.Time      `db:"created_at"`
	ClosedAt       sql.NullTime   `db:"closed_at"`
}

func toModel(obj *escrow.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = time.Now().UTC()
	}

	// Seeds and amounts are full range u64 values stored in BIGINT columns
	// with their bits preserved.
	return &model{
		Id:             sql.NullInt64{Int64: int64(obj.Id), Valid: obj.Id > 0},
		Address:        obj.Address,
		Maker:          obj.Maker,
		MintA:          obj.MintA,
		MintB:          obj.MintB,
		Seed:           int64(obj.Seed),
		Bump:           obj.Bump,
		Receive:        int64(obj.Receive),
		Amount:         int64(obj.Amount),
		Taker:          sql.NullString{String: *pointer.StringOrDefault(obj.Taker, ""), Valid: obj.Taker != nil},
		State:          uint8(obj.State),
		MakeSignature:  obj.MakeSignature,
		CloseSignature: sql.NullString{String: *pointer.StringOrDefault(obj.CloseSignature, ""), Valid: obj.CloseSignature != nil},
		Version:        obj.Version,
		CreatedAt:      obj.CreatedAt,
		ClosedAt:       sql.NullTime{Time: *pointer.TimeOrDefault(obj.ClosedAt, time.Time{}), Valid: obj.ClosedAt != nil},
	}, nil
}

func fromModel(m *model) *escrow.Record {
	return &escrow.Record{
		Id:             uint64(m.Id.Int64),
		Address:        m.Address,
		Maker:          m.Maker,
		MintA:          m.MintA,
		MintB:          m.MintB,
		Seed:           uint64(m.Seed),
		Bump:           m.Bump,
		Receive:        uint64(m.Receive),
		Amount:         uint64(m.Amount),
		Taker:          pointer.StringIfValid(m.Taker.Valid, m.Taker.String),
		State:          escrow.State(m.State),
		MakeSignature:  m.MakeSignature,
		CloseSignature: pointer.StringIfValid(m.CloseSignature.Valid, m.CloseSignature.String),
		Version:        m.Version,
		CreatedAt:      m.CreatedAt,
		ClosedAt:       pointer.TimeIfValid(m.ClosedAt.Valid, m.ClosedAt.Time),
	}
}

func (m *model) dbSave(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		existing := &model{}
		err := tx.GetContext(ctx, existing, `SELECT `+allColumns+` FROM `+tableName+` WHERE address = $1 FOR UPDATE`, m.Address)
		switch {
		case pgutil.IsNoRows(err):
			return m.dbInsert(ctx, tx)
		case err != nil:
			return err
		}

		if m.Version == 0 {
			return escrow.ErrEscrowExists
		}
		if existing.Version != m.Version {
			return escrow.ErrStaleVersion
		}
		if !escrow.State(existing.State).CanTransitionTo(escrow.State(m.State)) {
			return escrow.ErrInvalidStateTransition
		}

		query := `UPDATE ` + tableName + `
			SET taker = $2, state = $3, close_signature = $4, closed_at = $5, version = version + 1
			WHERE address = $1 AND version = $6

			RETURNING ` + allColumns

		err = tx.QueryRowxContext(
			ctx,
			query,
			m.Address,
			m.Taker,
			m.State,
			m.CloseSignature,
			m.ClosedAt,
			m.Version,
		).StructScan(m)
		return pgutil.CheckNoRows(err, escrow.ErrStaleVersion)
	})
}

func (m *model) dbInsert(ctx context.Context, tx *sqlx.Tx) error {
	if m.Version != 0 {
		return escrow.ErrEscrowNotFound
	}

	query := `INSERT INTO ` + tableName + `
		(address, maker, mint_a, mint_b, seed, bump, receive, amount, taker, state, make_signature, close_signature, version, created_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)

		RETURNING ` + allColumns

	err := tx.QueryRowxContext(
		ctx,
		query,
		m.Address,
		m.Maker,
		m.MintA,
		m.MintB,
		m.Seed,
		m.Bump,
		m.Receive,
		m.Amount,
		m.Taker,
		m.State,
		m.MakeSignature,
		m.CloseSignature,
		m.CreatedAt,
		m.ClosedAt,
	).StructScan(m)
	return pgutil.CheckUniqueViolation(err, escrow.ErrEscrowExists)
}

func dbGetByAddress(ctx context.Context, db *sqlx.DB, address string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE address = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, escrow.ErrEscrowNotFound)
	}
	return res, nil
}

func dbGetAllByMaker(ctx context.Context, db *sqlx.DB, maker string, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE (maker = $1)`

	opts := []interface{}{maker}
	query, opts = q.PaginateQuery(query, opts, cursor, limit, direction)

	err := db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, escrow.ErrEscrowNotFound)
	}

	if len(res) == 0 {
		return nil, escrow.ErrEscrowNotFound
	}
	return res, nil
}

func dbGetAllByState(ctx context.Context, db *sqlx.DB, state escrow.State, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allColumns + `
		FROM ` + tableName + `
		WHERE (state = $1)`

	opts := []interface{}{state}
	query, opts = q.PaginateQuery(query, opts, cursor, limit, direction)

	err := db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, escrow.ErrEscrowNotFound)
	}

	if len(res) == 0 {
		return nil, escrow.ErrEscrowNotFound
	}
	return res, nil
}

func dbCountByState(ctx context.Context, db *sqlx.DB, state escrow.State) (uint64, error) {
	var res uint64

	query := `SELECT COUNT(*) FROM ` + tableName + `
		WHERE state = $1`

	err := db.GetContext(ctx, &res, query, state)
	if err != nil {
		return 0, err
	}
	return res, nil
}
