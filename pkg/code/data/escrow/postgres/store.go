package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/code-escrow/pkg/code/data/escrow"
	pgutil "github.com/code-payments/code-escrow/pkg/database/postgres"
	"github.com/code-payments/code-escrow/pkg/database/query"
)

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) escrow.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

func (s *store) Save(ctx context.Context, record *escrow.Record) error {
	obj, err := toModel(record)
	if err != nil {
		return err
	}

	err = obj.dbSave(ctx, s.db)
	if err != nil {
		return err
	}

	res := fromModel(obj)
	res.CopyTo(record)

	return nil
}

func (s *store) GetByAddress(ctx context.Context, address string) (*escrow.Record, error) {
	var obj *model
	err := pgutil.ExecuteRetryable(func() (err error) {
		obj, err = dbGetByAddress(ctx, s.db, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromModel(obj), nil
}

func (s *store) GetAllByMaker(ctx context.Context, maker string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*escrow.Record, error) {
	models, err := dbGetAllByMaker(ctx, s.db, maker, cursor, limit, direction)
	if err != nil {
		return nil, err
	}
	return fromModels(models), nil
}

func (s *store) GetAllByState(ctx context.Context, state escrow.State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*escrow.Record, error) {
	var models []*model
	err := pgutil.ExecuteRetryable(func() (err error) {
		models, err = dbGetAllByState(ctx, s.db, state, cursor, limit, direction)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fromModels(models), nil
}

func (s *store) CountByState(ctx context.Context, state escrow.State) (uint64, error) {
	var count uint64
	err := pgutil.ExecuteRetryable(func() (err error) {
		count, err = dbCountByState(ctx, s.db, state)
		return err
	})
	return count, err
}

func fromModels(models []*model) []*escrow.Record {
	res := make([]*escrow.Record, len(models))
	for i, model := range models {
		res[i] = fromModel(model)
	}
	return res
}
