package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/code-payments/code-escrow/pkg/code/data/escrow"
	"github.com/code-payments/code-escrow/pkg/database/query"
	"github.com/code-payments/code-escrow/pkg/pointer"
)

type ById []*escrow.Record

func (a ById) Len() int           { return len(a) }
func (a ById) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool { return a[i].Id < a[j].Id }

type store struct {
	mu      sync.RWMutex
	records []*escrow.Record
	last    uint64
}

func New() escrow.Store {
	return &store{}
}

func (s *store) Save(_ context.Context, data *escrow.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findByAddress(data.Address); item != nil {
		if data.Version == 0 {
			return escrow.ErrEscrowExists
		}
		if item.Version != data.Version {
			return escrow.ErrStaleVersion
		}
		if !item.State.CanTransitionTo(data.State) {
			return escrow.ErrInvalidStateTransition
		}

		data.Version++

		item.Taker = pointer.StringCopy(data.Taker)
		item.State = data.State
		item.CloseSignature = pointer.StringCopy(data.CloseSignature)
		item.ClosedAt = pointer.TimeCopy(data.ClosedAt)
		item.Version = data.Version

		item.CopyTo(data)
		return nil
	}

	if data.Version != 0 {
		return escrow.ErrEscrowNotFound
	}

	s.last++
	data.Id = s.last
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now()
	}
	data.Version++

	c := data.Clone()
	s.records = append(s.records, &c)

	return nil
}

func (s *store) GetByAddress(_ context.Context, address string) (*escrow.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.findByAddress(address)
	if item == nil {
		return nil, escrow.ErrEscrowNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) GetAllByMaker(_ context.Context, maker string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*escrow.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := s.filter(s.findByMaker(maker), cursor, limit, direction)
	if len(res) == 0 {
		return nil, escrow.ErrEscrowNotFound
	}
	return cloneRecords(res), nil
}

func (s *store) GetAllByState(_ context.Context, state escrow.State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*escrow.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := s.filter(s.findByState(state), cursor, limit, direction)
	if len(res) == 0 {
		return nil, escrow.ErrEscrowNotFound
	}
	return cloneRecords(res), nil
}

func (s *store) CountByState(_ context.Context, state escrow.State) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.findByState(state))), nil
}

func (s *store) findByAddress(address string) *escrow.Record {
	for _, item := range s.records {
		if item.Address == address {
			return item
		}
	}
	return nil
}

func (s *store) findByMaker(maker string) []*escrow.Record {
	var res []*escrow.Record
	for _, item := range s.records {
		if item.Maker == maker {
			res = append(res, item)
		}
	}
	return res
}

func (s *store) findByState(state escrow.State) []*escrow.Record {
	var res []*escrow.Record
	for _, item := range s.records {
		if item.State == state {
			res = append(res, item)
		}
	}
	return res
}

func (s *store) filter(items []*escrow.Record, cursor query.Cursor, limit uint64, direction query.Ordering) []*escrow.Record {
	var start uint64

	start = 0
	if direction == query.Descending {
		start = s.last + 1
	}
	if len(cursor) > 0 {
		start = cursor.ToUint64()
	}

	var res []*escrow.Record
	for _, item := range items {
		if item.Id > start && direction == query.Ascending {
			res = append(res, item)
		}
		if item.Id < start && direction == query.Descending {
			res = append(res, item)
		}
	}

	if direction == query.Descending {
		sort.Sort(sort.Reverse(ById(res)))
	} else {
		sort.Sort(ById(res))
	}

	if limit > 0 && len(res) >= int(limit) {
		return res[:limit]
	}

	return res
}

func cloneRecords(items []*escrow.Record) []*escrow.Record {
	var res []*escrow.Record
	for _, item := range items {
		cloned := item.Clone()
		res = append(res, &cloned)
	}
	return res
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}
