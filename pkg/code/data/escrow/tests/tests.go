package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-escrow/pkg/code/data/escrow"
	"github.com/code-payments/code-escrow/pkg/database/query"
	"github.com/code-payments/code-escrow/pkg/pointer"
)

func RunTests(t *testing.T, s escrow.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s escrow.Store){
		testRoundTrip,
		testSettle,
		testRefund,
		testInvalidStateTransitions,
		testUpdateStaleRecord,
		testDuplicateInsert,
		testGetAllByMaker,
		testGetAllByState,
		testCountByState,
	} {
		tf(t, s)
		teardown()
	}
}

func newOpenRecord(i int, maker string) *escrow.Record {
	return &escrow.Record{
		Address: fmt.Sprintf("test_escrow_%d", i),

		Maker: maker,
		MintA: "test_mint_a",
		MintB: "test_mint_b",

		Seed:    uint64(i),
		Bump:    254,
		Receive: 500,
		Amount:  1000,

		State: escrow.StateOpen,

		MakeSignature: fmt.Sprintf("test_make_signature_%d", i),

		CreatedAt: time.Now(),
	}
}

func testRoundTrip(t *testing.T, s escrow.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		actual, err := s.GetByAddress(ctx, "test_escrow_7")
		require.Error(t, err)
		assert.Equal(t, escrow.ErrEscrowNotFound, err)
		assert.Nil(t, actual)

		expected := newOpenRecord(7, "test_maker")
		expected.Seed = 1<<64 - 1
		expected.Receive = 1<<63 + 5
		cloned := expected.Clone()

		err = s.Save(ctx, expected)
		require.NoError(t, err)
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 1, expected.Version)

		actual, err = s.GetByAddress(ctx, "test_escrow_7")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)
		assert.EqualValues(t, 1, actual.Id)
		assert.EqualValues(t, 1, actual.Version)
		assert.Nil(t, actual.Taker)
		assert.Nil(t, actual.CloseSignature)
		assert.Nil(t, actual.ClosedAt)
	})
}

func testSettle(t *testing.T, s escrow.Store) {
	t.Run("testSettle", func(t *testing.T) {
		ctx := context.Background()

		expected := newOpenRecord(1, "test_maker")
		require.NoError(t, s.Save(ctx, expected))

		expected.State = escrow.StateSettled
		expected.Taker = pointer.String("test_taker")
		expected.CloseSignature = pointer.String("test_close_signature")
		expected.ClosedAt = pointer.Time(time.Now())

		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 1, expected.Id)
		assert.EqualValues(t, 2, expected.Version)

		actual, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
		assert.EqualValues(t, 2, actual.Version)
		require.NotNil(t, actual.ClosedAt)
	})
}

func testRefund(t *testing.T, s escrow.Store) {
	t.Run("testRefund", func(t *testing.T) {
		ctx := context.Background()

		expected := newOpenRecord(1, "test_maker")
		require.NoError(t, s.Save(ctx, expected))

		invalid := expected.Clone()
		invalid.State = escrow.StateRefunded
		invalid.Taker = pointer.String("test_taker")
		invalid.CloseSignature = pointer.String("test_close_signature")
		invalid.ClosedAt = pointer.Time(time.Now())
		assert.Error(t, s.Save(ctx, &invalid))

		expected.State = escrow.StateRefunded
		expected.CloseSignature = pointer.String("test_close_signature")
		expected.ClosedAt = pointer.Time(time.Now())
		require.NoError(t, s.Save(ctx, expected))

		actual, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
		assert.Nil(t, actual.Taker)
	})
}

func testInvalidStateTransitions(t *testing.T, s escrow.Store) {
	t.Run("testInvalidStateTransitions", func(t *testing.T) {
		ctx := context.Background()

		record := newOpenRecord(1, "test_maker")
		require.NoError(t, s.Save(ctx, record))

		record.State = escrow.StateClosed
		record.ClosedAt = pointer.Time(time.Now())
		require.NoError(t, s.Save(ctx, record))
		assert.EqualValues(t, 2, record.Version)

		for _, next := range []escrow.State{escrow.StateClosed, escrow.StateSettled, escrow.StateRefunded} {
			update := record.Clone()
			update.State = next
			if next != escrow.StateClosed {
				update.CloseSignature = pointer.String("test_close_signature")
			}
			if next == escrow.StateSettled {
				update.Taker = pointer.String("test_taker")
			}

			assert.Equal(t, escrow.ErrInvalidStateTransition, s.Save(ctx, &update))
		}

		update := record.Clone()
		update.State = escrow.StateOpen
		update.ClosedAt = nil
		assert.Equal(t, escrow.ErrInvalidStateTransition, s.Save(ctx, &update))

		actual, err := s.GetByAddress(ctx, record.Address)
		require.NoError(t, err)
		assert.Equal(t, escrow.StateClosed, actual.State)
		assert.EqualValues(t, 2, actual.Version)
	})
}

func testUpdateStaleRecord(t *testing.T, s escrow.Store) {
	t.Run("testUpdateStaleRecord", func(t *testing.T) {
		ctx := context.Background()

		expected := newOpenRecord(1, "test_maker")
		require.NoError(t, s.Save(ctx, expected))

		expected.State = escrow.StateRefunded
		expected.CloseSignature = pointer.String("test_close_signature")
		expected.ClosedAt = pointer.Time(time.Now())
		stale := expected.Clone()
		require.NoError(t, s.Save(ctx, expected))

		stale.State = escrow.StateSettled
		stale.Taker = pointer.String("test_taker")
		err := s.Save(ctx, &stale)
		assert.Equal(t, escrow.ErrStaleVersion, err)
		assert.EqualValues(t, 1, stale.Version)

		actual, err := s.GetByAddress(ctx, expected.Address)
		require.NoError(t, err)
		assert.Equal(t, escrow.StateRefunded, actual.State)
		assert.Nil(t, actual.Taker)
		assert.EqualValues(t, 2, actual.Version)
	})
}

func testDuplicateInsert(t *testing.T, s escrow.Store) {
	t.Run("testDuplicateInsert", func(t *testing.T) {
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, newOpenRecord(1, "test_maker")))

		duplicate := newOpenRecord(1, "test_other_maker")
		assert.Equal(t, escrow.ErrEscrowExists, s.Save(ctx, duplicate))

		missing := newOpenRecord(2, "test_maker")
		missing.Version = 3
		assert.Equal(t, escrow.ErrEscrowNotFound, s.Save(ctx, missing))

		actual, err := s.GetByAddress(ctx, "test_escrow_1")
		require.NoError(t, err)
		assert.Equal(t, "test_maker", actual.Maker)

		_, err = s.GetByAddress(ctx, "test_escrow_2")
		assert.Equal(t, escrow.ErrEscrowNotFound, err)
	})
}

func testGetAllByMaker(t *testing.T, s escrow.Store) {
	t.Run("testGetAllByMaker", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAllByMaker(ctx, "test_maker_0", query.EmptyCursor, 10, query.Ascending)
		assert.Equal(t, escrow.ErrEscrowNotFound, err)

		var records []*escrow.Record
		for i := 0; i < 30; i++ {
			record := newOpenRecord(i, fmt.Sprintf("test_maker_%d", i%3))
			require.NoError(t, s.Save(ctx, record))
			records = append(records, record)
		}

		allActual, err := s.GetAllByMaker(ctx, "test_maker_1", query.EmptyCursor, 100, query.Ascending)
		require.NoError(t, err)
		require.Len(t, allActual, 10)
		for i, actual := range allActual {
			assertEquivalentRecords(t, records[3*i+1], actual)
		}

		allActual, err = s.GetAllByMaker(ctx, "test_maker_1", query.EmptyCursor, 3, query.Descending)
		require.NoError(t, err)
		require.Len(t, allActual, 3)
		for i, actual := range allActual {
			assertEquivalentRecords(t, records[28-3*i], actual)
		}

		allActual, err = s.GetAllByMaker(ctx, "test_maker_1", query.ToCursor(records[13].Id), 100, query.Ascending)
		require.NoError(t, err)
		require.Len(t, allActual, 5)
		assertEquivalentRecords(t, records[16], allActual[0])

		_, err = s.GetAllByMaker(ctx, "test_maker_3", query.EmptyCursor, 100, query.Ascending)
		assert.Equal(t, escrow.ErrEscrowNotFound, err)
	})
}

func testGetAllByState(t *testing.T, s escrow.Store) {
	t.Run("testGetAllByState", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetAllByState(ctx, escrow.StateOpen, query.EmptyCursor, 1, query.Ascending)
		assert.Equal(t, escrow.ErrEscrowNotFound, err)

		var records []*escrow.Record
		for i := 0; i < 100; i++ {
			record := newOpenRecord(i, fmt.Sprintf("test_maker_%d", i%3))
			require.NoError(t, s.Save(ctx, record))

			if i >= 50 {
				record.State = escrow.StateClosed
				record.ClosedAt = pointer.Time(time.Now())
				require.NoError(t, s.Save(ctx, record))
			}

			records = append(records, record)
		}

		allActual, err := s.GetAllByState(ctx, escrow.StateOpen, query.EmptyCursor, 100, query.Ascending)
		require.NoError(t, err)
		require.Len(t, allActual, 50)
		for i, actual := range allActual {
			assertEquivalentRecords(t, records[i], actual)
		}

		allActual, err = s.GetAllByState(ctx, escrow.StateOpen, query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, allActual, 10)
		for i, actual := range allActual {
			assertEquivalentRecords(t, records[i], actual)
		}

		allActual, err = s.GetAllByState(ctx, escrow.StateOpen, query.EmptyCursor, 10, query.Descending)
		require.NoError(t, err)
		require.Len(t, allActual, 10)
		for i, actual := range allActual {
			assertEquivalentRecords(t, records[50-i-1], actual)
		}

		allActual, err = s.GetAllByState(ctx, escrow.StateOpen, query.ToCursor(records[23].Id), 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, allActual, 10)
		for i, actual := range allActual {
			assertEquivalentRecords(t, records[23+i+1], actual)
		}

		allActual, err = s.GetAllByState(ctx, escrow.StateOpen, query.ToCursor(records[23].Id), 10, query.Descending)
		require.NoError(t, err)
		require.Len(t, allActual, 10)
		for i, actual := range allActual {
			assertEquivalentRecords(t, records[23-i-1], actual)
		}

		_, err = s.GetAllByState(ctx, escrow.StateOpen, query.ToCursor(records[49].Id), 10, query.Ascending)
		assert.Equal(t, escrow.ErrEscrowNotFound, err)

		allActual, err = s.GetAllByState(ctx, escrow.StateClosed, query.EmptyCursor, 100, query.Ascending)
		require.NoError(t, err)
		require.Len(t, allActual, 50)
		for i, actual := range allActual {
			assertEquivalentRecords(t, records[50+i], actual)
		}
	})
}

func testCountByState(t *testing.T, s escrow.Store) {
	t.Run("testCountByState", func(t *testing.T) {
		ctx := context.Background()

		count, err := s.CountByState(ctx, escrow.StateOpen)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)

		for i := 0; i < 10; i++ {
			record := newOpenRecord(i, "test_maker")
			require.NoError(t, s.Save(ctx, record))

			if i%2 == 0 {
				record.State = escrow.StateRefunded
				record.CloseSignature = pointer.String(fmt.Sprintf("test_close_signature_%d", i))
				record.ClosedAt = pointer.Time(time.Now())
				require.NoError(t, s.Save(ctx, record))
			}
		}

		for state, expected := range map[escrow.State]uint64{
			escrow.StateOpen:     5,
			escrow.StateRefunded: 5,
			escrow.StateSettled:  0,
			escrow.StateClosed:   0,
		} {
			count, err := s.CountByState(ctx, state)
			require.NoError(t, err)
			assert.Equal(t, expected, count)
		}
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *escrow.Record) {
	assert.Equal(t, obj1.Address, obj2.Address)

	assert.Equal(t, obj1.Maker, obj2.Maker)
	assert.Equal(t, obj1.MintA, obj2.MintA)
	assert.Equal(t, obj1.MintB, obj2.MintB)

	assert.Equal(t, obj1.Seed, obj2.Seed)
	assert.Equal(t, obj1.Bump, obj2.Bump)
	assert.Equal(t, obj1.Receive, obj2.Receive)
	assert.Equal(t, obj1.Amount, obj2.Amount)

	assert.EqualValues(t, obj1.Taker, obj2.Taker)

	assert.Equal(t, obj1.State, obj2.State)

	assert.Equal(t, obj1.MakeSignature, obj2.MakeSignature)
	assert.EqualValues(t, obj1.CloseSignature, obj2.CloseSignature)

	assert.Equal(t, obj1.ClosedAt == nil, obj2.ClosedAt == nil)
}
