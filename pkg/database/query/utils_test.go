package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginateQuery(t *testing.T) {
	base := "SELECT * FROM table WHERE (maker = $1)"

	for _, tc := range []struct {
		cursor    Cursor
		limit     uint64
		direction Ordering
		query     string
		args      []interface{}
	}{
		{
			direction: Ascending,
			query:     base + " ORDER BY id ASC",
			args:      []interface{}{"maker"},
		},
		{
			limit:     10,
			direction: Descending,
			query:     base + " ORDER BY id DESC LIMIT $2",
			args:      []interface{}{"maker", uint64(10)},
		},
		{
			cursor:    ToCursor(123),
			limit:     10,
			direction: Ascending,
			query:     base + " AND id > $2 ORDER BY id ASC LIMIT $3",
			args:      []interface{}{"maker", uint64(123), uint64(10)},
		},
		{
			cursor:    ToCursor(123),
			direction: Descending,
			query:     base + " AND id < $2 ORDER BY id DESC",
			args:      []interface{}{"maker", uint64(123)},
		},
		{
			cursor:    EmptyCursor,
			limit:     5,
			direction: Ascending,
			query:     base + " ORDER BY id ASC LIMIT $2",
			args:      []interface{}{"maker", uint64(5)},
		},
	} {
		query, args := PaginateQuery(base, []interface{}{"maker"}, tc.cursor, tc.limit, tc.direction)
		assert.Equal(t, tc.query, query)
		assert.Equal(t, tc.args, args)
	}
}

func TestCursor(t *testing.T) {
	cursor := ToCursor(1 << 40)
	assert.Len(t, cursor, 8)
	assert.EqualValues(t, 1<<40, cursor.ToUint64())
	assert.Equal(t, "11111112", ToCursor(1).ToBase58())
}
