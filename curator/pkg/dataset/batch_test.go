package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurator_Dataset_Batch(t *testing.T) {
	t.Parallel()

	t.Run("ragged columns rejected", func(t *testing.T) {
		_, err := NewBatch(
			Column{Name: "a", Values: []any{1, 2}},
			Column{Name: "b", Values: []any{1}},
		)
		require.EqualError(t, err, `column "b" has 1 rows, expected 2`)
	})

	t.Run("duplicate names rejected", func(t *testing.T) {
		_, err := NewBatch(Column{Name: "a"}, Column{Name: "a"})
		require.Error(t, err)
	})

	t.Run("values are copied", func(t *testing.T) {
		vals := []any{"x"}
		b := MustNewBatch(Column{Name: "a", Values: vals})
		vals[0] = "y"
		assert.Equal(t, "x", b.Value("a", 0))

		col, ok := b.Column("a")
		require.True(t, ok)
		col[0] = "z"
		assert.Equal(t, "x", b.Value("a", 0))
	})

	t.Run("with column replaces and appends", func(t *testing.T) {
		b := MustNewBatch(
			Column{Name: "a", Values: []any{1, 2}},
			Column{Name: "b", Values: []any{3, 4}},
		)
		r, err := b.WithColumn(Column{Name: "a", Values: []any{"x", "y"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, r.Names())
		assert.Equal(t, []any{"x", 3}, r.Row(0))
		assert.Equal(t, 1, b.Value("a", 0), "original batch is unchanged")

		r, err = r.WithColumn(Column{Name: "c", Values: []any{true, false}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, r.Names())
		assert.True(t, r.Has("c"))
		assert.Nil(t, r.Schema())

		_, err = b.WithColumn(Column{Name: "c", Values: []any{true}})
		require.Error(t, err)
	})

	t.Run("with column on empty batch", func(t *testing.T) {
		r, err := MustNewBatch().WithColumn(Column{Name: "a", Values: []any{1, 2, 3}})
		require.NoError(t, err)
		assert.Equal(t, 3, r.Rows())
	})

	t.Run("equal compares timestamps by instant", func(t *testing.T) {
		utc := time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)
		local := utc.In(time.FixedZone("X", 3600))
		a := MustNewBatch(Column{Name: "t", Values: []any{utc, nil}})
		b := MustNewBatch(Column{Name: "t", Values: []any{local, nil}})
		assert.True(t, a.Equal(b))
		assert.False(t, a.Equal(MustNewBatch(Column{Name: "u", Values: []any{utc, nil}})))
		assert.False(t, a.Equal(nil))
	})
}

func TestCurator_Dataset_CompareValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, -1, compareValues("a", "b"))
	assert.Equal(t, 1, compareValues(int64(10), int64(9)))
	assert.Equal(t, 0, compareValues(1.5, 1.5))
	assert.Equal(t, -1, compareValues(false, true))
	assert.Equal(t, 1, compareValues(time.Unix(2, 0), time.Unix(1, 0)))
}
