package format

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/curate/curator/pkg/dataset"
	"github.com/malbeclabs/curate/curator/pkg/schema"
)

func TestCurator_Format_Detect(t *testing.T) {
	t.Parallel()

	cases := map[string]Format{
		"land/people/part1.csv":            FormatCSV,
		"land/people/PART2.CSV":            FormatCSV,
		"land/people/part3.parquet":        FormatParquet,
		"land/people/part4.snappy.parquet": FormatParquet,
	}
	for key, want := range cases {
		got, err := Detect(key)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}

	_, err := Detect("land/people/readme.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestCurator_Format_Stem(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "part1.snappy", Stem("land/people/part1.snappy.parquet"))
	assert.Equal(t, "people.2021", Stem("land/people/people.2021.csv"))
	assert.Equal(t, ".hidden", Stem(".hidden"))
	assert.Equal(t, "part2", Stem("s3://bucket/land/people/part2.csv"))
	assert.Equal(t, "noext", Stem("noext"))
}

func TestCurator_Format_DecodeCSV(t *testing.T) {
	t.Parallel()

	t.Run("header and values", func(t *testing.T) {
		b, err := DecodeCSV(strings.NewReader("\ufeffuser_id, name ,age\nu1,Ann,30\nu2,,\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"user_id", "name", "age"}, b.Names())
		assert.Equal(t, 2, b.Rows())
		assert.Equal(t, []any{"u1", "Ann", "30"}, b.Row(0))
		assert.Equal(t, []any{"u2", nil, nil}, b.Row(1))
	})

	t.Run("header only", func(t *testing.T) {
		b, err := DecodeCSV(strings.NewReader("a,b\n"))
		require.NoError(t, err)
		assert.Equal(t, 0, b.Rows())
		assert.Equal(t, []string{"a", "b"}, b.Names())
	})

	t.Run("empty document", func(t *testing.T) {
		b, err := DecodeCSV(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, 0, b.Len())
	})

	t.Run("ragged row", func(t *testing.T) {
		_, err := DecodeCSV(strings.NewReader("a,b\n1,2\n3\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 3")
	})

	t.Run("duplicate header", func(t *testing.T) {
		_, err := DecodeCSV(strings.NewReader("a,a\n1,2\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate column")
	})
}

func TestCurator_Format_ParquetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := schema.MustNew("people",
		schema.Column{Name: "user_id", Type: schema.TypeString},
		schema.Column{Name: "age", Type: schema.TypeInteger},
		schema.Column{Name: "score", Type: schema.TypeFloat},
		schema.Column{Name: "active", Type: schema.TypeBoolean},
		schema.Column{Name: "joined", Type: schema.TypeTimestamp, DatetimeFormat: "%Y-%m-%d"},
	)
	in, err := dataset.Reconcile(dataset.MustNewBatch(
		dataset.Column{Name: "user_id", Values: []any{"u1", "u2", nil}},
		dataset.Column{Name: "age", Values: []any{"30", nil, "41"}},
		dataset.Column{Name: "score", Values: []any{"1.5", "2", nil}},
		dataset.Column{Name: "active", Values: []any{"true", nil, "false"}},
		dataset.Column{Name: "joined", Values: []any{"2021-01-02", "2022-03-04", nil}},
	), s)
	require.NoError(t, err)

	data, err := EncodeParquet(in)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, "PAR1", string(data[:4]))

	out, err := DecodeParquet(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, s.Names(), out.Names())
	assert.Equal(t, 3, out.Rows())
	assert.Equal(t, []any{"u1", int64(30), 1.5, true, time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)}, out.Row(0))
	assert.Equal(t, []any{"u2", nil, 2.0, nil, time.Date(2022, 3, 4, 0, 0, 0, 0, time.UTC)}, out.Row(1))
	assert.Equal(t, []any{nil, int64(41), nil, false, nil}, out.Row(2))

	again, err := dataset.Reconcile(out, s)
	require.NoError(t, err)
	assert.True(t, again.Equal(in))
}

func TestCurator_Format_EncodeRequiresSchema(t *testing.T) {
	t.Parallel()

	_, err := EncodeParquet(dataset.MustNewBatch(dataset.Column{Name: "a", Values: []any{"x"}}))
	require.Error(t, err)
}

func TestCurator_Format_DecodeDispatch(t *testing.T) {
	t.Parallel()

	b, err := Decode(context.Background(), FormatCSV, []byte("a\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Rows())

	_, err = Decode(context.Background(), Format("xlsx"), nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = Decode(context.Background(), FormatParquet, []byte("not parquet"))
	require.Error(t, err)
}
