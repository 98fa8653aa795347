package lineage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/curate/curator/pkg/dataset"
	"github.com/malbeclabs/curate/curator/pkg/schema"
)

func testStamp() Stamp {
	return Stamp{
		StartDatetime: time.Unix(1700000000, 0),
		ImageTag:      "v1.2.3",
		RawFilename:   "land/people/part1.csv",
		TaskTimestamp: time.Date(2024, 5, 6, 7, 8, 9, 500_000_000, time.UTC),
	}
}

func TestCurator_Lineage_Schema(t *testing.T) {
	t.Parallel()

	base := schema.MustNew("people",
		schema.Column{Name: "id", Type: schema.TypeInteger},
		schema.Column{Name: ColumnImageTag, Type: schema.TypeInteger},
	)
	s, err := Schema(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", ColumnImageTag, ColumnStartDatetime, ColumnRawFilename, ColumnTaskTimestamp}, s.Names())

	tag, _ := s.Column(ColumnImageTag)
	assert.Equal(t, schema.TypeString, tag.Type, "lineage descriptor replaces the base column")
	start, _ := s.Column(ColumnStartDatetime)
	assert.Equal(t, "%Y-%m-%dT%H:%M:%S", start.DatetimeFormat)

	assert.Equal(t, 2, base.Len(), "base schema is unchanged")
}

func TestCurator_Lineage_Apply(t *testing.T) {
	t.Parallel()

	in := dataset.MustNewBatch(
		dataset.Column{Name: "id", Values: []any{"1", "2"}},
		dataset.Column{Name: ColumnImageTag, Values: []any{"stale", "stale"}},
	)
	out, err := Apply(in, testStamp())
	require.NoError(t, err)

	assert.Equal(t, []string{"id", ColumnImageTag, ColumnStartDatetime, ColumnRawFilename, ColumnTaskTimestamp}, out.Names())
	for row := range 2 {
		assert.Equal(t, "v1.2.3", out.Value(ColumnImageTag, row))
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), out.Value(ColumnStartDatetime, row))
		assert.Equal(t, "land/people/part1.csv", out.Value(ColumnRawFilename, row))
		assert.Equal(t, time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), out.Value(ColumnTaskTimestamp, row))
	}
	assert.Equal(t, "stale", in.Value(ColumnImageTag, 0), "input batch is unchanged")

	t.Run("reconciles against the lineage schema", func(t *testing.T) {
		base := schema.MustNew("people", schema.Column{Name: "id", Type: schema.TypeInteger})
		s, err := Schema(base)
		require.NoError(t, err)
		rec, err := dataset.Reconcile(out, s)
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Value("id", 1))
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec.Value(ColumnStartDatetime, 0))
	})

	t.Run("empty batch", func(t *testing.T) {
		out, err := Apply(dataset.MustNewBatch(dataset.Column{Name: "id", Values: []any{}}), testStamp())
		require.NoError(t, err)
		assert.Equal(t, 0, out.Rows())
		assert.Equal(t, 5, out.Len())
	})

	t.Run("invalid stamp", func(t *testing.T) {
		s := testStamp()
		s.ImageTag = ""
		_, err := Apply(in, s)
		require.EqualError(t, err, "image tag is required")
	})
}

func TestCurator_Lineage_PartitionValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "2023-11-14T22:13:20", PartitionValue(time.Unix(1700000000, 0)))
}

func TestCurator_Lineage_Columns(t *testing.T) {
	t.Parallel()

	cols := Columns()
	require.Len(t, cols, 4)
	assert.Equal(t, ColumnStartDatetime, cols[0].Name)
	cols[0].Name = "changed"
	assert.Equal(t, ColumnStartDatetime, Columns()[0].Name)
}
