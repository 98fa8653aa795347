package schema

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/curate/curator/pkg/storage"
)

const peopleMetadata = `{
  "name": "people",
  "description": "sample people data",
  "columns": [
    {"name": "user_id", "type": "string", "description": "user identifier"},
    {"name": "age", "type": "int64"},
    {"name": "score", "type": "float64"},
    {"name": "active", "type": "bool"},
    {"name": "date_of_birth", "type": "timestamp(s)", "datetime_format": "%Y-%m-%d"},
    {"name": "source_extraction_date", "type": "timestamp(ms)"}
  ]
}`

func TestCurator_Schema_Parse(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(peopleMetadata))
	require.NoError(t, err)
	assert.Equal(t, "people", s.Name())
	assert.Equal(t, "sample people data", s.Description())
	assert.Equal(t, []string{"user_id", "age", "score", "active", "date_of_birth", "source_extraction_date"}, s.Names())

	dob, ok := s.Column("date_of_birth")
	require.True(t, ok)
	assert.Equal(t, TypeTimestamp, dob.Type)
	assert.Equal(t, "%Y-%m-%d", dob.DatetimeFormat)

	extracted, ok := s.Column("source_extraction_date")
	require.True(t, ok)
	assert.Equal(t, DefaultDatetimeFormat, extracted.DatetimeFormat, "timestamp without format gets the default")

	age, _ := s.Column("age")
	assert.Equal(t, TypeInteger, age.Type)
	assert.Empty(t, age.DatetimeFormat)

	_, ok = s.Column("missing")
	assert.False(t, ok)
}

func TestCurator_Schema_ParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"invalid json", `{`, "failed to decode metadata"},
		{"no columns", `{"name":"t","columns":[]}`, "has no columns"},
		{"unknown type", `{"name":"t","columns":[{"name":"a","type":"struct<x:int>"}]}`, "unsupported column type"},
		{"duplicate", `{"name":"t","columns":[{"name":"a","type":"string"},{"name":"a","type":"int64"}]}`, "duplicate column"},
		{"format on string", `{"name":"t","columns":[{"name":"a","type":"string","datetime_format":"%Y"}]}`, "only valid for timestamp"},
		{"bad directive", `{"name":"t","columns":[{"name":"a","type":"timestamp(s)","datetime_format":"%Q"}]}`, "unexpected format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCurator_Schema_ParseType(t *testing.T) {
	t.Parallel()

	cases := map[string]Type{
		"string":           TypeString,
		"character":        TypeString,
		"int8":             TypeInteger,
		"INT64":            TypeInteger,
		"uint32":           TypeInteger,
		"float32":          TypeFloat,
		"decimal128(38,2)": TypeFloat,
		"bool":             TypeBoolean,
		"boolean":          TypeBoolean,
		"timestamp(s)":     TypeTimestamp,
		"timestamp(ms)":    TypeTimestamp,
		"date64":           TypeTimestamp,
	}
	for in, want := range cases {
		got, err := ParseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestCurator_Schema_New(t *testing.T) {
	t.Parallel()

	t.Run("timestamp requires format", func(t *testing.T) {
		_, err := New("t", Column{Name: "ts", Type: TypeTimestamp})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "datetime_format is required")
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := New("t", Column{Type: TypeString})
		require.EqualError(t, err, "column name is required")
	})

	t.Run("invalid type", func(t *testing.T) {
		_, err := New("t", Column{Name: "a"})
		require.Error(t, err)
	})

	t.Run("columns are copied", func(t *testing.T) {
		s := MustNew("t", Column{Name: "a", Type: TypeString})
		cols := s.Columns()
		cols[0].Name = "mutated"
		assert.Equal(t, []string{"a"}, s.Names())
	})
}

func TestCurator_Schema_WithColumn(t *testing.T) {
	t.Parallel()

	base := MustNew("people",
		Column{Name: "id", Type: TypeInteger},
		Column{Name: "name", Type: TypeString},
	)

	t.Run("append", func(t *testing.T) {
		ext, err := base.WithColumn(Column{Name: "ts", Type: TypeTimestamp, DatetimeFormat: "%Y-%m-%d"})
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name", "ts"}, ext.Names())
		assert.Equal(t, []string{"id", "name"}, base.Names(), "base schema is unchanged")
		assert.Equal(t, "people", ext.Name())
	})

	t.Run("replace keeps position", func(t *testing.T) {
		ext, err := base.WithColumn(Column{Name: "id", Type: TypeString})
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, ext.Names())
		c, _ := ext.Column("id")
		assert.Equal(t, TypeString, c.Type)
		orig, _ := base.Column("id")
		assert.Equal(t, TypeInteger, orig.Type)
	})

	t.Run("invalid column rejected", func(t *testing.T) {
		_, err := base.WithColumns(Column{Name: "ts", Type: TypeTimestamp})
		require.Error(t, err)
	})
}

func TestCurator_Schema_Equal(t *testing.T) {
	t.Parallel()

	a := MustNew("a", Column{Name: "id", Type: TypeInteger}, Column{Name: "ts", Type: TypeTimestamp, DatetimeFormat: "%Y"})
	b := MustNew("b", Column{Name: "id", Type: TypeInteger}, Column{Name: "ts", Type: TypeTimestamp, DatetimeFormat: "%Y"})
	c := MustNew("c", Column{Name: "ts", Type: TypeTimestamp, DatetimeFormat: "%Y"}, Column{Name: "id", Type: TypeInteger})
	d := MustNew("d", Column{Name: "id", Type: TypeFloat}, Column{Name: "ts", Type: TypeTimestamp, DatetimeFormat: "%Y"})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c), "order matters")
	assert.False(t, a.Equal(d), "types matter")
	assert.False(t, a.Equal(nil))
}

func TestCurator_Schema_MarshalRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(peopleMetadata))
	require.NoError(t, err)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	back, err := Parse(data)
	require.NoError(t, err)
	assert.True(t, s.Equal(back))
	assert.Equal(t, s.Description(), back.Description())
}

func TestCurator_Schema_Datetime(t *testing.T) {
	t.Parallel()

	t.Run("valid formats", func(t *testing.T) {
		for _, in := range []string{
			"%Y-%m-%d",
			"%Y-%m-%dT%H:%M:%S",
			"%d/%m/%y %I:%M %p",
			"%d %B %Y",
			"%a %b %d %Y",
			"%H:%M:%S.%f",
			"%Y%%",
			"%F %T",
			"%Y-%j",
			"%Y Jan",
		} {
			assert.NoError(t, CheckDatetimeFormat(in), in)
		}
	})

	t.Run("invalid formats", func(t *testing.T) {
		for _, in := range []string{"", "%Y-%", "%Q"} {
			assert.Error(t, CheckDatetimeFormat(in), in)
		}
	})

	t.Run("parse", func(t *testing.T) {
		got, err := ParseDatetime("2021-03-04T05:06:07.123456", "%Y-%m-%dT%H:%M:%S.%f")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2021, 3, 4, 5, 6, 7, 123456000, time.UTC), got)

		got, err = ParseDatetime("2021-1-5", "%Y-%m-%d")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC), got)

		_, err = ParseDatetime("2021-13-40", "%Y-%m-%d")
		assert.Error(t, err)
		_, err = ParseDatetime("2021-01-01 trailing", "%Y-%m-%d")
		assert.Error(t, err)
	})

	t.Run("format", func(t *testing.T) {
		ts := time.Date(2023, 11, 14, 22, 13, 20, 0, time.FixedZone("x", 3600))
		assert.Equal(t, "2023-11-14T21:13:20", FormatDatetime(ts, DefaultDatetimeFormat))
	})
}

func TestCurator_Schema_Types(t *testing.T) {
	t.Parallel()

	for _, tt := range []Type{TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeTimestamp} {
		assert.True(t, tt.Valid())
		assert.NotEmpty(t, tt.AthenaType())
		assert.NotEmpty(t, tt.ClickHouseType())
		assert.NotContains(t, tt.String(), "Type(")
	}
	assert.False(t, Type(0).Valid())
	assert.Equal(t, "Type(9)", Type(9).String())
	assert.Equal(t, "bigint", TypeInteger.AthenaType())
}

func TestCurator_Schema_StoreSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMockStore()
	require.NoError(t, store.Put(ctx, "s3://meta/metadata/people.json", []byte(peopleMetadata)))
	require.NoError(t, store.Put(ctx, "s3://meta/metadata/PEOPLE_EXTRA.json", []byte(peopleMetadata)))
	require.NoError(t, store.Put(ctx, "s3://meta/metadata/readme.txt", []byte("ignored")))
	require.NoError(t, store.Put(ctx, "s3://meta/metadata/broken.json", []byte("{")))

	src := &StoreSource{Store: store, Folder: "s3://meta/metadata"}

	t.Run("get", func(t *testing.T) {
		s, err := src.Get(ctx, "people")
		require.NoError(t, err)
		assert.Equal(t, 6, s.Len())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := src.Get(ctx, "nope")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownTable))
	})

	t.Run("broken", func(t *testing.T) {
		_, err := src.Get(ctx, "broken")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse metadata for broken")
	})

	t.Run("tables", func(t *testing.T) {
		tables, err := src.Tables(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"PEOPLE_EXTRA", "broken", "people"}, tables)

		tables, err = src.Tables(ctx, "PEOPLE_")
		require.NoError(t, err)
		assert.Equal(t, []string{"PEOPLE_EXTRA"}, tables)
	})

	t.Run("map source", func(t *testing.T) {
		m := MapSource{"people": MustNew("people", Column{Name: "id", Type: TypeInteger})}
		s, err := m.Get(ctx, "people")
		require.NoError(t, err)
		assert.Equal(t, "people", s.Name())
		_, err = m.Get(ctx, "other")
		assert.True(t, errors.Is(err, ErrUnknownTable))
	})
}
