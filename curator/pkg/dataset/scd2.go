package dataset

import (
	"fmt"
	"slices"
	"time"

	"github.com/malbeclabs/curate/curator/pkg/schema"
)

// Bookkeeping columns appended by History.ToBatch.
const (
	ColumnRowID     = "row_id"
	ColumnValidFrom = "valid_from"
	ColumnIsCurrent = "is_current"
)

// VersionedBatch is a reconciled batch together with the instant its rows
// became valid.
type VersionedBatch struct {
	Batch     *Batch
	ValidFrom time.Time
}

// HistoryRecord is one versioned row of an entity.
type HistoryRecord struct {
	EntityKey any
	RowID     int64
	ValidFrom time.Time
	IsCurrent bool
	// Values holds the business columns in History.Schema order.
	Values []any
}

// History is the versioned output of ApplySCD2.
type History struct {
	Schema  *schema.Schema
	Key     string
	Records []HistoryRecord
}

type versionedRow struct {
	key       any
	validFrom time.Time
	batch     int
	row       int
}

// ApplySCD2 merges batches into a slowly changing dimension history keyed by
// the key column. Batches must be in arrival order and reconciled against the
// same schema; the first batch is the reference and any disagreement fails with
// a *SchemaMismatchError before rows are merged.
//
// Rows are ordered by (key, valid from, batch position, row position). row_id
// is assigned 1..n in that order and the last row of every key is current.
func ApplySCD2(batches []VersionedBatch, key string) (*History, error) {
	h := &History{Key: key}
	if len(batches) == 0 {
		return h, nil
	}

	for i, vb := range batches {
		if vb.Batch == nil {
			return nil, fmt.Errorf("batch %d is nil", i)
		}
	}

	ref := batches[0].Batch.Schema()
	if ref == nil {
		return nil, &SchemaMismatchError{Batch: 0, Reason: "batch has not been reconciled"}
	}
	for i, vb := range batches[1:] {
		s := vb.Batch.Schema()
		if s == nil {
			return nil, &SchemaMismatchError{Batch: i + 1, Reason: "batch has not been reconciled"}
		}
		if !s.Equal(ref) {
			return nil, &SchemaMismatchError{
				Batch:    i + 1,
				Expected: describeSchema(ref),
				Got:      describeSchema(s),
				Reason:   "columns differ from the first batch",
			}
		}
	}
	if _, ok := ref.Column(key); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntityKey, key)
	}
	h.Schema = ref

	var total int
	for _, vb := range batches {
		total += vb.Batch.Rows()
	}
	rows := make([]versionedRow, 0, total)
	for bi, vb := range batches {
		keys := vb.Batch.cols[vb.Batch.index[key]]
		for ri, k := range keys {
			if k == nil {
				return nil, &NullEntityKeyError{Key: key, Batch: bi, Row: ri}
			}
			rows = append(rows, versionedRow{key: k, validFrom: vb.ValidFrom, batch: bi, row: ri})
		}
	}

	slices.SortStableFunc(rows, func(a, b versionedRow) int {
		if c := compareValues(a.key, b.key); c != 0 {
			return c
		}
		if c := a.validFrom.Compare(b.validFrom); c != 0 {
			return c
		}
		return a.batch - b.batch
	})

	h.Records = make([]HistoryRecord, len(rows))
	for i, r := range rows {
		current := i == len(rows)-1 || compareValues(r.key, rows[i+1].key) != 0
		h.Records[i] = HistoryRecord{
			EntityKey: r.key,
			RowID:     int64(i + 1),
			ValidFrom: r.validFrom,
			IsCurrent: current,
			Values:    batches[r.batch].Batch.Row(r.row),
		}
	}
	return h, nil
}

func describeSchema(s *schema.Schema) []string {
	cols := s.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name + ":" + c.Type.String()
		if c.DatetimeFormat != "" {
			out[i] += "(" + c.DatetimeFormat + ")"
		}
	}
	return out
}

// Current returns the records flagged as current, in history order.
func (h *History) Current() []HistoryRecord {
	var out []HistoryRecord
	for _, r := range h.Records {
		if r.IsCurrent {
			out = append(out, r)
		}
	}
	return out
}

// OutputSchema is the history schema followed by the bookkeeping columns.
func (h *History) OutputSchema() (*schema.Schema, error) {
	bookkeeping := []schema.Column{
		{Name: ColumnRowID, Type: schema.TypeInteger, Description: "sequence number assigned at versioning time"},
		{Name: ColumnValidFrom, Type: schema.TypeTimestamp, DatetimeFormat: schema.DefaultDatetimeFormat, Description: "start of validity of the row"},
		{Name: ColumnIsCurrent, Type: schema.TypeBoolean, Description: "true for the latest row of each entity"},
	}
	if h.Schema == nil {
		return schema.New("history", bookkeeping...)
	}
	for _, c := range bookkeeping {
		if _, ok := h.Schema.Column(c.Name); ok {
			return nil, fmt.Errorf("history column %q conflicts with a business column", c.Name)
		}
	}
	return h.Schema.WithColumns(bookkeeping...)
}

// ToBatch flattens the history into a reconciled batch of the business columns
// followed by row_id, valid_from and is_current.
func (h *History) ToBatch() (*Batch, error) {
	out, err := h.OutputSchema()
	if err != nil {
		return nil, err
	}
	names := out.Names()
	b := &Batch{
		names:  names,
		cols:   make([][]any, len(names)),
		index:  make(map[string]int, len(names)),
		rows:   len(h.Records),
		schema: out,
	}
	for i, n := range names {
		b.index[n] = i
		b.cols[i] = make([]any, len(h.Records))
	}
	business := len(names) - 3
	for r, rec := range h.Records {
		for c := 0; c < business; c++ {
			b.cols[c][r] = rec.Values[c]
		}
		b.cols[business][r] = rec.RowID
		b.cols[business+1][r] = rec.ValidFrom
		b.cols[business+2][r] = rec.IsCurrent
	}
	return b, nil
}
