package dataset

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/malbeclabs/curate/curator/pkg/schema"
)

// Column is a named sequence of values. Values produced by Reconcile are one of
// string, int64, float64, bool, time.Time or nil; decoders may hand in other
// scalar kinds which Reconcile normalizes.
type Column struct {
	Name   string
	Values []any
}

// Batch is an immutable table of equal-length named columns. Transformations
// return new batches.
type Batch struct {
	names  []string
	cols   [][]any
	index  map[string]int
	rows   int
	schema *schema.Schema
}

// NewBatch builds a batch from columns. Column values are copied.
func NewBatch(columns ...Column) (*Batch, error) {
	b := &Batch{
		names: make([]string, 0, len(columns)),
		cols:  make([][]any, 0, len(columns)),
		index: make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if c.Name == "" {
			return nil, errors.New("column name is required")
		}
		if _, ok := b.index[c.Name]; ok {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		if i == 0 {
			b.rows = len(c.Values)
		} else if len(c.Values) != b.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, len(c.Values), b.rows)
		}
		b.index[c.Name] = len(b.names)
		b.names = append(b.names, c.Name)
		b.cols = append(b.cols, slices.Clone(c.Values))
	}
	return b, nil
}

// MustNewBatch is NewBatch for literal test data.
func MustNewBatch(columns ...Column) *Batch {
	b, err := NewBatch(columns...)
	if err != nil {
		panic(err)
	}
	return b
}

// Rows returns the number of rows.
func (b *Batch) Rows() int { return b.rows }

// Len returns the number of columns.
func (b *Batch) Len() int { return len(b.names) }

// Names returns the column names in order.
func (b *Batch) Names() []string { return slices.Clone(b.names) }

// Schema returns the schema the batch was reconciled against, or nil for a
// batch that has not been through Reconcile.
func (b *Batch) Schema() *schema.Schema { return b.schema }

// Has reports whether the batch has a column called name.
func (b *Batch) Has(name string) bool {
	_, ok := b.index[name]
	return ok
}

// Column returns a copy of the named column's values.
func (b *Batch) Column(name string) ([]any, bool) {
	i, ok := b.index[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(b.cols[i]), true
}

// Value returns a single cell. It panics if the column or row does not exist.
func (b *Batch) Value(name string, row int) any {
	i, ok := b.index[name]
	if !ok {
		panic(fmt.Sprintf("dataset: no column %q", name))
	}
	return b.cols[i][row]
}

// Row returns the values of row i in column order.
func (b *Batch) Row(i int) []any {
	row := make([]any, len(b.cols))
	for c := range b.cols {
		row[c] = b.cols[c][i]
	}
	return row
}

// WithColumn returns a new batch with c replacing the same-named column, or
// appended when absent. The result is no longer considered reconciled.
func (b *Batch) WithColumn(c Column) (*Batch, error) {
	if c.Name == "" {
		return nil, errors.New("column name is required")
	}
	if len(b.names) > 0 && len(c.Values) != b.rows {
		return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, len(c.Values), b.rows)
	}
	cols := make([]Column, 0, len(b.names)+1)
	replaced := false
	for i, name := range b.names {
		if name == c.Name {
			cols = append(cols, c)
			replaced = true
			continue
		}
		cols = append(cols, Column{Name: name, Values: b.cols[i]})
	}
	if !replaced {
		cols = append(cols, c)
	}
	return NewBatch(cols...)
}

// Equal reports whether both batches have the same columns in the same order
// holding equal values. Timestamps compare by instant.
func (b *Batch) Equal(o *Batch) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.rows != o.rows || !slices.Equal(b.names, o.names) {
		return false
	}
	for c := range b.cols {
		for r := range b.cols[c] {
			if !valuesEqual(b.cols[c][r], o.cols[c][r]) {
				return false
			}
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

// compareValues orders two non-nil values of the same reconciled type.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		return cmpOrdered(av, b.(string))
	case int64:
		return cmpOrdered(av, b.(int64))
	case float64:
		return cmpOrdered(av, b.(float64))
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case time.Time:
		return av.Compare(b.(time.Time))
	}
	return cmpOrdered(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpOrdered[T string | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
