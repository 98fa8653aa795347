package format

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/malbeclabs/curate/curator/pkg/dataset"
)

// DecodeCSV reads a CSV document with a header row. Values stay strings and
// empty cells become nil; typing is left to dataset.Reconcile.
func DecodeCSV(r io.Reader) (*dataset.Batch, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return dataset.NewBatch()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	names := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		names[i] = strings.TrimSpace(h)
	}
	cols := make([][]any, len(names))

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// csv.ParseError carries the line of ragged rows.
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		for i, v := range rec {
			if v == "" {
				cols[i] = append(cols[i], nil)
				continue
			}
			cols[i] = append(cols[i], v)
		}
	}

	columns := make([]dataset.Column, len(names))
	for i, n := range names {
		if cols[i] == nil {
			cols[i] = []any{}
		}
		columns[i] = dataset.Column{Name: n, Values: cols[i]}
	}
	b, err := dataset.NewBatch(columns...)
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	return b, nil
}
