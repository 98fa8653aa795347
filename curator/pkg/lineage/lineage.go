// Package lineage describes the audit columns stamped onto every curated row.
package lineage

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/malbeclabs/curate/curator/pkg/dataset"
	"github.com/malbeclabs/curate/curator/pkg/schema"
)

const (
	ColumnStartDatetime = "mojap_start_datetime"
	ColumnImageTag      = "mojap_image_tag"
	ColumnRawFilename   = "mojap_raw_filename"
	ColumnTaskTimestamp = "mojap_task_timestamp"
)

var columns = []schema.Column{
	{
		Name:           ColumnStartDatetime,
		Type:           schema.TypeTimestamp,
		DatetimeFormat: schema.DefaultDatetimeFormat,
		Description:    "extraction timestamp of the source data",
	},
	{
		Name:        ColumnImageTag,
		Type:        schema.TypeString,
		Description: "version of the image that curated the data",
	},
	{
		Name:        ColumnRawFilename,
		Type:        schema.TypeString,
		Description: "object key of the landed file the row came from",
	},
	{
		Name:           ColumnTaskTimestamp,
		Type:           schema.TypeTimestamp,
		DatetimeFormat: schema.DefaultDatetimeFormat,
		Description:    "time the curation task processed the row",
	},
}

// Columns returns the lineage descriptors in the order they are appended.
func Columns() []schema.Column {
	return slices.Clone(columns)
}

// Schema returns base extended with the lineage columns. base is not modified.
func Schema(base *schema.Schema) (*schema.Schema, error) {
	s, err := base.WithColumns(columns...)
	if err != nil {
		return nil, fmt.Errorf("failed to add lineage columns to %s: %w", base.Name(), err)
	}
	return s, nil
}

// Stamp holds the lineage values for one landed file.
type Stamp struct {
	StartDatetime time.Time
	ImageTag      string
	RawFilename   string
	TaskTimestamp time.Time
}

func (s Stamp) Validate() error {
	if s.StartDatetime.IsZero() {
		return errors.New("start datetime is required")
	}
	if s.ImageTag == "" {
		return errors.New("image tag is required")
	}
	if s.RawFilename == "" {
		return errors.New("raw filename is required")
	}
	if s.TaskTimestamp.IsZero() {
		return errors.New("task timestamp is required")
	}
	return nil
}

// Apply returns a new batch with the lineage columns set on every row,
// overwriting same-named input columns. Timestamps are truncated to seconds to
// match the lineage datetime format.
func Apply(b *dataset.Batch, stamp Stamp) (*dataset.Batch, error) {
	if err := stamp.Validate(); err != nil {
		return nil, err
	}
	values := map[string]any{
		ColumnStartDatetime: stamp.StartDatetime.UTC().Truncate(time.Second),
		ColumnImageTag:      stamp.ImageTag,
		ColumnRawFilename:   stamp.RawFilename,
		ColumnTaskTimestamp: stamp.TaskTimestamp.UTC().Truncate(time.Second),
	}
	out := b
	for _, c := range columns {
		col := make([]any, b.Rows())
		for i := range col {
			col[i] = values[c.Name]
		}
		var err error
		out, err = out.WithColumn(dataset.Column{Name: c.Name, Values: col})
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", c.Name, err)
		}
	}
	return out, nil
}

// PartitionValue renders a start datetime the way it appears in curated
// partition paths.
func PartitionValue(t time.Time) string {
	return schema.FormatDatetime(t, schema.DefaultDatetimeFormat)
}
