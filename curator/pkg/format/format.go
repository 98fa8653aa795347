// Package format decodes landed files into batches and encodes curated batches
// as Parquet.
package format

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/malbeclabs/curate/curator/pkg/dataset"
)

// ErrUnsupportedFormat is returned for files whose extension is not recognised.
var ErrUnsupportedFormat = errors.New("unsupported file format")

type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// Detect picks a format from the file extension of key.
func Detect(key string) (Format, error) {
	switch ext := strings.ToLower(path.Ext(key)); ext {
	case ".csv":
		return FormatCSV, nil
	case ".parquet", ".parq", ".pq":
		return FormatParquet, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, key)
}

// Decode parses data in the given format.
func Decode(ctx context.Context, f Format, data []byte) (*dataset.Batch, error) {
	switch f {
	case FormatCSV:
		return DecodeCSV(bytes.NewReader(data))
	case FormatParquet:
		return DecodeParquet(ctx, data)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
}

// Stem returns the file name of key without directories and without its
// final extension ("land/people/part1.snappy.parquet" -> "part1.snappy").
func Stem(key string) string {
	name := path.Base(key)
	if ext := path.Ext(name); ext != name {
		return strings.TrimSuffix(name, ext)
	}
	return name
}
