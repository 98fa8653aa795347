package format

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/xitongsys/parquet-go-source/local"
	pqparquet "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/malbeclabs/curate/curator/pkg/dataset"
	"github.com/malbeclabs/curate/curator/pkg/schema"
)

// DecodeParquet reads a Parquet file into a batch. Integers widen to int64,
// floats to float64, and timestamps and dates become UTC time.Time values.
func DecodeParquet(ctx context.Context, data []byte) (*dataset.Batch, error) {
	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, bytes.NewReader(data), parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet: %w", err)
	}
	defer tbl.Release()

	columns := make([]dataset.Column, 0, tbl.NumCols())
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)
		values := make([]any, 0, tbl.NumRows())
		for _, chunk := range col.Data().Chunks() {
			values = appendArrowValues(values, chunk)
		}
		columns = append(columns, dataset.Column{Name: col.Name(), Values: values})
	}
	b, err := dataset.NewBatch(columns...)
	if err != nil {
		return nil, fmt.Errorf("invalid parquet columns: %w", err)
	}
	return b, nil
}

func appendArrowValues(out []any, arr arrow.Array) []any {
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			out = append(out, nil)
			continue
		}
		switch a := arr.(type) {
		case *array.String:
			out = append(out, a.Value(i))
		case *array.LargeString:
			out = append(out, a.Value(i))
		case *array.Binary:
			out = append(out, string(a.Value(i)))
		case *array.Boolean:
			out = append(out, a.Value(i))
		case *array.Int8:
			out = append(out, int64(a.Value(i)))
		case *array.Int16:
			out = append(out, int64(a.Value(i)))
		case *array.Int32:
			out = append(out, int64(a.Value(i)))
		case *array.Int64:
			out = append(out, a.Value(i))
		case *array.Uint8:
			out = append(out, int64(a.Value(i)))
		case *array.Uint16:
			out = append(out, int64(a.Value(i)))
		case *array.Uint32:
			out = append(out, int64(a.Value(i)))
		case *array.Uint64:
			out = append(out, a.Value(i))
		case *array.Float32:
			out = append(out, float64(a.Value(i)))
		case *array.Float64:
			out = append(out, a.Value(i))
		case *array.Timestamp:
			unit := a.DataType().(*arrow.TimestampType).Unit
			out = append(out, a.Value(i).ToTime(unit).UTC())
		case *array.Date32:
			out = append(out, a.Value(i).ToTime().UTC())
		case *array.Date64:
			out = append(out, a.Value(i).ToTime().UTC())
		default:
			out = append(out, arr.ValueStr(i))
		}
	}
	return out
}

// parquetField returns the writer schema tag for a column.
func parquetField(c schema.Column) (string, error) {
	var typ string
	switch c.Type {
	case schema.TypeString:
		typ = "type=BYTE_ARRAY, convertedtype=UTF8"
	case schema.TypeInteger:
		typ = "type=INT64"
	case schema.TypeFloat:
		typ = "type=DOUBLE"
	case schema.TypeBoolean:
		typ = "type=BOOLEAN"
	case schema.TypeTimestamp:
		typ = "type=INT64, convertedtype=TIMESTAMP_MILLIS"
	default:
		return "", fmt.Errorf("column %q: unsupported type %s", c.Name, c.Type)
	}
	return fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", c.Name, typ), nil
}

type jsonField struct {
	Tag    string      `json:"Tag"`
	Fields []jsonField `json:"Fields,omitempty"`
}

func writerSchema(s *schema.Schema) (string, error) {
	root := jsonField{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for _, c := range s.Columns() {
		tag, err := parquetField(c)
		if err != nil {
			return "", err
		}
		root.Fields = append(root.Fields, jsonField{Tag: tag})
	}
	out, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("failed to encode parquet schema: %w", err)
	}
	return string(out), nil
}

// EncodeParquet writes b as a SNAPPY-compressed Parquet file typed by b's
// schema. b must have been reconciled.
func EncodeParquet(b *dataset.Batch) ([]byte, error) {
	s := b.Schema()
	if s == nil {
		return nil, fmt.Errorf("batch must be reconciled before encoding")
	}
	jsonSchema, err := writerSchema(s)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "curated-*.parquet")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	fw, err := local.NewLocalFileWriter(tmpName)
	if err != nil {
		return nil, fmt.Errorf("failed to create local file writer: %w", err)
	}
	pw, err := writer.NewJSONWriter(jsonSchema, fw, 4)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = pqparquet.CompressionCodec_SNAPPY

	names := s.Names()
	for r := 0; r < b.Rows(); r++ {
		rec := make(map[string]any, len(names))
		for c, v := range b.Row(r) {
			if t, ok := v.(time.Time); ok {
				v = t.UnixMilli()
			}
			rec[names[c]] = v
		}
		line, err := json.Marshal(rec)
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to encode row %d: %w", r, err)
		}
		if err := pw.Write(string(line)); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to finalize parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet file: %w", err)
	}
	return os.ReadFile(tmpName)
}
