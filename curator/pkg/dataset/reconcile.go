package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/curate/curator/pkg/schema"
)

var (
	errNotIntegral = errors.New("value is not integral")
	errNotFinite   = errors.New("value is not finite")
)

// Reconcile returns a batch that conforms to s: one column per schema column, in
// schema order, with every value coerced to the declared type. Columns missing
// from b are filled with the type's absent value ("" for strings, nil otherwise).
// Columns not in s are dropped. The first value that cannot be coerced fails the
// whole call with an *InvalidFormatError or *TypeCoercionError.
func Reconcile(b *Batch, s *schema.Schema) (*Batch, error) {
	if s == nil {
		return nil, errors.New("schema is required")
	}
	if b == nil {
		return nil, errors.New("batch is required")
	}
	out := &Batch{
		names:  s.Names(),
		cols:   make([][]any, s.Len()),
		index:  make(map[string]int, s.Len()),
		rows:   b.rows,
		schema: s,
	}
	for i, col := range s.Columns() {
		out.index[col.Name] = i
		src, ok := b.index[col.Name]
		if !ok {
			out.cols[i] = absentColumn(col.Type, b.rows)
			continue
		}
		values, err := coerceColumn(col, b.cols[src])
		if err != nil {
			return nil, err
		}
		out.cols[i] = values
	}
	return out, nil
}

func absentColumn(t schema.Type, rows int) []any {
	values := make([]any, rows)
	if t == schema.TypeString {
		for i := range values {
			values[i] = ""
		}
	}
	return values
}

func coerceColumn(col schema.Column, in []any) ([]any, error) {
	out := make([]any, len(in))
	for row, v := range in {
		if isNull(v, col.Type) {
			continue
		}
		var (
			cv  any
			err error
		)
		switch col.Type {
		case schema.TypeString:
			cv = toString(v)
		case schema.TypeInteger:
			cv, err = toInt64(v)
		case schema.TypeFloat:
			cv, err = toFloat64(v)
		case schema.TypeBoolean:
			cv, err = toBool(v)
		case schema.TypeTimestamp:
			cv, err = toTime(v, col.DatetimeFormat)
			if err != nil {
				return nil, &InvalidFormatError{Column: col.Name, Row: row, Value: v, Format: col.DatetimeFormat, Err: err}
			}
		default:
			return nil, fmt.Errorf("column %q: unsupported type %s", col.Name, col.Type)
		}
		if err != nil {
			return nil, &TypeCoercionError{Column: col.Name, Row: row, Value: v, Type: col.Type, Err: err}
		}
		if f, ok := cv.(float64); ok && math.IsNaN(f) {
			continue
		}
		out[row] = cv
	}
	return out, nil
}

// isNull treats nil, NaN floats and, for non-string columns, blank strings as
// missing values.
func isNull(v any, t schema.Type) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	case string:
		return t != schema.TypeString && strings.TrimSpace(x) == ""
	case *string:
		return x == nil
	}
	return false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case *string:
		return *x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, strconv.ErrRange
		}
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, strconv.ErrRange
		}
		return int64(x), nil
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

func floatToInt64(f float64) (int64, error) {
	if math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errNotIntegral
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, strconv.ErrRange
	}
	return int64(f), nil
}

// toFloat64 rejects infinities. A parsed NaN ("nan") is returned as is and
// stored as null.
func toFloat64(v any) (float64, error) {
	f, err := anyToFloat64(v)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

func anyToFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		i, err := toInt64(x)
		if err != nil {
			return 0, err
		}
		return float64(i), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return parseBool(x)
	case []byte:
		return parseBool(string(x))
	case float32, float64:
		f, _ := anyToFloat64(x)
		return intToBool(f)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		i, err := toInt64(x)
		if err != nil {
			return false, err
		}
		return intToBool(float64(i))
	}
	return false, fmt.Errorf("unsupported value type %T", v)
}

func intToBool(f float64) (bool, error) {
	switch f {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.New("numeric booleans must be 0 or 1")
}

func parseBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func toTime(v any, format string) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		return t, nil
	}
	return schema.ParseDatetime(strings.TrimSpace(toString(v)), format)
}
