package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/malbeclabs/curate/curator/pkg/schema"
)

// ErrUnknownEntityKey is returned by ApplySCD2 when the entity key column is
// not part of the batch schema.
var ErrUnknownEntityKey = errors.New("entity key column not found")

// InvalidFormatError reports a timestamp value that does not match the
// column's datetime format.
type InvalidFormatError struct {
	Column string
	Row    int
	Value  any
	Format string
	Err    error
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("column %q row %d: value %q does not match datetime format %q", e.Column, e.Row, fmt.Sprint(e.Value), e.Format)
}

func (e *InvalidFormatError) Unwrap() error { return e.Err }

// TypeCoercionError reports a value that cannot be coerced to the column's
// declared type.
type TypeCoercionError struct {
	Column string
	Row    int
	Value  any
	Type   schema.Type
	Err    error
}

func (e *TypeCoercionError) Error() string {
	return fmt.Sprintf("column %q row %d: cannot coerce %v (%T) to %s", e.Column, e.Row, e.Value, e.Value, e.Type)
}

func (e *TypeCoercionError) Unwrap() error { return e.Err }

// SchemaMismatchError reports versioner input batches whose schemas disagree
// with the first batch.
type SchemaMismatchError struct {
	Batch    int
	Expected []string
	Got      []string
	Reason   string
}

func (e *SchemaMismatchError) Error() string {
	msg := fmt.Sprintf("batch %d schema mismatch: %s", e.Batch, e.Reason)
	if e.Expected != nil || e.Got != nil {
		msg += fmt.Sprintf(" (expected [%s], got [%s])", strings.Join(e.Expected, ", "), strings.Join(e.Got, ", "))
	}
	return msg
}

// NullEntityKeyError reports a row whose entity key is null.
type NullEntityKeyError struct {
	Key   string
	Batch int
	Row   int
}

func (e *NullEntityKeyError) Error() string {
	return fmt.Sprintf("batch %d row %d: entity key %q is null", e.Batch, e.Row, e.Key)
}

// IsDataError reports whether err is caused by the contents of a batch rather
// than by the caller or the environment.
func IsDataError(err error) bool {
	var ife *InvalidFormatError
	var tce *TypeCoercionError
	var nke *NullEntityKeyError
	return errors.As(err, &ife) || errors.As(err, &tce) || errors.As(err, &nke)
}
