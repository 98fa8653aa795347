package schema

import (
	"fmt"
	"time"

	"github.com/itchyny/timefmt-go"
)

// DefaultDatetimeFormat is used by the lineage timestamp columns.
const DefaultDatetimeFormat = "%Y-%m-%dT%H:%M:%S"

var formatProbeTime = time.Date(2021, time.March, 14, 15, 9, 26, 535897000, time.UTC)

// CheckDatetimeFormat reports whether format is a usable strftime format: a
// value rendered with it must parse back with it.
func CheckDatetimeFormat(format string) error {
	if format == "" {
		return fmt.Errorf("datetime format is empty")
	}
	if _, err := timefmt.Parse(timefmt.Format(formatProbeTime, format), format); err != nil {
		return fmt.Errorf("datetime format %q: %w", format, err)
	}
	return nil
}

// ParseDatetime parses value with a strftime format. Numeric fields need not
// be zero padded ("2021-1-5" matches "%Y-%m-%d"). Values without a zone are UTC.
func ParseDatetime(value, format string) (time.Time, error) {
	return timefmt.Parse(value, format)
}

// FormatDatetime renders t in UTC with a strftime format.
func FormatDatetime(t time.Time, format string) string {
	return timefmt.Format(t.UTC(), format)
}
