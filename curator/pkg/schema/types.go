package schema

import (
	"fmt"
	"strings"
)

// Type is the logical type of a column. The set is closed: every switch over
// Type in this module handles all five variants.
type Type uint8

const (
	TypeString Type = iota + 1
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeTimestamp
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid reports whether t is one of the declared logical types.
func (t Type) Valid() bool {
	return t >= TypeString && t <= TypeTimestamp
}

// AthenaType returns the Glue/Athena column type used when registering a table.
func (t Type) AthenaType() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInteger:
		return "bigint"
	case TypeFloat:
		return "double"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	}
	return ""
}

// ClickHouseType returns the nullable ClickHouse column type for t.
func (t Type) ClickHouseType() string {
	switch t {
	case TypeString:
		return "Nullable(String)"
	case TypeInteger:
		return "Nullable(Int64)"
	case TypeFloat:
		return "Nullable(Float64)"
	case TypeBoolean:
		return "Nullable(Bool)"
	case TypeTimestamp:
		return "Nullable(DateTime64(3, 'UTC'))"
	}
	return ""
}

// ParseType maps a metadata type string onto a logical type. Metadata documents
// use arrow-style names ("int64", "timestamp(s)", "decimal128(38,2)").
func ParseType(s string) (Type, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "string", "character", "large_string", "utf8":
		return TypeString, nil
	case "integer", "int", "int8", "int16", "int32", "int64",
		"uint8", "uint16", "uint32", "uint64":
		return TypeInteger, nil
	case "float", "double", "float16", "float32", "float64":
		return TypeFloat, nil
	case "bool", "boolean", "bool_":
		return TypeBoolean, nil
	case "timestamp", "date32", "date64", "datetime":
		return TypeTimestamp, nil
	}
	switch {
	case strings.HasPrefix(norm, "timestamp("):
		return TypeTimestamp, nil
	case strings.HasPrefix(norm, "decimal"):
		return TypeFloat, nil
	}
	return 0, fmt.Errorf("unsupported column type %q", s)
}
