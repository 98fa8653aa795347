package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Column describes one column of a table.
type Column struct {
	Name string
	Type Type
	// DatetimeFormat is a strftime format, required iff Type is TypeTimestamp.
	DatetimeFormat string
	Description    string
}

func (c Column) validate() (Column, error) {
	if c.Name == "" {
		return c, errors.New("column name is required")
	}
	if !c.Type.Valid() {
		return c, fmt.Errorf("column %q: invalid type %s", c.Name, c.Type)
	}
	if c.Type == TypeTimestamp {
		if c.DatetimeFormat == "" {
			return c, fmt.Errorf("column %q: datetime_format is required for timestamp columns", c.Name)
		}
		if err := CheckDatetimeFormat(c.DatetimeFormat); err != nil {
			return c, fmt.Errorf("column %q: %w", c.Name, err)
		}
	} else if c.DatetimeFormat != "" {
		return c, fmt.Errorf("column %q: datetime_format is only valid for timestamp columns", c.Name)
	}
	return c, nil
}

// Schema is an immutable, ordered set of uniquely named columns.
type Schema struct {
	name        string
	description string
	columns     []Column
	index       map[string]int
}

// New validates columns and builds a schema.
func New(name string, columns ...Column) (*Schema, error) {
	s := &Schema{
		name:    name,
		columns: make([]Column, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		vc, err := c.validate()
		if err != nil {
			return nil, err
		}
		if _, ok := s.index[vc.Name]; ok {
			return nil, fmt.Errorf("duplicate column %q", vc.Name)
		}
		s.index[vc.Name] = len(s.columns)
		s.columns = append(s.columns, vc)
	}
	return s, nil
}

// MustNew is New for statically known schemas.
func MustNew(name string, columns ...Column) *Schema {
	s, err := New(name, columns...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string        { return s.name }
func (s *Schema) Description() string { return s.description }
func (s *Schema) Len() int            { return len(s.columns) }

// Columns returns a copy of the column descriptors in schema order.
func (s *Schema) Columns() []Column {
	return slices.Clone(s.columns)
}

// Names returns the column names in schema order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (s *Schema) Column(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// WithColumn returns a new schema where c replaces the same-named column, or
// is appended when no such column exists. s is not modified.
func (s *Schema) WithColumn(c Column) (*Schema, error) {
	cols := slices.Clone(s.columns)
	if i, ok := s.index[c.Name]; ok {
		cols[i] = c
	} else {
		cols = append(cols, c)
	}
	ns, err := New(s.name, cols...)
	if err != nil {
		return nil, err
	}
	ns.description = s.description
	return ns, nil
}

// WithColumns applies WithColumn for each column in order.
func (s *Schema) WithColumns(cols ...Column) (*Schema, error) {
	out := s
	for _, c := range cols {
		var err error
		out, err = out.WithColumn(c)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Equal reports whether both schemas have the same column names, order,
// types and datetime formats. Names and descriptions are ignored.
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.columns) != len(o.columns) {
		return false
	}
	for i := range s.columns {
		a, b := s.columns[i], o.columns[i]
		if a.Name != b.Name || a.Type != b.Type || a.DatetimeFormat != b.DatetimeFormat {
			return false
		}
	}
	return true
}

type columnDoc struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	DatetimeFormat string `json:"datetime_format,omitempty"`
	Description    string `json:"description,omitempty"`
}

type schemaDoc struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Columns     []columnDoc `json:"columns"`
}

// Parse reads a metadata JSON document. Timestamp columns without a
// datetime_format get DefaultDatetimeFormat.
func Parse(data []byte) (*Schema, error) {
	var doc schemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if len(doc.Columns) == 0 {
		return nil, fmt.Errorf("metadata %q has no columns", doc.Name)
	}
	cols := make([]Column, 0, len(doc.Columns))
	for _, cd := range doc.Columns {
		t, err := ParseType(cd.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", cd.Name, err)
		}
		c := Column{
			Name:           cd.Name,
			Type:           t,
			DatetimeFormat: cd.DatetimeFormat,
			Description:    cd.Description,
		}
		if t == TypeTimestamp && c.DatetimeFormat == "" {
			c.DatetimeFormat = DefaultDatetimeFormat
		}
		cols = append(cols, c)
	}
	s, err := New(doc.Name, cols...)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata %q: %w", doc.Name, err)
	}
	s.description = doc.Description
	return s, nil
}

// MarshalJSON writes the schema back as a metadata document.
func (s *Schema) MarshalJSON() ([]byte, error) {
	doc := schemaDoc{Name: s.name, Description: s.description}
	for _, c := range s.columns {
		doc.Columns = append(doc.Columns, columnDoc{
			Name:           c.Name,
			Type:           c.Type.String(),
			DatetimeFormat: c.DatetimeFormat,
			Description:    c.Description,
		})
	}
	return json.Marshal(doc)
}
