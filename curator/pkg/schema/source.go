package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/malbeclabs/curate/curator/pkg/storage"
)

// ErrUnknownTable is returned when no schema exists for a table.
var ErrUnknownTable = errors.New("unknown table")

// Source resolves the declared schema of a table.
type Source interface {
	Get(ctx context.Context, table string) (*Schema, error)
}

// StoreSource reads "<folder>/<table>.json" metadata documents from object storage.
type StoreSource struct {
	Store  storage.Store
	Folder string
}

func (s *StoreSource) Get(ctx context.Context, table string) (*Schema, error) {
	url := storage.JoinPath(s.Folder, table+".json")
	data, err := s.Store.Get(ctx, url)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
		}
		return nil, fmt.Errorf("failed to read metadata for %s: %w", table, err)
	}
	sch, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metadata for %s: %w", table, err)
	}
	return sch, nil
}

// Tables lists the tables that have a metadata document, optionally limited to
// names starting with prefix.
func (s *StoreSource) Tables(ctx context.Context, prefix string) ([]string, error) {
	objs, err := s.Store.List(ctx, storage.Folder(s.Folder))
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	var tables []string
	for _, o := range objs {
		name, ok := strings.CutSuffix(o.Name(), ".json")
		if !ok {
			continue
		}
		if prefix != "" && !strings.HasPrefix(strings.ToUpper(name), strings.ToUpper(prefix)) {
			continue
		}
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, nil
}

// MapSource serves schemas from memory.
type MapSource map[string]*Schema

func (m MapSource) Get(_ context.Context, table string) (*Schema, error) {
	s, ok := m[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return s, nil
}
