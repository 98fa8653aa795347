// Package catalog registers curated tables and their run history in ClickHouse.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/curate/curator/pkg/clickhouse"
	"github.com/malbeclabs/curate/curator/pkg/schema"
)

// ErrTableNotFound is returned when the catalog has no entry for a table.
var ErrTableNotFound = errors.New("table not found in catalog")

const catalogTable = "catalog_tables"

type Column struct {
	Name        string
	Type        string
	Description string
}

// Table is a catalog entry pointing at curated data in object storage.
type Table struct {
	Database      string
	Name          string
	Location      string
	Description   string
	Columns       []Column
	PartitionKeys []string
	Parameters    map[string]string
	RunID         string
	RegisteredAt  time.Time
}

// TableFromSchema builds a catalog entry whose columns follow s.
func TableFromSchema(database, name, location string, s *schema.Schema, partitionKeys ...string) Table {
	t := Table{
		Database:      database,
		Name:          name,
		Location:      location,
		Description:   s.Description(),
		PartitionKeys: partitionKeys,
		Parameters:    map[string]string{"classification": "parquet"},
	}
	for _, c := range s.Columns() {
		t.Columns = append(t.Columns, Column{Name: c.Name, Type: c.Type.AthenaType(), Description: c.Description})
	}
	return t
}

type Config struct {
	Logger     *slog.Logger
	ClickHouse clickhouse.Client
	Clock      clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse client is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Catalog is a ClickHouse-backed table catalog.
type Catalog struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Catalog{log: cfg.Logger, cfg: cfg}, nil
}

// Register creates or overwrites the entry for (t.Database, t.Name).
func (c *Catalog) Register(ctx context.Context, t Table) error {
	if t.Database == "" || t.Name == "" {
		return errors.New("database and table name are required")
	}
	if t.Location == "" {
		return fmt.Errorf("location is required for %s.%s", t.Database, t.Name)
	}
	if t.RegisteredAt.IsZero() {
		t.RegisteredAt = c.cfg.Clock.Now().UTC()
	}

	conn, err := c.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}

	names := make([]string, len(t.Columns))
	types := make([]string, len(t.Columns))
	descriptions := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i], types[i], descriptions[i] = col.Name, col.Type, col.Description
	}
	params := maps.Clone(t.Parameters)
	if params == nil {
		params = map[string]string{}
	}
	partitionKeys := t.PartitionKeys
	if partitionKeys == nil {
		partitionKeys = []string{}
	}

	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", catalogTable))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	if err := batch.Append(
		t.Database,
		t.Name,
		t.Location,
		t.Description,
		names,
		types,
		descriptions,
		partitionKeys,
		params,
		t.RunID,
		t.RegisteredAt,
	); err != nil {
		batch.Close()
		return fmt.Errorf("failed to append catalog entry: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to register %s.%s: %w", t.Database, t.Name, err)
	}

	c.log.Info("catalog: table registered", "database", t.Database, "table", t.Name, "location", t.Location, "columns", len(t.Columns))
	return nil
}

// Get returns the latest entry for a table.
func (c *Catalog) Get(ctx context.Context, database, name string) (*Table, error) {
	conn, err := c.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT location, description, column_names, column_types, column_descriptions,
		       partition_keys, parameters, run_id, registered_at
		FROM %s FINAL
		WHERE database = ? AND name = ?
		ORDER BY registered_at DESC
		LIMIT 1
	`, catalogTable), database, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		return nil, fmt.Errorf("%w: %s.%s", ErrTableNotFound, database, name)
	}

	t := &Table{Database: database, Name: name}
	var names, types, descriptions []string
	if err := rows.Scan(&t.Location, &t.Description, &names, &types, &descriptions,
		&t.PartitionKeys, &t.Parameters, &t.RunID, &t.RegisteredAt); err != nil {
		return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
	}
	if len(types) != len(names) || len(descriptions) != len(names) {
		return nil, fmt.Errorf("catalog entry %s.%s has inconsistent columns", database, name)
	}
	for i := range names {
		t.Columns = append(t.Columns, Column{Name: names[i], Type: types[i], Description: descriptions[i]})
	}
	return t, nil
}

// Location returns the storage location registered for a table.
func (c *Catalog) Location(ctx context.Context, database, name string) (string, error) {
	t, err := c.Get(ctx, database, name)
	if err != nil {
		return "", err
	}
	return t.Location, nil
}
