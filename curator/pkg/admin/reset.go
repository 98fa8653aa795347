// Package admin holds maintenance operations run from the curator-admin
// command.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/malbeclabs/curate/curator/pkg/catalog"
	"github.com/malbeclabs/curate/curator/pkg/clickhouse"
)

// HistoryTables lists the SCD2 history tables in database.
func HistoryTables(ctx context.Context, conn clickhouse.Connection, database string) ([]string, error) {
	rows, err := conn.Query(ctx,
		"SELECT name FROM system.tables WHERE database = ? AND startsWith(name, ?) ORDER BY name",
		database, catalog.HistoryTablePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list history tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history tables: %w", err)
	}
	return tables, nil
}

// ResetHistory drops every history table in database and clears the run log.
// The catalog itself is kept. With dryRun nothing is dropped and the tables
// that would be are returned.
func ResetHistory(ctx context.Context, log *slog.Logger, conn clickhouse.Connection, database string, dryRun bool) ([]string, error) {
	tables, err := HistoryTables(ctx, conn, database)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		log.Info("admin: no history tables found", "database", database)
	}

	for _, t := range tables {
		if dryRun {
			log.Info("admin: would drop table", "table", t)
			continue
		}
		q := fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", clickhouse.QuoteIdentifier(database), clickhouse.QuoteIdentifier(t))
		if err := conn.Exec(ctx, q); err != nil {
			return nil, fmt.Errorf("failed to drop %s: %w", t, err)
		}
		log.Info("admin: dropped table", "table", t)
	}

	if dryRun {
		log.Info("admin: would truncate run log", "table", catalog.RunsTable)
		return tables, nil
	}
	q := fmt.Sprintf("TRUNCATE TABLE IF EXISTS %s.%s", clickhouse.QuoteIdentifier(database), clickhouse.QuoteIdentifier(catalog.RunsTable))
	if err := conn.Exec(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to truncate %s: %w", catalog.RunsTable, err)
	}
	return tables, nil
}

// DescribeTable renders a catalog entry for the terminal.
func DescribeTable(t *catalog.Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s.%s\n", t.Database, t.Name)
	fmt.Fprintf(&sb, "  location:      %s\n", t.Location)
	if t.Description != "" {
		fmt.Fprintf(&sb, "  description:   %s\n", t.Description)
	}
	if len(t.PartitionKeys) > 0 {
		fmt.Fprintf(&sb, "  partitioned:   %s\n", strings.Join(t.PartitionKeys, ", "))
	}
	fmt.Fprintf(&sb, "  run:           %s\n", t.RunID)
	fmt.Fprintf(&sb, "  registered at: %s\n", t.RegisteredAt.UTC().Format("2006-01-02 15:04:05"))
	sb.WriteString("  columns:\n")
	for _, c := range t.Columns {
		fmt.Fprintf(&sb, "    %-30s %s", c.Name, c.Type)
		if c.Description != "" {
			fmt.Fprintf(&sb, "  -- %s", c.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
