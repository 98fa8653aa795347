package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/malbeclabs/curate/curator/pkg/clickhouse"
	"github.com/malbeclabs/curate/curator/pkg/dataset"
)

const (
	defaultWriteBatchSize = 50_000

	HistoryTablePrefix = "history_"

	stagingSuffix = "_staging"
)

// HistoryTableName is the ClickHouse table holding the SCD2 history of table.
func HistoryTableName(table string) string {
	return HistoryTablePrefix + strings.ToLower(table)
}

// HistoryWriter replaces a table's history in ClickHouse with a new full output.
type HistoryWriter struct {
	log *slog.Logger

	// WriteBatchSize overrides the default sub-batch size for Write.
	// If zero, defaults to 50,000 rows.
	WriteBatchSize int
}

func NewHistoryWriter(log *slog.Logger) *HistoryWriter {
	return &HistoryWriter{log: log}
}

// CreateTableSQL returns the DDL for a history table typed by b's schema.
func CreateTableSQL(name string, b *dataset.Batch) (string, error) {
	s := b.Schema()
	if s == nil {
		return "", errors.New("history batch must be reconciled")
	}
	var cols []string
	for _, c := range s.Columns() {
		cols = append(cols, fmt.Sprintf("    %s %s", clickhouse.QuoteIdentifier(c.Name), c.Type.ClickHouseType()))
	}
	return fmt.Sprintf("CREATE TABLE %s\n(\n%s\n)\nENGINE = MergeTree\nORDER BY tuple()",
		clickhouse.QuoteIdentifier(name), strings.Join(cols, ",\n")), nil
}

// Write replaces history_<table> with the rows of b. Rows are inserted into a
// staging table using PrepareBatch, split into sub-batches of WriteBatchSize
// rows, and the staging table is exchanged with history_<table> only after
// every row was sent. A failed write leaves the previous history in place.
func (w *HistoryWriter) Write(ctx context.Context, conn clickhouse.Connection, table string, b *dataset.Batch) error {
	name := HistoryTableName(table)
	staging := name + stagingSuffix
	ddl, err := CreateTableSQL(staging, b)
	if err != nil {
		return err
	}
	if err := dropTable(ctx, conn, staging); err != nil {
		return err
	}
	if err := conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s: %w", staging, err)
	}

	if err := w.insert(ctx, conn, staging, b); err != nil {
		if dropErr := dropTable(context.WithoutCancel(ctx), conn, staging); dropErr != nil {
			w.log.Warn("catalog: failed to drop staging table", "table", staging, "error", dropErr)
		}
		return err
	}

	if err := conn.Exec(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s AS %s",
		clickhouse.QuoteIdentifier(name), clickhouse.QuoteIdentifier(staging))); err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if err := conn.Exec(ctx, fmt.Sprintf("EXCHANGE TABLES %s AND %s",
		clickhouse.QuoteIdentifier(staging), clickhouse.QuoteIdentifier(name))); err != nil {
		return fmt.Errorf("failed to swap %s into place: %w", name, err)
	}
	// staging now holds the previous history.
	if err := dropTable(ctx, conn, staging); err != nil {
		return err
	}

	w.log.Info("catalog: history written", "table", name, "rows", b.Rows())
	return nil
}

func dropTable(ctx context.Context, conn clickhouse.Connection, name string) error {
	if err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", clickhouse.QuoteIdentifier(name))); err != nil {
		return fmt.Errorf("failed to drop %s: %w", name, err)
	}
	return nil
}

func (w *HistoryWriter) insert(ctx context.Context, conn clickhouse.Connection, name string, b *dataset.Batch) error {
	count := b.Rows()
	if count == 0 {
		return nil
	}

	batchSize := defaultWriteBatchSize
	if w.WriteBatchSize > 0 {
		batchSize = w.WriteBatchSize
	}

	w.log.Debug("writing history batch", "table", name, "count", count, "batchSize", batchSize)

	insertSQL := fmt.Sprintf("INSERT INTO %s", clickhouse.QuoteIdentifier(name))
	for start := 0; start < count; start += batchSize {
		end := min(start+batchSize, count)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during batch insert: %w", ctx.Err())
		default:
		}

		batch, err := conn.PrepareBatch(ctx, insertSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare batch: %w", err)
		}

		for i := start; i < end; i++ {
			select {
			case <-ctx.Done():
				batch.Close()
				return fmt.Errorf("context cancelled during batch insert: %w", ctx.Err())
			default:
			}

			if err := batch.Append(b.Row(i)...); err != nil {
				batch.Close()
				return fmt.Errorf("failed to append row %d: %w", i, err)
			}
		}

		if err := batch.Send(); err != nil {
			return fmt.Errorf("failed to send batch: %w", err)
		}

		w.log.Debug("wrote history sub-batch", "table", name, "start", start, "end", end, "total", count)
	}
	return nil
}
