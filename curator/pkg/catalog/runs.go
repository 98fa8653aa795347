package catalog

import (
	"context"
	"fmt"
	"time"
)

const RunsTable = "curation_runs"

// RunRecord summarises one curation run of one table.
type RunRecord struct {
	RunID         string
	Table         string
	StartedAt     time.Time
	FinishedAt    time.Time
	FilesFound    int
	FilesCurated  int
	FilesSkipped  int
	FilesArchived int
	RowsCurated   int
	HistoryRows   int
	Error         string
}

// RecordRun appends a run summary to the run log.
func (c *Catalog) RecordRun(ctx context.Context, r RunRecord) error {
	conn, err := c.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", RunsTable))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	if err := batch.Append(
		r.RunID,
		r.Table,
		r.StartedAt.UTC(),
		r.FinishedAt.UTC(),
		uint32(r.FilesFound),
		uint32(r.FilesCurated),
		uint32(r.FilesSkipped),
		uint32(r.FilesArchived),
		uint64(r.RowsCurated),
		uint64(r.HistoryRows),
		r.Error,
	); err != nil {
		batch.Close()
		return fmt.Errorf("failed to append run record: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	c.log.Debug("catalog: run recorded", "run_id", r.RunID, "table", r.Table)
	return nil
}
