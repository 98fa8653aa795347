package admin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/curate/curator/pkg/catalog"
	clickhousetesting "github.com/malbeclabs/curate/curator/pkg/clickhouse/testing"
	curatetesting "github.com/malbeclabs/curate/utils/pkg/testing"
)

func historyConn() *clickhousetesting.FakeConn {
	return &clickhousetesting.FakeConn{
		QueryFunc: func(query string, args []any) ([][]any, error) {
			if !strings.Contains(query, "system.tables") {
				return nil, errors.New("unexpected query")
			}
			return [][]any{{"history_orders"}, {"history_people"}}, nil
		},
	}
}

func TestCurator_Admin_HistoryTables(t *testing.T) {
	t.Parallel()

	var gotArgs []any
	conn := historyConn()
	inner := conn.QueryFunc
	conn.QueryFunc = func(query string, args []any) ([][]any, error) {
		gotArgs = args
		return inner(query, args)
	}

	tables, err := HistoryTables(context.Background(), conn, "curation")
	require.NoError(t, err)
	assert.Equal(t, []string{"history_orders", "history_people"}, tables)
	assert.Equal(t, []any{"curation", "history_"}, gotArgs)
}

func TestCurator_Admin_ResetHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	log := curatetesting.NewLogger()

	t.Run("drops tables and truncates run log", func(t *testing.T) {
		conn := historyConn()
		tables, err := ResetHistory(ctx, log, conn, "curation", false)
		require.NoError(t, err)
		assert.Equal(t, []string{"history_orders", "history_people"}, tables)

		var queries []string
		for _, s := range conn.Execs() {
			queries = append(queries, s.Query)
		}
		assert.Equal(t, []string{
			"DROP TABLE IF EXISTS `curation`.`history_orders`",
			"DROP TABLE IF EXISTS `curation`.`history_people`",
			"TRUNCATE TABLE IF EXISTS `curation`.`curation_runs`",
		}, queries)
	})

	t.Run("dry run executes nothing", func(t *testing.T) {
		conn := historyConn()
		tables, err := ResetHistory(ctx, log, conn, "curation", true)
		require.NoError(t, err)
		assert.Len(t, tables, 2)
		assert.Empty(t, conn.Execs())
	})

	t.Run("drop failure", func(t *testing.T) {
		conn := historyConn()
		conn.ExecErr = func(query string) error {
			if strings.Contains(query, "history_people") {
				return errors.New("table is locked")
			}
			return nil
		}
		_, err := ResetHistory(ctx, log, conn, "curation", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to drop history_people")
		assert.Len(t, conn.Execs(), 1)
	})

	t.Run("query failure", func(t *testing.T) {
		conn := &clickhousetesting.FakeConn{QueryFunc: func(string, []any) ([][]any, error) {
			return nil, errors.New("connection refused")
		}}
		_, err := ResetHistory(ctx, log, conn, "curation", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to list history tables")
	})
}

func TestCurator_Admin_DescribeTable(t *testing.T) {
	t.Parallel()

	out := DescribeTable(&catalog.Table{
		Database:      "curated",
		Name:          "people",
		Location:      "s3://curated/people/",
		PartitionKeys: []string{"mojap_start_datetime"},
		Columns: []catalog.Column{
			{Name: "user_id", Type: "string", Description: "user identifier"},
			{Name: "age", Type: "bigint"},
		},
		RunID:        "run-1",
		RegisteredAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	assert.Contains(t, out, "curated.people\n")
	assert.Contains(t, out, "location:      s3://curated/people/")
	assert.Contains(t, out, "partitioned:   mojap_start_datetime")
	assert.Contains(t, out, "registered at: 2024-06-01 12:00:00")
	assert.Contains(t, out, "-- user identifier")
	assert.NotContains(t, out, "description:")
}
