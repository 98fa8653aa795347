package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/curate/curator/pkg/admin"
	"github.com/malbeclabs/curate/curator/pkg/catalog"
	"github.com/malbeclabs/curate/curator/pkg/clickhouse"
	"github.com/malbeclabs/curate/curator/pkg/settings"
	"github.com/malbeclabs/curate/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse (or set CLICKHOUSE_SECURE=true env var)")

	// Commands
	clickhouseMigrateFlag := flag.Bool("clickhouse-migrate", false, "Run ClickHouse catalog migrations using goose")
	clickhouseMigrateStatusFlag := flag.Bool("clickhouse-migrate-status", false, "Show ClickHouse catalog migration status")
	showTableFlag := flag.String("show-table", "", "Print the catalog entry of a curated table")
	catalogDatabaseFlag := flag.String("catalog-database", settings.DefaultDatabaseName, "Catalog database the table is registered under (or set DATABASE_NAME env var)")
	resetHistoryFlag := flag.Bool("reset-history", false, "Drop all history_* tables and clear the run log")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	_ = godotenv.Load()

	log := logger.New(*verboseFlag)

	// Override ClickHouse flags with environment variables if set
	if envClickhouseAddr := os.Getenv("CLICKHOUSE_ADDR_TCP"); envClickhouseAddr != "" {
		*clickhouseAddrFlag = envClickhouseAddr
	}
	if envClickhouseDatabase := os.Getenv("CLICKHOUSE_DATABASE"); envClickhouseDatabase != "" {
		*clickhouseDatabaseFlag = envClickhouseDatabase
	}
	if envClickhouseUsername := os.Getenv("CLICKHOUSE_USERNAME"); envClickhouseUsername != "" {
		*clickhouseUsernameFlag = envClickhouseUsername
	}
	if envClickhousePassword := os.Getenv("CLICKHOUSE_PASSWORD"); envClickhousePassword != "" {
		*clickhousePasswordFlag = envClickhousePassword
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if envDatabaseName := os.Getenv("DATABASE_NAME"); envDatabaseName != "" && !flag.CommandLine.Changed("catalog-database") {
		*catalogDatabaseFlag = envDatabaseName
	}

	if *clickhouseAddrFlag == "" {
		return fmt.Errorf("--clickhouse-addr is required")
	}

	ctx := context.Background()
	migrationCfg := clickhouse.MigrationConfig{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}

	if *clickhouseMigrateFlag {
		return clickhouse.RunMigrations(ctx, log, migrationCfg)
	}

	if *clickhouseMigrateStatusFlag {
		return clickhouse.MigrationStatus(ctx, log, migrationCfg)
	}

	client, err := clickhouse.NewClient(ctx, log, *clickhouseAddrFlag, *clickhouseDatabaseFlag, *clickhouseUsernameFlag, *clickhousePasswordFlag, *clickhouseSecureFlag)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	defer client.Close()

	if *showTableFlag != "" {
		cat, err := catalog.New(catalog.Config{Logger: log, ClickHouse: client})
		if err != nil {
			return err
		}
		t, err := cat.Get(ctx, *catalogDatabaseFlag, *showTableFlag)
		if err != nil {
			return err
		}
		fmt.Print(admin.DescribeTable(t))
		return nil
	}

	if *resetHistoryFlag {
		conn, err := client.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to get ClickHouse connection: %w", err)
		}
		if !*dryRunFlag && !*yesFlag {
			tables, err := admin.HistoryTables(ctx, conn, *clickhouseDatabaseFlag)
			if err != nil {
				return err
			}
			fmt.Printf("This will drop %d history table(s) in %s and clear the run log:\n", len(tables), *clickhouseDatabaseFlag)
			for _, t := range tables {
				fmt.Printf("  %s\n", t)
			}
			if !confirm("Continue?") {
				return fmt.Errorf("aborted")
			}
		}
		_, err = admin.ResetHistory(ctx, log, conn, *clickhouseDatabaseFlag, *dryRunFlag)
		return err
	}

	flag.Usage()
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
