package pipeline

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/curate/curator/pkg/catalog"
	"github.com/malbeclabs/curate/curator/pkg/clickhouse"
	"github.com/malbeclabs/curate/curator/pkg/schema"
	"github.com/malbeclabs/curate/curator/pkg/settings"
	"github.com/malbeclabs/curate/curator/pkg/storage"
)

const defaultMaxConcurrency = 4

type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Store   storage.Store
	Schemas schema.Source

	// Catalog is optional. Without it curated tables are written but not
	// registered and runs are not recorded.
	Catalog *catalog.Catalog

	// ClickHouse and HistoryWriter are optional. When both are set, SCD2
	// history is also written to a history_<table> table.
	ClickHouse    clickhouse.Client
	HistoryWriter *catalog.HistoryWriter

	LandingFolder string
	RawHistFolder string
	CuratedFolder string
	DatabaseName  string

	ImageVersion string
	ExtractionTS time.Time

	EntityKey   string
	SCD2Enabled bool
	FailFast    bool

	MaxConcurrency int
}

// ConfigFromSettings copies run settings into a pipeline config. Collaborators
// (logger, store, schemas, catalog) are left for the caller.
func ConfigFromSettings(s settings.Settings) Config {
	return Config{
		LandingFolder:  s.LandingFolder,
		RawHistFolder:  s.RawHistFolder,
		CuratedFolder:  s.CuratedFolder,
		DatabaseName:   s.DatabaseName,
		ImageVersion:   s.ImageVersion,
		ExtractionTS:   s.ExtractionTS,
		EntityKey:      s.EntityKey,
		SCD2Enabled:    s.SCD2Enabled,
		FailFast:       s.FailFast,
		MaxConcurrency: defaultMaxConcurrency,
	}
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Schemas == nil {
		return errors.New("schema source is required")
	}
	if c.LandingFolder == "" {
		return errors.New("landing folder is required")
	}
	if c.RawHistFolder == "" {
		return errors.New("raw history folder is required")
	}
	if c.CuratedFolder == "" {
		return errors.New("curated folder is required")
	}
	if c.ImageVersion == "" {
		return errors.New("image version is required")
	}
	if c.ExtractionTS.IsZero() {
		return errors.New("extraction timestamp is required")
	}
	if c.SCD2Enabled && c.EntityKey == "" {
		return errors.New("entity key is required when scd2 is enabled")
	}
	if c.HistoryWriter != nil && c.ClickHouse == nil {
		return errors.New("clickhouse client is required when a history writer is configured")
	}

	// Optional with defaults
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.DatabaseName == "" {
		c.DatabaseName = settings.DefaultDatabaseName
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	return nil
}
