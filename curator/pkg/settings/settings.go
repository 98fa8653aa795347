// Package settings reads the curator's run settings from the environment.
package settings

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/curate/curator/pkg/storage"
)

const (
	DefaultDatabaseName = "curated"
	DefaultEntityKey    = "user_id"
)

var tablePrefixPattern = regexp.MustCompile(`^[A-Z0-9]+_$`)

type ClickHouse struct {
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool
}

// Enabled reports whether a ClickHouse address is configured.
func (c ClickHouse) Enabled() bool { return c.Addr != "" }

// Settings is the explicit configuration of a curation run.
type Settings struct {
	AWSRegion      string
	ExtractionTS   time.Time
	ImageVersion   string
	TablePrefix    string
	Tables         []string
	LandingFolder  string
	RawHistFolder  string
	CuratedFolder  string
	MetadataFolder string
	S3EndpointURL  string
	DatabaseName   string
	EntityKey      string
	SCD2Enabled    bool
	FailFast       bool
	ClickHouse     ClickHouse
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv reads settings from environment variables and validates them.
func FromEnv(lookup LookupFunc) (Settings, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	s := Settings{
		AWSRegion:      get("AWS_REGION"),
		ImageVersion:   get("MOJAP_IMAGE_VERSION"),
		TablePrefix:    get("TABLE_PREFIX"),
		Tables:         SplitTables(get("TABLES")),
		LandingFolder:  get("LANDING_FOLDER"),
		RawHistFolder:  get("RAW_HIST_FOLDER"),
		CuratedFolder:  get("CURATED_FOLDER"),
		MetadataFolder: get("METADATA_FOLDER"),
		S3EndpointURL:  get("S3_ENDPOINT_URL"),
		DatabaseName:   get("DATABASE_NAME"),
		EntityKey:      get("ENTITY_KEY"),
		ClickHouse: ClickHouse{
			Addr:     get("CLICKHOUSE_ADDR_TCP"),
			Database: get("CLICKHOUSE_DATABASE"),
			Username: get("CLICKHOUSE_USERNAME"),
			Password: get("CLICKHOUSE_PASSWORD"),
		},
	}

	if raw := get("MOJAP_EXTRACTION_TS"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return s, fmt.Errorf("invalid MOJAP_EXTRACTION_TS %q: %w", raw, err)
		}
		s.ExtractionTS = time.Unix(ts, 0).UTC()
	}
	for key, dst := range map[string]*bool{
		"SCD2_ENABLED":      &s.SCD2Enabled,
		"FAIL_FAST":         &s.FailFast,
		"CLICKHOUSE_SECURE": &s.ClickHouse.Secure,
	} {
		raw := get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return s, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		*dst = v
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// SplitTables parses a comma separated table list.
func SplitTables(raw string) []string {
	var tables []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tables = append(tables, t)
		}
	}
	return tables
}

func (s *Settings) Validate() error {
	if s.AWSRegion == "" {
		s.AWSRegion = storage.DefaultRegion
	}
	if s.DatabaseName == "" {
		s.DatabaseName = DefaultDatabaseName
	}
	if s.EntityKey == "" {
		s.EntityKey = DefaultEntityKey
	}
	if s.ExtractionTS.IsZero() {
		return errors.New("MOJAP_EXTRACTION_TS is required")
	}
	if s.ImageVersion == "" {
		return errors.New("MOJAP_IMAGE_VERSION is required")
	}
	if s.LandingFolder == "" && s.MetadataFolder == "" {
		return errors.New("at least one of LANDING_FOLDER or METADATA_FOLDER is required")
	}
	if s.TablePrefix != "" && !MatchesTablePrefix(s.TablePrefix) {
		return fmt.Errorf("TABLE_PREFIX %q must be upper-case alphanumerics followed by an underscore", s.TablePrefix)
	}
	for name, folder := range map[string]string{
		"LANDING_FOLDER":  s.LandingFolder,
		"RAW_HIST_FOLDER": s.RawHistFolder,
		"CURATED_FOLDER":  s.CuratedFolder,
		"METADATA_FOLDER": s.MetadataFolder,
	} {
		if folder == "" {
			continue
		}
		if _, _, err := storage.ParseURL(folder); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// MatchesTablePrefix reports whether prefix is upper-case alphanumerics
// followed by a single trailing underscore ("PEOPLE_").
func MatchesTablePrefix(prefix string) bool {
	return tablePrefixPattern.MatchString(prefix)
}
