package settings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"MOJAP_EXTRACTION_TS": "1700000000",
		"MOJAP_IMAGE_VERSION": "v0.1.0",
		"LANDING_FOLDER":      "s3://land-bucket/land",
		"RAW_HIST_FOLDER":     "s3://raw-bucket/raw_hist",
		"CURATED_FOLDER":      "s3://curated-bucket/curated",
		"METADATA_FOLDER":     "s3://meta-bucket/metadata",
	}
}

func TestCurator_Settings_FromEnv(t *testing.T) {
	t.Parallel()

	env := baseEnv()
	env["TABLES"] = " people, orders ,,"
	env["SCD2_ENABLED"] = "true"
	env["CLICKHOUSE_ADDR_TCP"] = "localhost:9000"
	env["CLICKHOUSE_SECURE"] = "1"

	s, err := FromEnv(envOf(env))
	require.NoError(t, err)
	assert.Equal(t, "eu-west-2", s.AWSRegion)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), s.ExtractionTS)
	assert.Equal(t, "v0.1.0", s.ImageVersion)
	assert.Equal(t, []string{"people", "orders"}, s.Tables)
	assert.True(t, s.SCD2Enabled)
	assert.False(t, s.FailFast)
	assert.Equal(t, DefaultDatabaseName, s.DatabaseName)
	assert.Equal(t, DefaultEntityKey, s.EntityKey)
	assert.True(t, s.ClickHouse.Enabled())
	assert.True(t, s.ClickHouse.Secure)
}

func TestCurator_Settings_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(map[string]string)
		want   string
	}{
		{"missing extraction ts", func(e map[string]string) { delete(e, "MOJAP_EXTRACTION_TS") }, "MOJAP_EXTRACTION_TS is required"},
		{"bad extraction ts", func(e map[string]string) { e["MOJAP_EXTRACTION_TS"] = "yesterday" }, "invalid MOJAP_EXTRACTION_TS"},
		{"missing image version", func(e map[string]string) { delete(e, "MOJAP_IMAGE_VERSION") }, "MOJAP_IMAGE_VERSION is required"},
		{"no landing or metadata", func(e map[string]string) {
			delete(e, "LANDING_FOLDER")
			delete(e, "METADATA_FOLDER")
		}, "at least one of LANDING_FOLDER or METADATA_FOLDER is required"},
		{"lower-case prefix", func(e map[string]string) { e["TABLE_PREFIX"] = "people_" }, "TABLE_PREFIX"},
		{"prefix without underscore", func(e map[string]string) { e["TABLE_PREFIX"] = "PEOPLE" }, "TABLE_PREFIX"},
		{"folder without scheme", func(e map[string]string) { e["CURATED_FOLDER"] = "curated-bucket/curated" }, "invalid CURATED_FOLDER"},
		{"bad bool", func(e map[string]string) { e["FAIL_FAST"] = "sometimes" }, "invalid FAIL_FAST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := baseEnv()
			tt.mutate(env)
			_, err := FromEnv(envOf(env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("metadata only is enough", func(t *testing.T) {
		env := baseEnv()
		delete(env, "LANDING_FOLDER")
		_, err := FromEnv(envOf(env))
		require.NoError(t, err)
	})
}

func TestCurator_Settings_TablePrefix(t *testing.T) {
	t.Parallel()

	assert.True(t, MatchesTablePrefix("PEOPLE_"))
	assert.True(t, MatchesTablePrefix("LAA2_"))
	assert.False(t, MatchesTablePrefix("PEOPLE"))
	assert.False(t, MatchesTablePrefix("People_"))
	assert.False(t, MatchesTablePrefix("PEOPLE__"))
	assert.False(t, MatchesTablePrefix(""))
}

func TestCurator_Settings_SplitTables(t *testing.T) {
	t.Parallel()
	assert.Nil(t, SplitTables(""))
	assert.Equal(t, []string{"a", "b"}, SplitTables("a, b"))
}
