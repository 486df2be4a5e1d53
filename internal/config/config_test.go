package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30, cfg.Server.CacheTTLSecs)
	assert.Equal(t, 15, cfg.Analytics.TimeBucketMinutes)
	assert.Equal(t, 4, cfg.Analytics.Workers)
	assert.Equal(t, 5, cfg.Analytics.EvidenceTopN)
	assert.InDelta(t, 5.0, cfg.Analytics.CoPresence.SaturationCount, 0.001)
	assert.Equal(t, "burglary", cfg.Analytics.Ranking.CaseType)
	assert.InDelta(t, 0.4, cfg.Analytics.Ranking.RecurrenceWeight, 0.001)
	assert.InDelta(t, 0.35, cfg.Analytics.Ranking.CrossJurisdictionWeight, 0.001)
	assert.InDelta(t, 0.25, cfg.Analytics.Ranking.NetworkCap, 0.001)
	assert.InDelta(t, 0.1, cfg.Analytics.Ranking.CopresenceMultiplier, 0.001)
	assert.InDelta(t, 0.15, cfg.Analytics.Ranking.SocialMultiplier, 0.001)
	assert.InDelta(t, 30.0, cfg.Analytics.Handoff.MaxGapMinutes, 0.001)
	assert.InDelta(t, 15.0, cfg.Analytics.Handoff.Tier1Minutes, 0.001)
	assert.InDelta(t, 0.5, cfg.Analytics.Handoff.SpatialScore, 0.001)
	assert.InDelta(t, 0.1, cfg.Analytics.Handoff.FallbackTemporalScore, 0.001)
	assert.Equal(t, 40, cfg.Analytics.Cells.VeryHighThreshold)
	assert.Equal(t, 20, cfg.Analytics.Cells.HighThreshold)
	assert.Equal(t, 10, cfg.Analytics.Cells.MediumThreshold)
	assert.Equal(t, "caselink.snapshots", cfg.Notify.Topic)
	assert.False(t, cfg.Graph.Enabled)
	assert.Equal(t, 3, cfg.Sinks.MaxAttempts)
	assert.Equal(t, 5, cfg.Sinks.FailureThreshold)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 24, cfg.Monitoring.StaleSnapshotHours)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  database_url: caselink.db
log:
  level: debug
  format: console
analytics:
  copresence:
    saturation_count: 10
  handoff:
    max_gap_minutes: 45
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "caselink.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 10.0, cfg.Analytics.CoPresence.SaturationCount, 0.001)
	assert.InDelta(t, 45.0, cfg.Analytics.Handoff.MaxGapMinutes, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 30.0, cfg.Analytics.Handoff.Tier2Minutes, 0.001)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CASELINK_STORE_DRIVER", "postgres")
	t.Setenv("CASELINK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CASELINK_SERVER_PORT", "3000")
	t.Setenv("CASELINK_ANALYTICS_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Analytics.Workers)
}

func TestLoadEnvOverridesKeysWithoutDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("CASELINK_STORE_DATABASE_URL", "postgres://caselink@db/caselink")
	t.Setenv("CASELINK_GRAPH_ENABLED", "true")
	t.Setenv("CASELINK_GRAPH_URI", "neo4j://graph:7687")
	t.Setenv("CASELINK_GRAPH_USERNAME", "neo4j")
	t.Setenv("CASELINK_GRAPH_PASSWORD", "secret")
	t.Setenv("CASELINK_NOTIFY_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("CASELINK_MONITORING_WEBHOOK_URL", "https://hooks.example.com/caselink")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://caselink@db/caselink", cfg.Store.DatabaseURL)
	assert.True(t, cfg.Graph.Enabled)
	assert.Equal(t, "neo4j://graph:7687", cfg.Graph.URI)
	assert.Equal(t, "neo4j", cfg.Graph.Username)
	assert.Equal(t, "secret", cfg.Graph.Password)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notify.Brokers)
	assert.Equal(t, "https://hooks.example.com/caselink", cfg.Monitoring.WebhookURL)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "caselink.db"
	cfg.Server.Port = 8080
	cfg.Server.RateLimit = 20
	return cfg
}

func TestValidateRun_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateRun_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required for postgres")
}

func TestValidateRun_SQLiteDefaultsPath(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateRun_UnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateRun_SinksNeedAddresses(t *testing.T) {
	cfg := validDefaults()
	cfg.Graph.Enabled = true
	cfg.Notify.Enabled = true

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph.uri is required")
	assert.Contains(t, err.Error(), "notify.brokers is required")
}

func TestValidateServe_ValidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 9090

	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}
