package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Analytics  AnalyticsConfig  `yaml:"analytics" mapstructure:"analytics"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Graph      GraphConfig      `yaml:"graph" mapstructure:"graph"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Sinks      SinksConfig      `yaml:"sinks" mapstructure:"sinks"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnalyticsConfig holds every tunable constant of the derivation engines.
type AnalyticsConfig struct {
	TimeBucketMinutes int              `yaml:"time_bucket_minutes" mapstructure:"time_bucket_minutes"`
	Workers           int              `yaml:"workers" mapstructure:"workers"`
	EvidenceTopN      int              `yaml:"evidence_top_n" mapstructure:"evidence_top_n"`
	CoPresence        CoPresenceConfig `yaml:"copresence" mapstructure:"copresence"`
	Ranking           RankingConfig    `yaml:"ranking" mapstructure:"ranking"`
	Handoff           HandoffConfig    `yaml:"handoff" mapstructure:"handoff"`
	Cells             CellConfig       `yaml:"cells" mapstructure:"cells"`
}

// CoPresenceConfig configures edge weighting.
type CoPresenceConfig struct {
	// SaturationCount is the co-occurrence count at which weight reaches 1.0.
	SaturationCount float64 `yaml:"saturation_count" mapstructure:"saturation_count"`
}

// RankingConfig configures suspect scoring.
type RankingConfig struct {
	CaseType                string  `yaml:"case_type" mapstructure:"case_type"`
	RecurrenceWeight        float64 `yaml:"recurrence_weight" mapstructure:"recurrence_weight"`
	CrossJurisdictionWeight float64 `yaml:"cross_jurisdiction_weight" mapstructure:"cross_jurisdiction_weight"`
	NetworkCap              float64 `yaml:"network_cap" mapstructure:"network_cap"`
	CopresenceMultiplier    float64 `yaml:"copresence_multiplier" mapstructure:"copresence_multiplier"`
	SocialMultiplier        float64 `yaml:"social_multiplier" mapstructure:"social_multiplier"`
}

// HandoffConfig configures device-succession detection.
type HandoffConfig struct {
	MaxGapMinutes         float64 `yaml:"max_gap_minutes" mapstructure:"max_gap_minutes"`
	Tier1Minutes          float64 `yaml:"tier1_minutes" mapstructure:"tier1_minutes"`
	Tier2Minutes          float64 `yaml:"tier2_minutes" mapstructure:"tier2_minutes"`
	SpatialScore          float64 `yaml:"spatial_score" mapstructure:"spatial_score"`
	Tier1Score            float64 `yaml:"tier1_score" mapstructure:"tier1_score"`
	Tier2Score            float64 `yaml:"tier2_score" mapstructure:"tier2_score"`
	FallbackTemporalScore float64 `yaml:"fallback_temporal_score" mapstructure:"fallback_temporal_score"`
	PartnerScore          float64 `yaml:"partner_score" mapstructure:"partner_score"`
}

// CellConfig holds device-count thresholds for activity categories.
type CellConfig struct {
	VeryHighThreshold int `yaml:"very_high_threshold" mapstructure:"very_high_threshold"`
	HighThreshold     int `yaml:"high_threshold" mapstructure:"high_threshold"`
	MediumThreshold   int `yaml:"medium_threshold" mapstructure:"medium_threshold"`
}

// ServerConfig configures the dashboard query API.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimit    float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst    int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	CacheTTLSecs int      `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GraphConfig configures the optional Neo4j export of the co-presence graph.
type GraphConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	URI      string `yaml:"uri" mapstructure:"uri"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// NotifyConfig configures the optional Kafka snapshot notifications.
type NotifyConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// SinksConfig controls retries and circuit breaking for the optional
// graph and notification sinks.
type SinksConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MonitoringConfig configures the background health checks run by serve.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	StaleSnapshotHours   int     `yaml:"stale_snapshot_hours" mapstructure:"stale_snapshot_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CASELINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.cache_ttl_secs", 30)
	v.SetDefault("analytics.time_bucket_minutes", 15)
	v.SetDefault("analytics.workers", 4)
	v.SetDefault("analytics.evidence_top_n", 5)
	v.SetDefault("analytics.copresence.saturation_count", 5.0)
	v.SetDefault("analytics.ranking.case_type", "burglary")
	v.SetDefault("analytics.ranking.recurrence_weight", 0.4)
	v.SetDefault("analytics.ranking.cross_jurisdiction_weight", 0.35)
	v.SetDefault("analytics.ranking.network_cap", 0.25)
	v.SetDefault("analytics.ranking.copresence_multiplier", 0.1)
	v.SetDefault("analytics.ranking.social_multiplier", 0.15)
	v.SetDefault("analytics.handoff.max_gap_minutes", 30.0)
	v.SetDefault("analytics.handoff.tier1_minutes", 15.0)
	v.SetDefault("analytics.handoff.tier2_minutes", 30.0)
	v.SetDefault("analytics.handoff.spatial_score", 0.5)
	v.SetDefault("analytics.handoff.tier1_score", 0.3)
	v.SetDefault("analytics.handoff.tier2_score", 0.2)
	v.SetDefault("analytics.handoff.fallback_temporal_score", 0.1)
	v.SetDefault("analytics.handoff.partner_score", 0.2)
	v.SetDefault("analytics.cells.very_high_threshold", 40)
	v.SetDefault("analytics.cells.high_threshold", 20)
	v.SetDefault("analytics.cells.medium_threshold", 10)
	v.SetDefault("graph.enabled", false)
	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.username", "")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "neo4j")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.brokers", []string{})
	v.SetDefault("notify.topic", "caselink.snapshots")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("sinks.max_attempts", 3)
	v.SetDefault("sinks.initial_backoff_ms", 500)
	v.SetDefault("sinks.max_backoff_ms", 10000)
	v.SetDefault("sinks.failure_threshold", 5)
	v.SetDefault("sinks.reset_timeout_secs", 30)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.stale_snapshot_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by a command are present.
// Mode is one of "run", "serve", "seed", or "export".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit <= 0 {
			errs = append(errs, "server.rate_limit must be > 0")
		}
	case "run":
		if c.Graph.Enabled && c.Graph.URI == "" {
			errs = append(errs, "graph.uri is required when graph.enabled")
		}
		if c.Notify.Enabled && len(c.Notify.Brokers) == 0 {
			errs = append(errs, "notify.brokers is required when notify.enabled")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
