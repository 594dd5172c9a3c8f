package config

import "time"

// Config is the fully resolved, validated runtime configuration for the
// aggregator. It is built once at startup by Initialize and passed down
// as an explicit collaborator; nothing in this package is read from an
// ambient singleton.
type Config struct {
	PipelineVersion string `yaml:"pipeline_version"`

	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`

	Queue      QueueConfig      `yaml:"queue"`
	LLM        LLMConfig        `yaml:"llm"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Duplicate  DuplicateConfig  `yaml:"duplicate"`
	Freshness  FreshnessConfig  `yaml:"freshness"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Redis      RedisConfig      `yaml:"redis"`
}

// DatabaseConfig configures the pgx connection pool backing pkg/store.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

// HTTPConfig configures the listing API surface (C9).
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the slog-based structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|text
}

// QueueConfig covers C4/C5: worker pool sizing and timing.
type QueueConfig struct {
	WorkerCount           int           `yaml:"worker_count"`
	ClaimBatchSize        int           `yaml:"claim_batch_size"`
	JobWallClockTimeout   time.Duration `yaml:"job_wall_clock_timeout_s"`
	StaleRequeueAfter     time.Duration `yaml:"stale_requeue_s"`
	StaleRequeueInterval  time.Duration `yaml:"stale_requeue_interval"`
	PollInterval          time.Duration `yaml:"poll_interval"`
	PollIntervalJitter    time.Duration `yaml:"poll_interval_jitter"`
	GracefulShutdownDrain time.Duration `yaml:"graceful_shutdown_drain"`
	MaxAttempts           int           `yaml:"max_attempts"`
}

// LLMConfig covers C3's extractor backend.
type LLMConfig struct {
	Model      string        `yaml:"llm_model"`
	Timeout    time.Duration `yaml:"llm_timeout_s"`
	MaxRetries int           `yaml:"llm_max_retries"`
	APIKeyEnv  string        `yaml:"api_key_env"`
}

// BreakerConfig parameterizes the sony/gobreaker instance guarding C3.
type BreakerConfig struct {
	WindowInterval     time.Duration `yaml:"window_interval"`
	OpenTimeout        time.Duration `yaml:"open_timeout"`
	FailureRatio       float64       `yaml:"failure_ratio"`
	MinRequests        uint32        `yaml:"min_requests"`
	HalfOpenMaxProbes  uint32        `yaml:"half_open_max_probes"`
}

// DuplicateWeights are the per-signal weights used by C6's scoring
// function, fully overridable from YAML.
type DuplicateWeights struct {
	Postal            float64 `yaml:"postal"`
	PostalFuzzyFactor float64 `yaml:"postal_fuzzy_factor"`
	Subjects          float64 `yaml:"subjects"`
	Levels            float64 `yaml:"levels"`
	Rate              float64 `yaml:"rate"`
	AssignmentCode    float64 `yaml:"assignment_code"`
	CodePrefixFactor  float64 `yaml:"code_prefix_factor"`
	Temporal          float64 `yaml:"temporal"`
	TemporalDecay     float64 `yaml:"temporal_decay_factor"`
	TimeAvailability  float64 `yaml:"time_availability"`
}

// DuplicateConfig covers C6.
type DuplicateConfig struct {
	Weights             DuplicateWeights `yaml:"dup_weights"`
	ThresholdHigh        float64          `yaml:"dup_threshold_high"`
	ThresholdMedium       float64          `yaml:"dup_threshold"`
	ThresholdLow          float64          `yaml:"dup_threshold_low"`
	TimeWindowDays        int              `yaml:"dup_time_window_days"`
	BatchSize             int              `yaml:"dup_batch_size"`
	FuzzyPostalTolerance  int              `yaml:"dup_fuzzy_postal_tolerance"`
	DetectionAlgoVersion  int              `yaml:"dup_algo_version"`
}

// FreshnessConfig covers C7's tier thresholds.
type FreshnessConfig struct {
	GreenMax  time.Duration `yaml:"green_max"`
	YellowMax time.Duration `yaml:"yellow_max"`
	OrangeMax time.Duration `yaml:"orange_max"`
	BatchSize int           `yaml:"batch_size"`
	Interval  time.Duration `yaml:"interval"`
}

// BroadcastDuplicateMode names how non-primary members of a duplicate
// group are to be broadcast. The value is validated at load, but
// delivery.Fanout skips non-primary members in every mode.
type BroadcastDuplicateMode string

const (
	BroadcastAll             BroadcastDuplicateMode = "all"
	BroadcastPrimaryOnly     BroadcastDuplicateMode = "primary_only"
	BroadcastPrimaryWithNote BroadcastDuplicateMode = "primary_with_note"
)

// DeliveryConfig covers C8.
type DeliveryConfig struct {
	BroadcastDuplicateMode   BroadcastDuplicateMode `yaml:"broadcast_duplicate_mode"`
	DMSkipDuplicates         bool                   `yaml:"dm_skip_duplicates"`
	DMMaxDistanceKMDefault   float64                `yaml:"dm_max_distance_km_default"`
	DMRatePerMinute          int                    `yaml:"dm_rate_per_minute"`
	BroadcastRatePerMinute   int                    `yaml:"broadcast_rate_per_minute"`
	ClickBucketBoundaries    []int64                `yaml:"click_bucket_boundaries"`
}

// RedisConfig configures the cross-process DM dedup and rate-limit state.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password_env"`
	DB       int    `yaml:"db"`
}
