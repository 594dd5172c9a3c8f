package config

import "time"

// Default returns a Config populated with the built-in defaults. Initialize
// merges a user-supplied YAML document on top of this using mergo, so any
// field left unset in aggregator.yaml falls back to these values.
func Default() *Config {
	return &Config{
		PipelineVersion: "v1",
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        2,
			ConnMaxLifetime: time.Hour,
			MigrationsPath:  "pkg/store/migrations",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Queue: QueueConfig{
			WorkerCount:           4,
			ClaimBatchSize:        10,
			JobWallClockTimeout:   120 * time.Second,
			StaleRequeueAfter:     180 * time.Second,
			StaleRequeueInterval:  30 * time.Second,
			PollInterval:          2 * time.Second,
			PollIntervalJitter:    500 * time.Millisecond,
			GracefulShutdownDrain: 30 * time.Second,
			MaxAttempts:           5,
		},
		LLM: LLMConfig{
			Model:      "claude-sonnet-4-5",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			APIKeyEnv:  "ANTHROPIC_API_KEY",
		},
		Breaker: BreakerConfig{
			WindowInterval:    60 * time.Second,
			OpenTimeout:       30 * time.Second,
			FailureRatio:      0.6,
			MinRequests:       10,
			HalfOpenMaxProbes: 1,
		},
		Duplicate: DuplicateConfig{
			Weights: DuplicateWeights{
				Postal:            50,
				PostalFuzzyFactor: 0.85,
				Subjects:          35,
				Levels:            25,
				Rate:              15,
				AssignmentCode:    10,
				CodePrefixFactor:  0.75,
				Temporal:          10,
				TemporalDecay:     0.6,
				TimeAvailability:  5,
			},
			ThresholdHigh:        90,
			ThresholdMedium:      70,
			ThresholdLow:         55,
			TimeWindowDays:       7,
			BatchSize:            200,
			FuzzyPostalTolerance: 2,
			DetectionAlgoVersion: 1,
		},
		Freshness: FreshnessConfig{
			GreenMax:  24 * time.Hour,
			YellowMax: 3 * 24 * time.Hour,
			OrangeMax: 7 * 24 * time.Hour,
			BatchSize: 500,
			Interval:  10 * time.Minute,
		},
		Delivery: DeliveryConfig{
			BroadcastDuplicateMode: BroadcastPrimaryOnly,
			DMSkipDuplicates:       true,
			DMMaxDistanceKMDefault: 10,
			DMRatePerMinute:        20,
			BroadcastRatePerMinute: 10,
			ClickBucketBoundaries:  []int64{1, 5, 10, 25, 50, 100},
		},
		Redis: RedisConfig{Addr: "localhost:6379", DB: 0},
	}
}
