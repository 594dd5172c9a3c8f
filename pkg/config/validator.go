package config

import "fmt"

// Validator validates a fully-merged Config, failing fast on the first
// invalid section.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates every section in dependency order: database before
// queue (queue claims depend on the store), queue before llm/breaker
// (breaker guards the path the queue drives), then the side-effect
// subsystems.
func (v *Validator) ValidateAll() error {
	if err := v.validateDatabase(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := v.validateBreaker(); err != nil {
		return fmt.Errorf("breaker: %w", err)
	}
	if err := v.validateDuplicate(); err != nil {
		return fmt.Errorf("duplicate: %w", err)
	}
	if err := v.validateFreshness(); err != nil {
		return fmt.Errorf("freshness: %w", err)
	}
	if err := v.validateDelivery(); err != nil {
		return fmt.Errorf("delivery: %w", err)
	}
	if v.cfg.PipelineVersion == "" {
		return NewValidationError("pipeline_version", fmt.Errorf("must not be empty"))
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	d := v.cfg.Database
	if d.DSN == "" {
		return NewValidationError("database.dsn", fmt.Errorf("required"))
	}
	if d.MaxConns < 1 {
		return NewValidationError("database.max_conns", fmt.Errorf("must be at least 1, got %d", d.MaxConns))
	}
	if d.MinConns > d.MaxConns {
		return NewValidationError("database.min_conns", fmt.Errorf("must not exceed max_conns"))
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q.WorkerCount < 1 || q.WorkerCount > 256 {
		return NewValidationError("queue.worker_count", fmt.Errorf("must be between 1 and 256, got %d", q.WorkerCount))
	}
	if q.ClaimBatchSize < 1 {
		return NewValidationError("queue.claim_batch_size", fmt.Errorf("must be at least 1"))
	}
	if q.JobWallClockTimeout <= 0 {
		return NewValidationError("queue.job_wall_clock_timeout_s", fmt.Errorf("must be positive"))
	}
	if q.StaleRequeueAfter <= q.JobWallClockTimeout {
		return NewValidationError("queue.stale_requeue_s", fmt.Errorf("must exceed job_wall_clock_timeout_s to avoid requeuing live jobs"))
	}
	if q.MaxAttempts < 1 {
		return NewValidationError("queue.max_attempts", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *Validator) validateLLM() error {
	l := v.cfg.LLM
	if l.Model == "" {
		return NewValidationError("llm.llm_model", fmt.Errorf("required"))
	}
	if l.Timeout <= 0 {
		return NewValidationError("llm.llm_timeout_s", fmt.Errorf("must be positive"))
	}
	if l.MaxRetries < 0 {
		return NewValidationError("llm.llm_max_retries", fmt.Errorf("must be non-negative"))
	}
	return nil
}

func (v *Validator) validateBreaker() error {
	b := v.cfg.Breaker
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		return NewValidationError("breaker.failure_ratio", fmt.Errorf("must be in (0, 1], got %v", b.FailureRatio))
	}
	if b.WindowInterval <= 0 {
		return NewValidationError("breaker.window_interval", fmt.Errorf("must be positive"))
	}
	if b.OpenTimeout <= 0 {
		return NewValidationError("breaker.open_timeout", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *Validator) validateDuplicate() error {
	d := v.cfg.Duplicate
	if d.ThresholdLow > d.ThresholdMedium || d.ThresholdMedium > d.ThresholdHigh {
		return NewValidationError("dup_threshold", fmt.Errorf("must satisfy low <= medium <= high"))
	}
	if d.TimeWindowDays < 1 {
		return NewValidationError("dup_time_window_days", fmt.Errorf("must be at least 1"))
	}
	if d.BatchSize < 1 {
		return NewValidationError("dup_batch_size", fmt.Errorf("must be at least 1"))
	}
	w := d.Weights
	sum := w.Postal + w.Subjects + w.Levels + w.Rate + w.AssignmentCode + w.Temporal + w.TimeAvailability
	if sum <= 0 {
		return NewValidationError("dup_weights", fmt.Errorf("weights must sum to a positive value, got %v", sum))
	}
	return nil
}

func (v *Validator) validateFreshness() error {
	f := v.cfg.Freshness
	if f.GreenMax <= 0 || f.YellowMax <= f.GreenMax || f.OrangeMax <= f.YellowMax {
		return NewValidationError("freshness_tier_thresholds", fmt.Errorf("must satisfy green < yellow < orange"))
	}
	return nil
}

func (v *Validator) validateDelivery() error {
	d := v.cfg.Delivery
	switch d.BroadcastDuplicateMode {
	case BroadcastAll, BroadcastPrimaryOnly, BroadcastPrimaryWithNote:
	default:
		return NewValidationError("broadcast_duplicate_mode", fmt.Errorf("invalid mode: %s", d.BroadcastDuplicateMode))
	}
	if d.DMMaxDistanceKMDefault <= 0 {
		return NewValidationError("dm_max_distance_km_default", fmt.Errorf("must be positive"))
	}
	return nil
}
