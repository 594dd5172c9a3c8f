package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/tutordex/aggregator/pkg/config"
	aggerrors "github.com/tutordex/aggregator/pkg/errors"
	"github.com/tutordex/aggregator/pkg/model"
)

// SessionRegistry registers in-flight job ids against their cancel funcs,
// letting the pool force-cancel a specific job without querying the store.
type SessionRegistry interface {
	RegisterJob(jobID string, cancel context.CancelFunc)
	UnregisterJob(jobID string)
}

// Worker polls the store for claimable jobs and runs them through a
// Processor, one job at a time.
type Worker struct {
	id              string
	podID           string
	pipelineVersion string
	store           Store
	processor       Processor
	cfg             config.QueueConfig
	registry        SessionRegistry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker builds a Worker bound to its collaborators.
func NewWorker(id, podID, pipelineVersion string, store Store, processor Processor, cfg config.QueueConfig, registry SessionRegistry) *Worker {
	return &Worker{
		id:              id,
		podID:           podID,
		pipelineVersion: pipelineVersion,
		store:           store,
		processor:       processor,
		cfg:             cfg,
		registry:        registry,
		stopCh:          make(chan struct{}),
		status:          WorkerStatusIdle,
		lastActivity:    time.Now(),
	}
}

// Start begins the worker's polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current batch to
// finish. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports the worker's current status for PoolHealth.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        string(w.status),
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoJobsAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error claiming or processing jobs", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims up to ClaimBatchSize jobs and runs each through
// the processor sequentially, bounding LLM concurrency per worker: a
// batch gives a worker a short run of jobs before it has to re-poll,
// without ever running more than one job at a time.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	jobs, err := w.store.Claim(ctx, w.pipelineVersion, w.id, w.cfg.ClaimBatchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return ErrNoJobsAvailable
	}

	for _, job := range jobs {
		select {
		case <-w.stopCh:
			return nil
		default:
		}
		w.processOne(ctx, job)
	}
	return nil
}

func (w *Worker) processOne(ctx context.Context, job *model.ExtractionJob) {
	w.setStatus(WorkerStatusWorking, job.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobWallClockTimeout)
	if w.registry != nil {
		w.registry.RegisterJob(job.ID, cancel)
		defer w.registry.UnregisterJob(job.ID)
	}
	defer cancel()

	outcome := w.processor.Process(jobCtx, job)
	w.terminate(ctx, job, outcome)

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
}

// terminate applies outcome's terminal state transition. A Retry outcome
// leaves the row in processing on purpose: the worker pool's stale-requeue
// supervisor returns it to pending once StaleRequeueAfter elapses, which
// also gives the backoff in outcome.Backoff room to take effect without
// the worker itself needing a delayed-requeue primitive.
func (w *Worker) terminate(ctx context.Context, job *model.ExtractionJob, outcome aggerrors.Outcome) {
	if outcome.Kind == aggerrors.OutcomeRetry {
		slog.Info("job left in processing for stale requeue", "job_id", job.ID, "backoff", outcome.Backoff)
		return
	}

	status := model.JobOK
	switch outcome.Kind {
	case aggerrors.OutcomeSkip:
		status = model.JobSkipped
	case aggerrors.OutcomeFail:
		status = model.JobFailed
	}

	var errJSON json.RawMessage
	if outcome.Err != nil {
		b, err := json.Marshal(outcome.Err)
		if err != nil {
			slog.Error("failed to marshal pipeline error", "job_id", job.ID, "error", err)
		} else {
			errJSON = b
		}
	}

	if err := w.store.Terminate(ctx, job.ID, status, errJSON, outcome.AssignmentID); err != nil {
		slog.Error("failed to terminate job", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int63n(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
