package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tutordex/aggregator/pkg/config"
)

// Pool owns a fixed-size set of Workers plus the stale-requeue supervisor
// loop: Start spawns WorkerCount workers against one pipeline version,
// Stop drains them up to GracefulShutdownDrain, and a background ticker
// calls requeue_stale so jobs orphaned by a killed worker are recovered
// without any cross-worker coordination.
type Pool struct {
	podID   string
	store   Store
	cfg     config.QueueConfig
	workers []*Worker

	mu           sync.Mutex
	inFlight     map[string]context.CancelFunc
	requeueCount int
	lastRequeue  time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPool builds a Pool of cfg.WorkerCount workers, each running processor
// against pipelineVersion. podID identifies this process instance in
// worker ids and log lines.
func NewPool(podID, pipelineVersion string, store Store, processor Processor, cfg config.QueueConfig) *Pool {
	p := &Pool{
		podID:    podID,
		store:    store,
		cfg:      cfg,
		inFlight: make(map[string]context.CancelFunc),
		stopCh:   make(chan struct{}),
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		id := workerID(podID, i)
		p.workers = append(p.workers, NewWorker(id, podID, pipelineVersion, store, processor, cfg, p))
	}
	return p
}

func workerID(podID string, i int) string {
	return fmt.Sprintf("%s-worker-%d", podID, i)
}

// RegisterJob and UnregisterJob implement SessionRegistry, letting Stop's
// drain deadline forcibly cancel any job still running when it expires.
func (p *Pool) RegisterJob(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight[jobID] = cancel
}

func (p *Pool) UnregisterJob(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, jobID)
}

// Start launches every worker and the stale-requeue supervisor loop.
// Returns immediately; call Stop to shut down.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		w.Start(ctx)
	}
	p.wg.Add(1)
	go p.runRequeueLoop(ctx)
}

// Stop signals every worker to finish its current batch, waits up to
// cfg.GracefulShutdownDrain, then cancels any job contexts still
// outstanding so Stop always returns. Jobs killed this way are left in
// processing and recovered by the next requeue_stale cycle.
func (p *Pool) Stop() {
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		for _, w := range p.workers {
			w.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.GracefulShutdownDrain):
		slog.Warn("graceful shutdown drain deadline exceeded, cancelling in-flight jobs")
		p.mu.Lock()
		for jobID, cancel := range p.inFlight {
			slog.Warn("force-cancelling in-flight job at shutdown", "job_id", jobID)
			cancel()
		}
		p.mu.Unlock()
		<-done
	}

	p.wg.Wait()
}

func (p *Pool) runRequeueLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.StaleRequeueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			n, err := p.store.RequeueStale(ctx, p.cfg.StaleRequeueAfter)
			if err != nil {
				slog.Error("requeue_stale failed", "error", err)
				continue
			}
			p.mu.Lock()
			p.requeueCount += n
			p.lastRequeue = time.Now()
			p.mu.Unlock()
			if n > 0 {
				slog.Info("requeued stale jobs", "count", n)
			}
		}
	}
}

// Health reports the pool's aggregate state for the operator surface.
func (p *Pool) Health() PoolHealth {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := make([]WorkerHealth, 0, len(p.workers))
	active := 0
	for _, w := range p.workers {
		h := w.Health()
		stats = append(stats, h)
		if h.Status == string(WorkerStatusWorking) {
			active++
		}
	}

	return PoolHealth{
		IsHealthy:       true,
		PodID:           p.podID,
		ActiveWorkers:   active,
		TotalWorkers:    len(p.workers),
		WorkerStats:     stats,
		LastRequeueScan: p.lastRequeue,
		JobsRequeued:    p.requeueCount,
	}
}
