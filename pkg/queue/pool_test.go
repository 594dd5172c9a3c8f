package queue

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutordex/aggregator/pkg/config"
	aggerrors "github.com/tutordex/aggregator/pkg/errors"
	"github.com/tutordex/aggregator/pkg/model"
)

type fakePoolStore struct {
	mu           sync.Mutex
	jobs         []*model.ExtractionJob
	terminated   []string
	requeueCalls int32
}

func (f *fakePoolStore) GetRawMessage(ctx context.Context, rawID string) (*model.RawMessage, error) {
	return nil, nil
}

func (f *fakePoolStore) Claim(ctx context.Context, pipelineVersion, ownerID string, limit int) ([]*model.ExtractionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(f.jobs) {
		n = len(f.jobs)
	}
	claimed := f.jobs[:n]
	f.jobs = f.jobs[n:]
	return claimed, nil
}

func (f *fakePoolStore) Terminate(ctx context.Context, jobID string, status model.JobStatus, pipelineErr json.RawMessage, assignmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, jobID)
	return nil
}

func (f *fakePoolStore) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	atomic.AddInt32(&f.requeueCalls, 1)
	return 0, nil
}

func (f *fakePoolStore) UpsertAssignment(ctx context.Context, a *model.Assignment) (*model.Assignment, error) {
	return a, nil
}

func (f *fakePoolStore) CreateSegmentJobs(ctx context.Context, parentJobID, rawID, pipelineVersion string, segments []string) ([]*model.ExtractionJob, error) {
	return nil, nil
}

func (f *fakePoolStore) RecordTriageSample(ctx context.Context, jobID, stage, outcome, redactedText string) error {
	return nil
}

type fakeProcessor struct {
	calls int32
	delay time.Duration
}

func (p *fakeProcessor) Process(ctx context.Context, job *model.ExtractionJob) aggerrors.Outcome {
	atomic.AddInt32(&p.calls, 1)
	if p.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(p.delay):
		}
	}
	return aggerrors.Ok("assignment-" + job.ID)
}

func testQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		WorkerCount:           2,
		ClaimBatchSize:        5,
		JobWallClockTimeout:   time.Second,
		StaleRequeueAfter:     time.Minute,
		StaleRequeueInterval:  20 * time.Millisecond,
		PollInterval:          5 * time.Millisecond,
		PollIntervalJitter:    0,
		GracefulShutdownDrain: 200 * time.Millisecond,
		MaxAttempts:           5,
	}
}

func TestPool_ProcessesClaimedJobs(t *testing.T) {
	store := &fakePoolStore{jobs: []*model.ExtractionJob{
		{ID: "job-1"}, {ID: "job-2"}, {ID: "job-3"},
	}}
	proc := &fakeProcessor{}
	pool := NewPool("pod-a", "v1", store, proc, testQueueConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&proc.calls) == 3
	}, time.Second, 5*time.Millisecond)

	pool.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.terminated, 3)
}

func TestPool_RunsRequeueLoop(t *testing.T) {
	store := &fakePoolStore{}
	proc := &fakeProcessor{}
	pool := NewPool("pod-b", "v1", store, proc, testQueueConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&store.requeueCalls) >= 1
	}, time.Second, 5*time.Millisecond)

	pool.Stop()
}

func TestPool_RegisterAndUnregisterJob(t *testing.T) {
	pool := NewPool("pod-c", "v1", &fakePoolStore{}, &fakeProcessor{}, testQueueConfig())

	called := false
	pool.RegisterJob("job-x", func() { called = true })
	pool.mu.Lock()
	_, ok := pool.inFlight["job-x"]
	pool.mu.Unlock()
	assert.True(t, ok)

	pool.UnregisterJob("job-x")
	pool.mu.Lock()
	_, ok = pool.inFlight["job-x"]
	pool.mu.Unlock()
	assert.False(t, ok)
	assert.False(t, called)
}

func TestPool_StopForceCancelsOnDrainTimeout(t *testing.T) {
	store := &fakePoolStore{jobs: []*model.ExtractionJob{{ID: "slow-job"}}}
	proc := &fakeProcessor{delay: time.Second}
	cfg := testQueueConfig()
	cfg.WorkerCount = 1
	cfg.GracefulShutdownDrain = 20 * time.Millisecond
	cfg.JobWallClockTimeout = 5 * time.Second
	pool := NewPool("pod-d", "v1", store, proc, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&proc.calls) == 1
	}, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after drain deadline")
	}
}

func TestPool_Health(t *testing.T) {
	store := &fakePoolStore{}
	pool := NewPool("pod-e", "v1", store, &fakeProcessor{}, testQueueConfig())

	h := pool.Health()
	assert.Equal(t, "pod-e", h.PodID)
	assert.Equal(t, 2, h.TotalWorkers)
	assert.Len(t, h.WorkerStats, 2)
}
