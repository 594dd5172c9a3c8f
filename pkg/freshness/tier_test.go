package freshness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutordex/aggregator/pkg/config"
)

type fakeStore struct {
	pages   []int // examined count per call, in order
	calls   int
	lastIDs []string
}

func (f *fakeStore) RecomputeFreshnessTiers(ctx context.Context, afterID string, greenMaxSecs, yellowMaxSecs, orangeMaxSecs float64, batchSize int) (int, string, error) {
	f.lastIDs = append(f.lastIDs, afterID)
	idx := f.calls
	f.calls++
	if idx >= len(f.pages) {
		return 0, afterID, nil
	}
	examined := f.pages[idx]
	return examined, "cursor-" + string(rune('a'+idx)), nil
}

func TestRecomputer_TickWalksUntilShortPage(t *testing.T) {
	fs := &fakeStore{pages: []int{5, 5, 2}}
	cfg := config.FreshnessConfig{BatchSize: 5, Interval: time.Hour}
	r := New(fs, cfg)

	require.NoError(t, r.tick(context.Background()))
	assert.Equal(t, 3, fs.calls)
	assert.Equal(t, []string{"", "cursor-a", "cursor-b"}, fs.lastIDs)
}

func TestRecomputer_TickNoOpOnEmptySet(t *testing.T) {
	fs := &fakeStore{pages: []int{0}}
	cfg := config.FreshnessConfig{BatchSize: 5, Interval: time.Hour}
	r := New(fs, cfg)

	require.NoError(t, r.tick(context.Background()))
	assert.Equal(t, 1, fs.calls)
}

func TestRecomputer_StopUnblocksRun(t *testing.T) {
	fs := &fakeStore{}
	cfg := config.FreshnessConfig{BatchSize: 5, Interval: time.Millisecond}
	r := New(fs, cfg)

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	r.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
