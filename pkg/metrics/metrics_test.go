package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStage_IncrementsCounterAndHistogram(t *testing.T) {
	r := New()
	r.ObserveStage("extract", "ok", 0.25)

	count := testutil.ToFloat64(r.StageOutcomes.WithLabelValues("extract", "ok"))
	assert.Equal(t, float64(1), count)
}

func TestGatherer_ExposesRegisteredMetrics(t *testing.T) {
	r := New()
	r.JobsClaimed.Inc()

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "aggregator_jobs_claimed_total" {
			found = true
		}
	}
	assert.True(t, found)
}
