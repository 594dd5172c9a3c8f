package duplicate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tutordex/aggregator/pkg/config"
	"github.com/tutordex/aggregator/pkg/model"
)

func defaultWeights() config.DuplicateWeights {
	return config.Default().Duplicate.Weights
}

func TestScore_ExactPostalAndSubjectMatch(t *testing.T) {
	now := time.Now()
	rateLo, rateHi := 40.0, 40.0
	a := &model.Assignment{
		PostalCode:         []string{"520123"},
		SubjectsCanonical:  []string{"MATH.SEC_EMATH"},
		SignalsLevels:      []string{"Secondary"},
		RateMin:            &rateLo,
		RateMax:            &rateHi,
		PublishedAt:        now,
	}
	c := &model.Assignment{
		PostalCode:         []string{"520123"},
		SubjectsCanonical:  []string{"MATH.SEC_EMATH"},
		SignalsLevels:      []string{"Secondary"},
		RateMin:            &rateLo,
		RateMax:            &rateHi,
		PublishedAt:        now.Add(time.Hour),
	}

	score := Score(a, c, defaultWeights())
	assert.GreaterOrEqual(t, score, 90.0, "near-identical postings should score in the high tier")
}

func TestScore_NoOverlapYieldsZero(t *testing.T) {
	a := &model.Assignment{
		PostalCode:  []string{"520123"},
		PublishedAt: time.Now(),
	}
	c := &model.Assignment{
		PostalCode:  []string{"650456"},
		PublishedAt: time.Now().Add(-30 * 24 * time.Hour),
	}
	assert.Zero(t, Score(a, c, defaultWeights()))
}

func TestPostalFuzzyMatch(t *testing.T) {
	assert.True(t, fuzzyPostalMatch("520123", "520125", 2))
	assert.True(t, fuzzyPostalMatch("520123", "520145", 2))
	assert.False(t, fuzzyPostalMatch("520123", "520999", 2))
	assert.False(t, fuzzyPostalMatch("520123", "630123", 2))
}

func TestJaccardScore(t *testing.T) {
	assert.Equal(t, 1.0, jaccardScore([]string{"a", "b"}, []string{"b", "a"}))
	assert.Equal(t, 0.5, jaccardScore([]string{"a", "b"}, []string{"a"}))
	assert.Equal(t, 0.0, jaccardScore(nil, nil))
}

func TestCodeScore_PrefixAndExact(t *testing.T) {
	w := defaultWeights()
	a := &model.Assignment{AssignmentCode: "REF-1234"}
	c := &model.Assignment{AssignmentCode: "1234"}
	assert.Equal(t, w.AssignmentCode, codeScore(a, c, w))

	c2 := &model.Assignment{AssignmentCode: "12345"}
	assert.Equal(t, w.AssignmentCode*w.CodePrefixFactor, codeScore(a, c2, w))
}

func TestClassify(t *testing.T) {
	cfg := config.Default().Duplicate
	assert.Equal(t, TierHigh, Classify(95, cfg))
	assert.Equal(t, TierMedium, Classify(75, cfg))
	assert.Equal(t, TierLow, Classify(60, cfg))
	assert.Equal(t, TierNone, Classify(10, cfg))
	assert.True(t, Classify(75, cfg).Linkable())
	assert.False(t, Classify(60, cfg).Linkable())
}
