package duplicate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutordex/aggregator/pkg/config"
	"github.com/tutordex/aggregator/pkg/model"
)

type fakeStore struct {
	candidates []*model.Assignment
	linkedWith []string // groupIDs passed to LinkGroup
	linkedGID  string
	linkErr    error
}

func (f *fakeStore) CandidateAssignments(ctx context.Context, excludeAgencyID string, windowDays, batchSize int) ([]*model.Assignment, error) {
	return f.candidates, nil
}

func (f *fakeStore) LinkGroup(ctx context.Context, newAssignmentID string, groupIDs []string, members []string, avgScore float64, algoVersion int) (string, error) {
	if f.linkErr != nil {
		return "", f.linkErr
	}
	f.linkedWith = groupIDs
	if f.linkedGID == "" {
		f.linkedGID = "group-new"
	}
	return f.linkedGID, nil
}

func TestDetector_NoCandidatesYieldsNilResult(t *testing.T) {
	fs := &fakeStore{}
	d := New(fs, config.Default().Duplicate)
	a := &model.Assignment{ID: "a1", AgencyID: "agency-a", PublishedAt: time.Now()}

	res, err := d.Detect(context.Background(), a)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestDetector_LinksCrossAgencyMatch(t *testing.T) {
	now := time.Now()
	rateLo, rateHi := 40.0, 45.0
	existing := &model.Assignment{
		ID:                "c1",
		AgencyID:          "agency-b",
		PostalCode:        []string{"520123"},
		SubjectsCanonical: []string{"MATH.SEC_EMATH"},
		SignalsLevels:     []string{"Secondary"},
		RateMin:           &rateLo,
		RateMax:           &rateHi,
		PublishedAt:       now.Add(-time.Hour),
	}
	fs := &fakeStore{candidates: []*model.Assignment{existing}}
	d := New(fs, config.Default().Duplicate)

	a := &model.Assignment{
		ID:                "a1",
		AgencyID:          "agency-a",
		PostalCode:        []string{"520123"},
		SubjectsCanonical: []string{"MATH.SEC_EMATH"},
		SignalsLevels:     []string{"Secondary"},
		RateMin:           &rateLo,
		RateMax:           &rateHi,
		PublishedAt:       now,
	}

	res, err := d.Detect(context.Background(), a)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "group-new", res.GroupID)
	assert.Equal(t, 1, res.MatchCount)
	assert.GreaterOrEqual(t, res.AvgScore, 70.0)
}

func TestDetector_PropagatesLinkError(t *testing.T) {
	now := time.Now()
	rateLo, rateHi := 40.0, 40.0
	existing := &model.Assignment{
		ID:          "c1",
		AgencyID:    "agency-b",
		PostalCode:  []string{"520123"},
		RateMin:     &rateLo,
		RateMax:     &rateHi,
		PublishedAt: now,
	}
	fs := &fakeStore{candidates: []*model.Assignment{existing}, linkErr: assertErr}
	d := New(fs, config.Default().Duplicate)

	a := &model.Assignment{
		ID: "a1", AgencyID: "agency-a", PostalCode: []string{"520123"},
		RateMin: &rateLo, RateMax: &rateHi, PublishedAt: now,
	}
	_, err := d.Detect(context.Background(), a)
	assert.Error(t, err)
}

var assertErr = assertError{}

type assertError struct{}

func (assertError) Error() string { return "link failed" }
