package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tutordex/aggregator/pkg/config"
	"github.com/tutordex/aggregator/pkg/model"
)

// newTestStore starts a disposable postgres container, applies the
// embedded migrations, and returns a connected *Store. Mirrors the
// teacher's own testcontainers-based database test setup.
func newTestStore(t *testing.T) *Store {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Migrate(dsn))

	s, err := Open(ctx, config.DatabaseConfig{DSN: dsn, MaxConns: 5, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

// seedOpenAssignment inserts one open assignment via UpsertAssignment,
// backdating published_at so a batch of seeded rows sorts deterministically
// newest-first.
func seedOpenAssignment(t *testing.T, s *Store, agencyID, externalID string, publishedAt time.Time) {
	t.Helper()
	_, err := s.UpsertAssignment(context.Background(), &model.Assignment{
		AgencyID:                agencyID,
		ExternalID:              externalID,
		AcademicDisplayText:     "Sec 3 A Math",
		SignalsLevels:           []string{"Secondary"},
		SubjectsCanonical:       []string{"MATH.SEC_AMATH"},
		CanonicalizationVersion: 1,
		PublishedAt:             publishedAt,
		SourceLastSeen:          publishedAt,
	})
	require.NoError(t, err)
}

// TestListOpen_KeysetPaginationIsMonotonicAndComplete exercises scenario 6
// from spec.md §8: 120 open assignments, paginated 50/50/20, concatenated
// pages form a strictly descending (published_at, id) sequence with no
// repeats or gaps, and total_count is stable across every page. This also
// guards the newest-sort keyset cursor, which previously round-tripped
// time.Time's default String() form through the next-page query and broke
// on the second page.
func TestListOpen_KeysetPaginationIsMonotonicAndComplete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	const total = 120
	for i := 0; i < total; i++ {
		seedOpenAssignment(t, s, fmt.Sprintf("agency-%d", i%5), fmt.Sprintf("ext-%d", i),
			base.Add(time.Duration(i)*time.Minute))
	}

	var (
		seen       []*model.Assignment
		cursor     *Cursor
		pageSizes  []int
		totalCount int
	)
	for {
		page, next, count, err := s.ListOpen(ctx, ListFilters{ShowDuplicates: true}, SortNewest, cursor, 50)
		require.NoError(t, err)
		totalCount = count
		pageSizes = append(pageSizes, len(page))
		seen = append(seen, page...)
		if next == nil {
			break
		}
		cursor = next
	}

	require.Equal(t, total, totalCount)
	require.Equal(t, []int{50, 50, 20}, pageSizes)
	require.Len(t, seen, total)

	seenIDs := make(map[string]bool, len(seen))
	for i, a := range seen {
		require.False(t, seenIDs[a.ID], "duplicate assignment %s across pages", a.ID)
		seenIDs[a.ID] = true
		if i == 0 {
			continue
		}
		prev := seen[i-1]
		require.False(t, prev.PublishedAt.Before(a.PublishedAt),
			"page concatenation not descending on published_at at index %d", i)
		if prev.PublishedAt.Equal(a.PublishedAt) {
			require.Greater(t, prev.ID, a.ID,
				"equal published_at must tie-break descending on id at index %d", i)
		}
	}
}

// TestListOpen_DistanceCursorSurvivesRoundTrip guards the SortDistance
// keyset cursor: distance_km is a float, not a timestamp, and previously
// shared the newest-sort cursor's timestamp formatting, which produced an
// unparseable comparand on the second page.
func TestListOpen_DistanceCursorSurvivesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		seedOpenAssignment(t, s, fmt.Sprintf("agency-%d", i), fmt.Sprintf("dist-%d", i),
			base.Add(time.Duration(i)*time.Hour))
	}

	origin := 1.35
	filters := ListFilters{ShowDuplicates: true, OriginLat: &origin, OriginLon: &origin}

	page1, next, _, err := s.ListOpen(ctx, filters, SortDistance, nil, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotNil(t, next)

	page2, _, _, err := s.ListOpen(ctx, filters, SortDistance, next, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)

	for _, a := range page2 {
		for _, b := range page1 {
			require.NotEqual(t, a.ID, b.ID, "distance cursor returned a repeated row")
		}
	}
}
