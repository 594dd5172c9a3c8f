package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tutordex/aggregator/pkg/model"
	"github.com/tutordex/aggregator/pkg/queue"
	"github.com/tutordex/aggregator/pkg/store"
)

type fakeListingStore struct {
	healthy    error
	rows       []*model.Assignment
	nextCursor *store.Cursor
	total      int
	facets     *store.Facets
	err        error

	gotFilters store.ListFilters
	gotSort    store.Sort
	gotCursor  *store.Cursor
	gotLimit   int
}

func (f *fakeListingStore) ListOpen(ctx context.Context, filters store.ListFilters, sort store.Sort, cursor *store.Cursor, limit int) ([]*model.Assignment, *store.Cursor, int, error) {
	f.gotFilters = filters
	f.gotSort = sort
	f.gotCursor = cursor
	f.gotLimit = limit
	if f.err != nil {
		return nil, nil, 0, f.err
	}
	return f.rows, f.nextCursor, f.total, nil
}

func (f *fakeListingStore) Facets(ctx context.Context, filters store.ListFilters) (*store.Facets, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.facets, nil
}

func (f *fakeListingStore) Healthy(ctx context.Context) error {
	return f.healthy
}

type fakePoolHealth struct {
	health queue.PoolHealth
}

func (f *fakePoolHealth) Health() queue.PoolHealth { return f.health }

func TestServer_Health_OK(t *testing.T) {
	s := NewServer(&fakeListingStore{}, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Health_Unhealthy(t *testing.T) {
	s := NewServer(&fakeListingStore{healthy: errors.New("db down")}, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_WorkerHealth_NilPool(t *testing.T) {
	s := NewServer(&fakeListingStore{}, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/workers", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "not_running")
}

func TestServer_WorkerHealth_WithPool(t *testing.T) {
	pool := &fakePoolHealth{health: queue.PoolHealth{IsHealthy: true, PodID: "pod-1", TotalWorkers: 3}}
	s := NewServer(&fakeListingStore{}, pool, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/workers", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pod-1")
}

func TestServer_MetricsOmittedWhenGathererNil(t *testing.T) {
	s := NewServer(&fakeListingStore{}, nil, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
