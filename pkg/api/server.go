// Package api implements the listing query surface (C9) as a thin gin
// HTTP server: two read-only endpoints over pkg/store's keyset-paginated
// ListOpen and Facets RPCs, plus operator health endpoints exposing the
// worker pool and database status. Public-facing authentication and rate
// limiting are out of scope, so this stays a narrow internal surface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutordex/aggregator/pkg/model"
	"github.com/tutordex/aggregator/pkg/queue"
	"github.com/tutordex/aggregator/pkg/store"
	"github.com/tutordex/aggregator/pkg/version"
)

// Store is the subset of pkg/store's RPCs the listing surface needs,
// narrowed to a consumer-defined interface so handlers are unit-testable
// against a fake store.
type Store interface {
	ListOpen(ctx context.Context, filters store.ListFilters, sort store.Sort, cursor *store.Cursor, limit int) ([]*model.Assignment, *store.Cursor, int, error)
	Facets(ctx context.Context, filters store.ListFilters) (*store.Facets, error)
	Healthy(ctx context.Context) error
}

// PoolHealth is the subset of pkg/queue's Pool the /health/workers
// endpoint reports.
type PoolHealth interface {
	Health() queue.PoolHealth
}

// Server is the gin-backed listing API, bound to its collaborators at
// construction time.
type Server struct {
	store    Store
	pool     PoolHealth
	gatherer prometheus.Gatherer
}

// NewServer builds a Server. pool and gatherer may both be nil: pool=nil
// makes health/workers report "not_running", gatherer=nil omits the
// /metrics route entirely.
func NewServer(st Store, pool PoolHealth, gatherer prometheus.Gatherer) *Server {
	return &Server{store: st, pool: pool, gatherer: gatherer}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.GET("/health", s.Health)
	r.GET("/health/workers", s.WorkerHealth)
	r.GET("/assignments", s.ListOpen)
	r.GET("/assignments/facets", s.FacetsHandler)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// Health handles GET /health.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Healthy(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.Full()})
}

// WorkerHealth handles GET /health/workers.
func (s *Server) WorkerHealth(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusOK, gin.H{"status": "not_running"})
		return
	}
	c.JSON(http.StatusOK, s.pool.Health())
}
