package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tutordex/aggregator/pkg/store"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// ListOpen handles GET /assignments: list_open(filters, sort, cursor,
// limit≤200). Filters and cursor arrive as query parameters; the cursor
// is the plain sort value and id in two parameters, cursor_value and
// cursor_id, rather than an encoded token, since nothing in this surface
// needs to hide it from the client.
func (s *Server) ListOpen(c *gin.Context) {
	filters := parseListFilters(c)

	sort := store.SortNewest
	if c.Query("sort") == string(store.SortDistance) {
		sort = store.SortDistance
	}

	limit := defaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var cursor *store.Cursor
	if v, id := c.Query("cursor_value"), c.Query("cursor_id"); v != "" && id != "" {
		cursor = &store.Cursor{SortValue: v, ID: id}
	}

	rows, next, total, err := s.store.ListOpen(c.Request.Context(), filters, sort, cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing failed"})
		return
	}

	resp := gin.H{
		"assignments": rows,
		"total_count": total,
	}
	if next != nil {
		resp["next_cursor"] = gin.H{"value": next.SortValue, "id": next.ID}
	}
	c.JSON(http.StatusOK, resp)
}

// FacetsHandler handles GET /assignments/facets.
func (s *Server) FacetsHandler(c *gin.Context) {
	filters := parseListFilters(c)

	facets, err := s.store.Facets(c.Request.Context(), filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "facets failed"})
		return
	}
	c.JSON(http.StatusOK, facets)
}

// parseListFilters maps the query string onto store.ListFilters: level,
// specific level, subject, agency, region shorthand, tutor type, min
// rate, show_duplicates, and an optional lat/lon origin for distance
// sort.
func parseListFilters(c *gin.Context) store.ListFilters {
	f := store.ListFilters{
		Level:          c.Query("level"),
		SpecificLevel:  c.Query("specific_level"),
		Subject:        c.Query("subject"),
		Agency:         c.Query("agency"),
		Region:         c.Query("region"),
		TutorType:      c.Query("tutor_type"),
		ShowDuplicates: true,
	}

	if v := c.Query("min_rate"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinRate = &n
		}
	}
	if v := c.Query("show_duplicates"); v != "" {
		f.ShowDuplicates, _ = strconv.ParseBool(v)
	}
	if lat, lon := c.Query("origin_lat"), c.Query("origin_lon"); lat != "" && lon != "" {
		if la, err := strconv.ParseFloat(lat, 64); err == nil {
			if lo, err := strconv.ParseFloat(lon, 64); err == nil {
				f.OriginLat = &la
				f.OriginLon = &lo
			}
		}
	}
	return f
}
