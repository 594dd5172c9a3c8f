package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tutordex/aggregator/pkg/model"
)

// ListFilters mirrors the filter set enumerated in the listing surface
// (C9): level, specific level, subject, agency, free-text location/region,
// tutor type, min rate, and show_duplicates. There is no learning-mode
// filter.
type ListFilters struct {
	Level           string
	SpecificLevel   string
	Subject         string
	Agency          string
	Region          string
	TutorType       string
	MinRate         *float64
	ShowDuplicates  bool
	OriginLat       *float64
	OriginLon       *float64
}

// Sort selects the keyset pagination ordering.
type Sort string

const (
	SortNewest   Sort = "newest"
	SortDistance Sort = "distance"
)

// Cursor is the opaque keyset pagination position. For SortNewest it
// carries (sort_ts, id); for SortDistance it carries (distance_km, id).
type Cursor struct {
	SortValue string
	ID        string
}

// ListOpen returns up to limit open assignments matching filters, ordered
// per sort, strictly after cursor. The returned cursor is nil when no
// further page exists.
func (s *Store) ListOpen(ctx context.Context, filters ListFilters, sort Sort, cursor *Cursor, limit int) ([]*model.Assignment, *Cursor, int, error) {
	where, args := buildWhere(filters)

	total, err := s.countOpen(ctx, where, args)
	if err != nil {
		return nil, nil, 0, err
	}

	orderBy, sortExpr := "published_at DESC, id DESC", "COALESCE(published_at, created_at, last_seen)"
	if sort == SortDistance {
		orderBy = "distance_km ASC NULLS LAST, last_seen DESC, id DESC"
	}

	query := assignmentSelectColumns + `,
		` + sortExpr + ` AS sort_ts` + distanceSelectExpr(filters) + `
		FROM assignments
		WHERE ` + where

	if cursor != nil {
		op, valueType := "<", "timestamptz"
		if sort == SortDistance {
			op, valueType = ">", "double precision"
		}
		query += fmt.Sprintf(" AND (%s) %s ($%d::%s, $%d::uuid)", cursorTuple(sort), op, len(args)+1, valueType, len(args)+2)
		args = append(args, cursor.SortValue, cursor.ID)
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT $%d", orderBy, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("listing open assignments: %w", err)
	}
	defer rows.Close()

	var out []*model.Assignment
	var lastSortValue, lastID string
	for rows.Next() {
		a, sortTS, distance, err := scanAssignmentListRow(rows)
		if err != nil {
			return nil, nil, 0, err
		}
		out = append(out, a)
		lastSortValue = formatCursorValue(sort, sortTS, distance)
		lastID = a.ID
	}
	if err := rows.Err(); err != nil {
		return nil, nil, 0, err
	}

	var next *Cursor
	if len(out) == limit {
		next = &Cursor{SortValue: lastSortValue, ID: lastID}
	}
	return out, next, total, nil
}

func (s *Store) countOpen(ctx context.Context, where string, args []any) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM assignments WHERE `+where, args...).Scan(&count)
	return count, err
}

func buildWhere(f ListFilters) (string, []any) {
	clauses := []string{"status = 'open'"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Level != "" {
		clauses = append(clauses, fmt.Sprintf("%s = ANY(signals_levels)", arg(f.Level)))
	}
	if f.SpecificLevel != "" {
		clauses = append(clauses, fmt.Sprintf("%s = ANY(signals_specific_student_levels)", arg(f.SpecificLevel)))
	}
	if f.Subject != "" {
		v := arg(f.Subject)
		clauses = append(clauses, fmt.Sprintf(
			"(%s = ANY(signals_subjects) OR %s = ANY(subjects_canonical) OR %s = ANY(subjects_general))", v, v, v))
	}
	if f.Agency != "" {
		clauses = append(clauses, fmt.Sprintf("agency_id = %s", arg(f.Agency)))
	}
	if f.Region != "" {
		clauses = append(clauses, fmt.Sprintf("region ILIKE %s", arg("%"+f.Region+"%")))
	}
	if f.TutorType != "" {
		clauses = append(clauses, fmt.Sprintf("tutor_types @> %s::jsonb", arg(fmt.Sprintf(`[{"tag":"%s"}]`, f.TutorType))))
	}
	if f.MinRate != nil {
		clauses = append(clauses, fmt.Sprintf("rate_max >= %s", arg(*f.MinRate)))
	}
	if !f.ShowDuplicates {
		clauses = append(clauses, "(duplicate_group_id IS NULL OR is_primary_in_group)")
	}

	return strings.Join(clauses, " AND "), args
}

func distanceSelectExpr(f ListFilters) string {
	if f.OriginLat == nil || f.OriginLon == nil {
		return ", NULL::double precision AS distance_km"
	}
	return fmt.Sprintf(`,
		CASE WHEN postal_lat IS NOT NULL AND postal_lon IS NOT NULL THEN
			6371 * acos(LEAST(1.0, GREATEST(-1.0,
				cos(radians(%f)) * cos(radians(postal_lat)) * cos(radians(postal_lon) - radians(%f))
				+ sin(radians(%f)) * sin(radians(postal_lat))
			)))
		ELSE NULL END AS distance_km`, *f.OriginLat, *f.OriginLon, *f.OriginLat)
}

func cursorTuple(sort Sort) string {
	if sort == SortDistance {
		return "COALESCE(distance_km, 1e9), id"
	}
	return "COALESCE(published_at, created_at, last_seen), id"
}

// formatCursorValue encodes the sort-key half of a keyset cursor in a form
// Postgres can parse back unambiguously: RFC3339Nano for the newest sort's
// timestamp (not Go's default time.Time string form, which is not a valid
// timestamptz literal), or the plain float text for the distance sort's
// COALESCE(distance_km, 1e9) comparand.
func formatCursorValue(sort Sort, sortTS time.Time, distance *float64) string {
	if sort == SortDistance {
		d := 1e9
		if distance != nil {
			d = *distance
		}
		return strconv.FormatFloat(d, 'g', -1, 64)
	}
	return sortTS.Format(time.RFC3339Nano)
}

// listRowScanner adapts a pgx row to rowScanner by appending the query's
// two trailing computed columns (sort_ts, distance_km) to whatever
// destinations scanAssignment supplies, so the base assignment columns
// and the two extras are consumed in a single Scan call.
type listRowScanner struct {
	rows     interface{ Scan(dest ...any) error }
	sortTS   time.Time
	distance *float64
}

func (l *listRowScanner) Scan(dest ...any) error {
	return l.rows.Scan(append(dest, &l.sortTS, &l.distance)...)
}

func scanAssignmentListRow(rows interface{ Scan(dest ...any) error }) (*model.Assignment, time.Time, *float64, error) {
	scanner := &listRowScanner{rows: rows}
	a, err := scanAssignment(scanner)
	if err != nil {
		return nil, time.Time{}, nil, err
	}
	return a, scanner.sortTS, scanner.distance, nil
}

// Facets aggregates open-assignment counts by subject, level and agency
// for the given base filters, used by the listing API's facets endpoint.
type Facets struct {
	Subjects map[string]int
	Levels   map[string]int
	Agencies map[string]int
}

func (s *Store) Facets(ctx context.Context, filters ListFilters) (*Facets, error) {
	where, args := buildWhere(filters)

	f := &Facets{Subjects: map[string]int{}, Levels: map[string]int{}, Agencies: map[string]int{}}

	if err := aggregateArrayFacet(ctx, s, "subjects_canonical", where, args, f.Subjects); err != nil {
		return nil, err
	}
	if err := aggregateArrayFacet(ctx, s, "signals_levels", where, args, f.Levels); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT agency_id, count(*) FROM assignments WHERE `+where+` GROUP BY agency_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregating agency facet: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var agency string
		var count int
		if err := rows.Scan(&agency, &count); err != nil {
			return nil, err
		}
		f.Agencies[agency] = count
	}
	return f, rows.Err()
}

func aggregateArrayFacet(ctx context.Context, s *Store, column, where string, args []any, into map[string]int) error {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT value, count(*) FROM assignments, unnest(%s) AS value
		WHERE %s GROUP BY value`, column, where), args...)
	if err != nil {
		return fmt.Errorf("aggregating %s facet: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var value string
		var count int
		if err := rows.Scan(&value, &count); err != nil {
			return err
		}
		into[value] = count
	}
	return rows.Err()
}
