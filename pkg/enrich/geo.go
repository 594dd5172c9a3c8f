// Package enrich implements the deterministic enrichers (C2): pure,
// idempotent functions over the LLM's canonical extraction plus the raw
// post text. Nothing here calls the network or the database; enrichers
// are unit-testable in isolation and re-running any of them twice yields
// bit-identical output.
package enrich

import (
	"embed"
	"encoding/csv"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/tutordex/aggregator/pkg/model"
)

//go:embed data/postal_lookup.csv
var postalFS embed.FS

var postalPattern = regexp.MustCompile(`^\d{6}$`)

// postalRecord is one row of the embedded postal->geo lookup table.
type postalRecord struct {
	Lat        float64
	Lon        float64
	Region     string
	MRTName    string
	MRTLine    string
	DistanceM  float64
}

var (
	postalOnce  sync.Once
	postalTable map[string]postalRecord
	postalErr   error
)

func loadPostalTable() (map[string]postalRecord, error) {
	postalOnce.Do(func() {
		f, err := postalFS.Open("data/postal_lookup.csv")
		if err != nil {
			postalErr = err
			return
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.Read() // header

		table := make(map[string]postalRecord)
		for {
			rec, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				postalErr = err
				return
			}
			table[rec[0]] = postalRecord{
				Lat:       parseFloat(rec[1]),
				Lon:       parseFloat(rec[2]),
				Region:    rec[3],
				MRTName:   rec[4],
				MRTLine:   rec[5],
				DistanceM: parseFloat(rec[6]),
			}
		}
		postalTable = table
	})
	return postalTable, postalErr
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

// EnrichGeo resolves the first valid six-digit postal code to
// (lat, lon, region, nearest_mrt) from the embedded lookup. When only an
// estimated postal is present (no exact match in PostalCode), it marks
// PostalCoordsEstimated true rather than leaving coordinates unset.
func EnrichGeo(a *model.Assignment) error {
	table, err := loadPostalTable()
	if err != nil {
		return err
	}

	for _, code := range a.PostalCode {
		code = strings.TrimSpace(code)
		if !postalPattern.MatchString(code) {
			continue
		}
		if rec, ok := table[code]; ok {
			lat, lon := rec.Lat, rec.Lon
			a.PostalLat = &lat
			a.PostalLon = &lon
			a.Region = rec.Region
			a.NearestMRT = &model.NearestMRT{Name: rec.MRTName, Line: rec.MRTLine, DistanceM: rec.DistanceM}
			a.PostalCoordsEstimated = false
			return nil
		}
	}

	for _, code := range a.PostalCodeEstimated {
		code = strings.TrimSpace(code)
		prefix := code
		if len(prefix) > 2 {
			prefix = prefix[:2]
		}
		for pc, rec := range table {
			if strings.HasPrefix(pc, prefix) {
				lat, lon := rec.Lat, rec.Lon
				a.PostalLat = &lat
				a.PostalLon = &lon
				a.Region = rec.Region
				a.PostalCoordsEstimated = true
				return nil
			}
		}
	}

	return nil
}
