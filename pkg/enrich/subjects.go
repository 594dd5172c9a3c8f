package enrich

import (
	"embed"
	"encoding/csv"
	"io"
	"strings"
	"sync"

	"github.com/tutordex/aggregator/pkg/model"
)

//go:embed data/subject_aliases.csv
var subjectFS embed.FS

// CanonicalizationVersion is stamped onto every assignment enriched by
// this table. Bump it whenever the alias table's mapping changes meaning;
// canonicalization_version must monotonically increase across
// reprocessings so callers can tell which mapping produced a given row.
const CanonicalizationVersion = 3

type subjectAlias struct {
	Canonical string
	General   string
}

var (
	subjectOnce  sync.Once
	subjectTable map[string]subjectAlias
	subjectErr   error
)

func loadSubjectTable() (map[string]subjectAlias, error) {
	subjectOnce.Do(func() {
		f, err := subjectFS.Open("data/subject_aliases.csv")
		if err != nil {
			subjectErr = err
			return
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.Read() // header

		table := make(map[string]subjectAlias)
		for {
			rec, err := r.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				subjectErr = err
				return
			}
			key := strings.ToLower(strings.TrimSpace(rec[0]))
			table[key] = subjectAlias{Canonical: rec[1], General: rec[2]}
		}
		subjectTable = table
	})
	return subjectTable, subjectErr
}

// CanonicalizeSubjects maps the free-text labels in signalsSubjects
// through the alias table to stable canonical codes and their parent
// general categories. The table is keyed by label alone; the student level
// is not consulted. Unknown labels are dropped from the
// canonical arrays (they remain in the caller's signals_subjects) and the
// result is deduplicated and order-stable.
func CanonicalizeSubjects(signalsSubjects []string) (canonical, general []string, err error) {
	table, err := loadSubjectTable()
	if err != nil {
		return nil, nil, err
	}

	seenC, seenG := map[string]bool{}, map[string]bool{}
	for _, label := range signalsSubjects {
		alias, ok := table[strings.ToLower(strings.TrimSpace(label))]
		if !ok {
			continue
		}
		if !seenC[alias.Canonical] {
			seenC[alias.Canonical] = true
			canonical = append(canonical, alias.Canonical)
		}
		if alias.General != "" && !seenG[alias.General] {
			seenG[alias.General] = true
			general = append(general, alias.General)
		}
	}
	return canonical, general, nil
}

// ApplyCanonicalization runs CanonicalizeSubjects over a's signal rollups
// and stamps the result plus CanonicalizationVersion onto a. Re-running
// ApplyCanonicalization on an already-canonicalized assignment is the
// identity: canonical codes are also valid keys in the alias table as
// pass-through self-mappings (seeded into data/subject_aliases.csv).
func ApplyCanonicalization(a *model.Assignment) error {
	canonical, general, err := CanonicalizeSubjects(a.SignalsSubjects)
	if err != nil {
		return err
	}
	a.SubjectsCanonical = canonical
	a.SubjectsGeneral = general
	a.CanonicalizationVersion = CanonicalizationVersion
	return nil
}
