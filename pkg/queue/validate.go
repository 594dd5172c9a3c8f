package queue

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tutordex/aggregator/pkg/extract"
)

// validationInput mirrors the fields of extract.CanonicalExtraction that
// carry business-rule constraints, tagged for go-playground/validator.
// Kept as a separate struct (rather than tagging CanonicalExtraction
// directly) so pkg/extract stays free of a validation-library dependency
// it otherwise has no use for.
type validationInput struct {
	ExternalID string   `validate:"required"`
	PostalCode []string `validate:"max=10,dive,len=6,numeric"`
	Address    []string `validate:"max=10"`
	LessonSchedule []string `validate:"max=20"`
	RateMin    *float64
	RateMax    *float64
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	return v
}

// validateExtraction enforces C5 step 5's schema and business rules
// against e, returning the ordered reason codes for a validation_failed
// outcome (empty when e passes).
func validateExtraction(e *extract.CanonicalExtraction) []string {
	in := validationInput{
		ExternalID:     e.ExternalID,
		PostalCode:     e.PostalCode,
		Address:        e.Address,
		LessonSchedule: e.LessonSchedule,
		RateMin:        e.RateMin,
		RateMax:        e.RateMax,
	}

	var reasons []string
	if err := structValidator.Struct(in); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				reasons = append(reasons, reasonCode(fe))
			}
		} else {
			reasons = append(reasons, "schema_invalid")
		}
	}

	if e.RateMin != nil && e.RateMax != nil && *e.RateMin > *e.RateMax {
		reasons = append(reasons, "rate_min_exceeds_rate_max")
	}

	return reasons
}

// reasonCode turns a validator.FieldError into a stable, lowercase reason
// code (e.g. "postalcode[1].len") rather than the library's
// human-readable message, so error_json.errors stays machine-comparable.
func reasonCode(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	return fmt.Sprintf("%s.%s", field, fe.Tag())
}
