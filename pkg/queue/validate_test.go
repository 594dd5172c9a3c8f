package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tutordex/aggregator/pkg/extract"
)

func ptr(f float64) *float64 { return &f }

func TestValidateExtraction_PassesOnValidInput(t *testing.T) {
	e := &extract.CanonicalExtraction{
		ExternalID: "ext-1",
		PostalCode: []string{"560123"},
		RateMin:    ptr(20),
		RateMax:    ptr(30),
	}
	assert.Empty(t, validateExtraction(e))
}

func TestValidateExtraction_MissingExternalID(t *testing.T) {
	e := &extract.CanonicalExtraction{}
	reasons := validateExtraction(e)
	assert.Contains(t, reasons, "externalid.required")
}

func TestValidateExtraction_BadPostalCode(t *testing.T) {
	e := &extract.CanonicalExtraction{ExternalID: "ext-1", PostalCode: []string{"12345"}}
	reasons := validateExtraction(e)
	assert.NotEmpty(t, reasons)
}

func TestValidateExtraction_RateMinExceedsMax(t *testing.T) {
	e := &extract.CanonicalExtraction{ExternalID: "ext-1", RateMin: ptr(50), RateMax: ptr(20)}
	reasons := validateExtraction(e)
	assert.Contains(t, reasons, "rate_min_exceeds_rate_max")
}
