package redact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText_RedactsPhoneNumbers(t *testing.T) {
	in := "Call tutor at 9123 4567 or +65 8234-5678 for details"
	out := Text(in)
	assert.NotContains(t, out, "9123")
	assert.NotContains(t, out, "8234")
	assert.Contains(t, out, redactedPlaceholder)
}

func TestText_LeavesPostalCodesAlone(t *testing.T) {
	in := "Location near 560123, sec 3 student"
	assert.Equal(t, in, Text(in))
}

func TestPreview_Truncates(t *testing.T) {
	in := strings.Repeat("a", 100)
	out := Preview(in, 10)
	assert.Equal(t, 11, len([]rune(out))) // 10 chars + ellipsis
}

func TestPreview_NoTruncationWhenShort(t *testing.T) {
	in := "short text"
	assert.Equal(t, in, Preview(in, 100))
}
