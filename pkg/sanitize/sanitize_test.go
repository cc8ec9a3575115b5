package sanitize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestRedactPII(t *testing.T) {
	in := "Reach me at jane.doe@example.com or +31 6 1234 5678 after five."
	out := RedactPII(in)
	assert.NotContains(t, out, "jane.doe@example.com")
	assert.NotContains(t, out, "1234 5678")
	assert.Contains(t, out, "[redacted email]")
	assert.Contains(t, out, "[redacted phone]")

	assert.Equal(t, "", RedactPII(""))
	assert.Equal(t, "room 12 on floor 3", RedactPII("room 12 on floor 3"))
}

func TestSummary_CutsAtWordBoundary(t *testing.T) {
	s := "a short sentence about an estate dispute"
	got := Summary(s, 20)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, len(strings.TrimSuffix(got, "…")), 20)
	assert.NotContains(t, got, "  ")

	assert.Equal(t, s, Summary(s, len(s)))
}

// A spaceless string forces the byte cut; the cut must back up to a rune
// boundary instead of splitting a multi-byte character.
func TestSummary_NeverSplitsRunes(t *testing.T) {
	s := strings.Repeat("ü", 30) // 2 bytes each, no spaces
	for max := 1; max < 12; max++ {
		got := Summary(s, max)
		assert.True(t, utf8.ValidString(got), "max %d produced invalid UTF-8: %q", max, got)
	}
}
