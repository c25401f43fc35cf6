package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTitleBasic(t *testing.T) {
	tg := &Tags{Artist: "Air", Album: "Moon Safari", Title: "La Femme d'Argent", Track: 1, Filled: FilledComments}
	got := FormatTitle("%a - %t", tg)
	assert.Equal(t, "Air - La Femme d'Argent", got)
}

func TestFormatTitleMissingTagRendersEmpty(t *testing.T) {
	tg := NewTags()
	got := FormatTitle("[%a]", tg)
	assert.Equal(t, "[]", got)
}

func TestFormatTitleConditional(t *testing.T) {
	withArtist := &Tags{Artist: "Air", Filled: FilledComments}
	without := NewTags()

	assert.Equal(t, "Air", FormatTitle("%(a:%a:unknown)", withArtist))
	assert.Equal(t, "unknown", FormatTitle("%(a:%a:unknown)", without))
}

func TestFormatTitleEscapedPercent(t *testing.T) {
	tg := NewTags()
	assert.Equal(t, "100%", FormatTitle(`100\%`, tg))
}

func TestFormatTitleTrackNumber(t *testing.T) {
	tg := &Tags{Track: 7, Filled: FilledComments}
	assert.Equal(t, "07", FormatTitlePadded(tg))
}

// FormatTitlePadded is a small test-local helper that reads the track
// number field via tagField and pads it to two digits by hand, since the
// format language itself has no zero-pad directive.
func FormatTitlePadded(tg *Tags) string {
	n := tagField(tg, 'n')
	if len(n) == 1 {
		n = "0" + n
	}
	return n
}
