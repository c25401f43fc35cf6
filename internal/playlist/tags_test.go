package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagsMergePrefersOwnFilledData(t *testing.T) {
	decoderTags := &Tags{Title: "Decoder Title", Filled: FilledComments}
	icyTags := &Tags{Title: "ICY Title", Filled: FilledComments}

	decoderTags.Merge(icyTags)

	assert.Equal(t, "Decoder Title", decoderTags.Title)
}

func TestTagsMergeFillsFromOther(t *testing.T) {
	decoderTags := NewTags()
	icyTags := &Tags{Title: "ICY Title", Artist: "ICY Artist", Filled: FilledComments}

	decoderTags.Merge(icyTags)

	assert.Equal(t, "ICY Title", decoderTags.Title)
	assert.True(t, decoderTags.HasComments())
}

func TestTagsMergeTimeIndependentOfComments(t *testing.T) {
	a := &Tags{Title: "A", Filled: FilledComments}
	b := &Tags{Time: 120, Filled: FilledTime}

	a.Merge(b)

	assert.Equal(t, "A", a.Title)
	assert.Equal(t, 120, a.Time)
	assert.True(t, a.HasTime())
	assert.True(t, a.HasComments())
}

func TestTagsCloneIndependent(t *testing.T) {
	orig := &Tags{Title: "X", Filled: FilledComments}
	clone := orig.Clone()
	clone.Title = "Y"
	assert.Equal(t, "X", orig.Title)
}
