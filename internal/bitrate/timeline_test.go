package bitrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsMinusOneWhenEmpty(t *testing.T) {
	tl := New()
	assert.Equal(t, -1, tl.Get(5))
}

func TestAddSkipsUnchangedBitrate(t *testing.T) {
	tl := New()
	tl.Add(0, 128)
	tl.Add(1, 128)
	assert.Equal(t, 128, tl.Get(1))
	assert.Len(t, tl.nodes, 1)
}

func TestAddSkipsSameTime(t *testing.T) {
	tl := New()
	tl.Add(0, 128)
	tl.Add(0, 256)
	assert.Len(t, tl.nodes, 1)
}

func TestGetReflectsAudiblePositionNotLatest(t *testing.T) {
	tl := New()
	tl.Add(0, 128)
	tl.Add(5, 256)
	tl.Add(10, 192)

	assert.Equal(t, 128, tl.Get(2))
	assert.Equal(t, 256, tl.Get(7))
	assert.Equal(t, 192, tl.Get(15))
}

func TestGetDiscardsPassedNodes(t *testing.T) {
	tl := New()
	tl.Add(0, 128)
	tl.Add(5, 256)

	tl.Get(6)
	assert.Len(t, tl.nodes, 1)
	assert.Equal(t, 256, tl.nodes[0].bitrate)
}

func TestClearEmpties(t *testing.T) {
	tl := New()
	tl.Add(0, 128)
	tl.Clear()
	assert.Equal(t, -1, tl.Get(0))
}

func TestAdoptTransfersAndEmptiesSource(t *testing.T) {
	src := New()
	src.Add(0, 64)
	src.Add(3, 96)

	dst := New()
	dst.Adopt(src)

	assert.Equal(t, 96, dst.Get(5))
	assert.Equal(t, -1, src.Get(5))
}
