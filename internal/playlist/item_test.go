package playlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewItemDerivesTitleFile(t *testing.T) {
	it := NewItem("/music/artist/song.mp3", TypeSound)
	assert.Equal(t, "song.mp3", it.TitleFile)
	assert.Equal(t, "song.mp3", it.Title())
}

func TestNewItemURLTitle(t *testing.T) {
	it := NewItem("http://stream.example.com/show/live", TypeURL)
	assert.Equal(t, "live", it.TitleFile)
}

func TestItemTitlePrefersTags(t *testing.T) {
	it := NewItem("/music/song.mp3", TypeSound)
	it.TitleTags = "Real Title"
	assert.Equal(t, "Real Title", it.Title())
}

func TestMarkDeletedKeepsFile(t *testing.T) {
	it := NewItem("/music/song.mp3", TypeSound)
	it.TitleTags = "Real Title"
	it.Tags = NewTags()

	it.MarkDeleted()

	assert.True(t, it.Deleted)
	assert.Equal(t, "/music/song.mp3", it.File)
	assert.Nil(t, it.Tags)
	assert.Equal(t, "", it.TitleTags)
	assert.Equal(t, "song.mp3", it.Title())
}
