package playlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadM3UExtended(t *testing.T) {
	dir := t.TempDir()
	content := "#EXTM3U\n" +
		"#EXTINF:215,Air - La Femme d'Argent\n" +
		"a.mp3\n" +
		"#EXTINF:-1,Unknown Length\n" +
		"sub/b.flac\n" +
		"http://stream.example.com/radio\n"

	path := filepath.Join(dir, "list.m3u")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	pl, err := LoadM3U(path)
	require.NoError(t, err)
	require.Equal(t, 3, pl.Len())

	first, _ := pl.At(0)
	assert.Equal(t, filepath.Join(dir, "a.mp3"), first.File)
	assert.Equal(t, 215, first.Tags.Time)
	assert.Equal(t, "Air - La Femme d'Argent", first.Title())

	second, _ := pl.At(1)
	assert.Equal(t, filepath.Join(dir, "sub", "b.flac"), second.File)
	assert.Equal(t, UnknownTime, second.Tags.Time)

	third, _ := pl.At(2)
	assert.Equal(t, TypeURL, third.Type)
	assert.Equal(t, "http://stream.example.com/radio", third.File)
}

func TestSaveM3URoundTrip(t *testing.T) {
	dir := t.TempDir()
	pl := New()
	a := NewItem(filepath.Join(dir, "a.mp3"), TypeSound)
	tg := NewTags()
	tg.Time = 180
	tg.Title = "Track A"
	tg.Filled |= FilledTime | FilledComments
	a.Tags = tg
	a.TitleTags = tg.Title
	pl.Add(a)

	path := filepath.Join(dir, "out.m3u")
	require.NoError(t, SaveM3U(pl, path))

	reloaded, err := LoadM3U(path)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())

	item, _ := reloaded.At(0)
	assert.Equal(t, 180, item.Tags.Time)
	assert.Equal(t, "Track A", item.Title())
}
