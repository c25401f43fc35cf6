package playlist

import (
	"log/slog"
	"os"

	"github.com/dhowden/tag"
)

// ReadTagsFromFile opens path and extracts Title/Artist/Album/Track using
// dhowden/tag, returning a populated Tags with FilledComments set. Time (the
// decode-derived duration) is the decoder's responsibility, not the tag
// reader's — "tags" (comments) and "time" (decoded duration) stay
// separately-filled halves of the same struct, never conflated.
//
// A file with no readable tag block is not an error: the caller falls back
// to Item.TitleFile, caching a "no tags" result rather than retrying on
// every access.
func ReadTagsFromFile(path string) (*Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		slog.Debug("no tags found", "path", path, "error", err)
		return NewTags(), nil
	}

	t := NewTags()
	track, _ := m.Track()
	t.Title = m.Title()
	t.Artist = m.Artist()
	t.Album = m.Album()
	t.Track = track
	t.Filled |= FilledComments
	return t, nil
}
