package playlist

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const extm3uHeader = "#EXTM3U"
const extinfPrefix = "#EXTINF:"

// classifyPath decides an ItemType for a path taken from an m3u entry,
// without touching the filesystem: anything that parses as a URL with both
// a scheme and a host is TypeURL, a ".m3u"/".m3u8" suffix is TypePlaylist, everything
// else is TypeSound. Directory detection happens at browse time, not load
// time, (m3u entries name files, never directories).
func classifyPath(p string) ItemType {
	if u, err := url.Parse(p); err == nil && u.Scheme != "" && u.Host != "" {
		return TypeURL
	}
	ext := strings.ToLower(filepath.Ext(p))
	if ext == ".m3u" || ext == ".m3u8" {
		return TypePlaylist
	}
	return TypeSound
}

// resolveRelative turns a relative m3u entry into an absolute path anchored
// at the playlist file's own directory, leaving URLs and already-absolute
// paths untouched: relative entries resolve against the directory
// containing the .m3u, not the process cwd.
func resolveRelative(baseDir, p string) string {
	if classifyPath(p) == TypeURL {
		return p
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// LoadM3U reads an extended-M3U playlist file into a new Playlist. Lines of
// the form "#EXTINF:<seconds>,<title>" preceding a path populate that
// item's Tags.Time and Tags.Title without touching the filesystem or
// running a decoder, leaving Artist/Album unset until ReadTags (or the
// decoder) runs.
func LoadM3U(path string) (*Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	baseDir := filepath.Dir(path)
	pl := New()

	var pendingTags *Tags
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		if line == extm3uHeader {
			continue
		}
		if strings.HasPrefix(line, extinfPrefix) {
			pendingTags = parseExtinf(line)
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		resolved := resolveRelative(baseDir, line)
		item := NewItem(resolved, classifyPath(resolved))
		if pendingTags != nil {
			item.Tags = pendingTags
			if pendingTags.Title != "" {
				item.TitleTags = pendingTags.Title
			}
			pendingTags = nil
		}
		if _, err := pl.Add(item); err != nil && err != ErrDuplicateFile {
			return nil, fmt.Errorf("m3u: add %q: %w", resolved, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return pl, nil
}

// parseExtinf parses "#EXTINF:<seconds>,<title>" into a Tags with
// FilledTime (and FilledComments if a title is present). A negative or
// non-numeric duration is treated as UnknownTime rather than an error, so
// a malformed line degrades gracefully instead of aborting the load.
func parseExtinf(line string) *Tags {
	rest := line[len(extinfPrefix):]
	comma := strings.IndexByte(rest, ',')

	durStr := rest
	title := ""
	if comma >= 0 {
		durStr = rest[:comma]
		title = rest[comma+1:]
	}

	t := NewTags()
	if secs, err := strconv.Atoi(strings.TrimSpace(durStr)); err == nil && secs >= 0 {
		t.Time = secs
		t.Filled |= FilledTime
	}
	if title != "" {
		t.Title = title
		t.Filled |= FilledComments
	}
	return t
}

// SaveM3U writes pl to path in extended-M3U form. Items are written with
// their absolute File path; an #EXTINF line precedes each entry whose tags
// carry a known time or a title, matching its save_playlist
// convention of only emitting EXTINF when there is something worth saving.
func SaveM3U(pl *Playlist, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeM3U(f, pl)
}

func writeM3U(w io.Writer, pl *Playlist) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, extm3uHeader); err != nil {
		return err
	}

	for _, item := range pl.Items() {
		if item.Deleted {
			continue
		}
		if item.Tags != nil && (item.Tags.HasTime() || item.Tags.HasComments()) {
			secs := item.Tags.Time
			if secs == UnknownTime {
				secs = -1
			}
			title := item.Tags.Title
			if title == "" {
				title = item.TitleFile
			}
			if _, err := fmt.Fprintf(bw, "%s%d,%s\n", extinfPrefix, secs, title); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(bw, item.File); err != nil {
			return err
		}
	}
	return bw.Flush()
}
