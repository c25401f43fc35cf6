package playlist

import "time"

// ItemType classifies a playlist entry.
type ItemType int

const (
	TypeDir ItemType = iota
	TypeSound
	TypeURL
	TypePlaylist
	TypeOther
)

func (t ItemType) String() string {
	switch t {
	case TypeDir:
		return "DIR"
	case TypeSound:
		return "SOUND"
	case TypeURL:
		return "URL"
	case TypePlaylist:
		return "PLAYLIST"
	default:
		return "OTHER"
	}
}

// Item is one entry in a Playlist. File is the item's key: immutable once
// set, and unique among non-deleted items in the same playlist.
type Item struct {
	File      string
	Type      ItemType
	TitleFile string
	TitleTags string
	Tags      *Tags
	Mtime     time.Time
	QueuePos  int
	Deleted   bool
}

// NewItem creates an Item for file, deriving TitleFile from the base name.
func NewItem(file string, typ ItemType) *Item {
	return &Item{
		File:      file,
		Type:      typ,
		TitleFile: baseTitleFromPath(file),
	}
}

// Clone returns a deep copy, independent of any mutation to it afterward —
// used when handing an item to an event consumer that outlives the
// playlist's own lock scope.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	cp := *it
	cp.Tags = it.Tags.Clone()
	return &cp
}

// Title returns TitleTags whenever it is non-empty, else
// TitleFile, the fallback used when ReadTags is on but tags have not (yet)
// been read.
func (it *Item) Title() string {
	if it.TitleTags != "" {
		return it.TitleTags
	}
	return it.TitleFile
}

// MarkDeleted tombstones the item: the filename is retained (so a deleted
// lookup can still resolve it) but tags and other content are freed.
// Items are never physically removed from a playlist; deletion sets the
// tombstone and frees content except the filename.
func (it *Item) MarkDeleted() {
	it.Deleted = true
	it.Tags = nil
	it.TitleTags = ""
}

func baseTitleFromPath(p string) string {
	// Plain slash-splitting is deliberate: playlist items may be URLs as
	// well as local paths, and both use '/' as the separator.
	i := len(p) - 1
	for i >= 0 && p[i] != '/' {
		i--
	}
	return p[i+1:]
}
