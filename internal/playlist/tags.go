package playlist

// FilledMask records which Tags fields have actually been populated, so
// callers can distinguish "field is empty" from "field was never read".
type FilledMask uint8

const (
	FilledComments FilledMask = 1 << iota
	FilledTime
)

// UnknownTime is the sentinel Tags.Time value meaning "duration not known".
const UnknownTime = -1

// Tags holds the metadata fields tracked per playlist item.
type Tags struct {
	Title  string
	Artist string
	Album  string
	Track  int
	Time   int // seconds, UnknownTime if not known
	Filled FilledMask
}

// NewTags returns an empty Tags value with Time set to UnknownTime.
func NewTags() *Tags {
	return &Tags{Time: UnknownTime}
}

// Clone returns a deep copy (Tags has no reference fields, but Clone keeps
// the call sites honest about copy-vs-alias intent).
func (t *Tags) Clone() *Tags {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// HasComments reports whether title/artist/album/track have been filled.
func (t *Tags) HasComments() bool {
	return t.Filled&FilledComments != 0
}

// HasTime reports whether Time has been filled (not just != UnknownTime;
// a file can be known to have unknown time).
func (t *Tags) HasTime() bool {
	return t.Filled&FilledTime != 0
}

// Merge copies any fields present in other but not yet filled in t,
// preferring t's own data when both are filled. Used when ICY metadata and
// decoder tags both arrive for the same item.
func (t *Tags) Merge(other *Tags) {
	if other == nil {
		return
	}
	if !t.HasComments() && other.HasComments() {
		t.Title = other.Title
		t.Artist = other.Artist
		t.Album = other.Album
		t.Track = other.Track
		t.Filled |= FilledComments
	}
	if !t.HasTime() && other.HasTime() {
		t.Time = other.Time
		t.Filled |= FilledTime
	}
}
