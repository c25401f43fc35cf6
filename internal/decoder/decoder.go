// Package decoder defines the polymorphic decoder-plugin capability set
// and the backend-selection algorithm used to pick one for a
// given file or stream.
package decoder

import (
	"errors"
	"strings"

	"github.com/fluxradio/fluxd/internal/iostream"
	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// ErrSeekUnsupported is returned by Instance.Seek for backends that cannot
// seek (for example some AAC streams, where duration is only estimated).
var ErrSeekUnsupported = errors.New("decoder: seek not supported")

// ErrorKind classifies a decode error's severity.
type ErrorKind int

const (
	// ErrOK means no error.
	ErrOK ErrorKind = iota
	// ErrStream is recoverable: skip the current frame and continue.
	ErrStream
	// ErrFatal aborts the current item.
	ErrFatal
)

// Error carries a decode failure's severity alongside a human-readable
// message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Fatal reports whether e is a non-nil fatal error.
func (e *Error) Fatal() bool {
	return e != nil && e.Kind == ErrFatal
}

// Chunk is one decoded block of PCM plus the sound parameters it was
// produced in (format can change mid-stream for some codecs, e.g. on an
// ICY stream with an embedded format change).
type Chunk struct {
	PCM    []byte
	Params soundfmt.Params
}

// Instance is an open decoding session over one stream, returned by
// Backend.Open / Backend.OpenStream.
type Instance interface {
	// Decode pulls the next chunk of PCM. io.EOF signals clean end of
	// stream; any other error is reported via GetError.
	Decode() (Chunk, error)

	// Seek requests a position change to sec seconds and returns the
	// actual position landed on, or -1 with ErrSeekUnsupported/other
	// error if seeking failed or isn't supported.
	Seek(sec float64) (float64, error)

	// Close releases the decoder's state, including a stream the backend
	// opened itself in Open. The beep backends also close a stream that was
	// passed to OpenStream.
	Close() error

	// Bitrate returns the current instantaneous bitrate in kbps, or -1
	// if unknown.
	Bitrate() int

	// AvgBitrate returns the average bitrate in kbps over the whole
	// stream so far, or -1 if unknown.
	AvgBitrate() int

	// Duration returns the total duration in seconds, or -1 if unknown
	// (e.g. a live stream).
	Duration() float64

	// GetError returns the most recent error recorded by this instance,
	// or nil if none.
	GetError() *Error

	// CurrentTags reports updated tags (e.g. from an ICY metadata block)
	// and whether they changed since the last call.
	CurrentTags() (*playlist.Tags, bool)

	// Stream exposes the underlying I/O stream, used by the server to
	// call Abort() from outside the decode loop. Returns nil if this
	// instance owns no externally-abortable stream.
	Stream() iostream.Stream
}

// Backend is one decoder plugin: mandatory methods are always
// present, optional capabilities are probed with the Can* methods.
type Backend interface {
	// Name is a short identifier for this backend, used in preference
	// lists and diagnostics (load order in the registry breaks ties).
	Name() string

	// Open opens a local file or URI directly (the backend manages its
	// own I/O stream).
	Open(uri string) (Instance, error)

	// OpenStream opens an already-established I/O stream (used when the
	// resolver has sniffed a stream's content before committing to a
	// backend).
	OpenStream(s iostream.Stream) (Instance, error)

	// OurFormatExt reports whether this backend claims the given file
	// extension (without the leading dot, lowercased).
	OurFormatExt(ext string) bool

	// OurFormatMime reports whether this backend claims the given MIME
	// type (already lowercased, x- stripped, parameters removed).
	OurFormatMime(mime string) bool

	// CanDecode peeks (never consumes) the stream to content-sniff
	// whether this backend can handle it. Used when no MIME is known.
	CanDecode(s iostream.Stream) bool

	// Info fills in the fields named by mask in tags by reading the
	// file's metadata and/or computing its duration, without playing it.
	Info(file string, tags *playlist.Tags, mask playlist.FilledMask) error

	// GetName returns a short (<=3 char) backend tag used by legacy
	// clients to label the currently playing format.
	GetName() string
}

// Registry holds the set of loaded backends and the preference table used
// to select among them.
type Registry struct {
	backends []Backend
	prefsExt map[string][]string
	prefsMIME map[string][]string
}

// NewRegistry builds an empty registry. Backends are added in load order;
// that order is also the default fallback and wildcard-splice order.
func NewRegistry() *Registry {
	return &Registry{
		prefsExt:  make(map[string][]string),
		prefsMIME: make(map[string][]string),
	}
}

// Register appends a backend in load order.
func (r *Registry) Register(b Backend) {
	r.backends = append(r.backends, b)
}

// Backends returns all registered backends in load order.
func (r *Registry) Backends() []Backend {
	return r.backends
}

// wildcard in a preference list means "splice in every other registered
// backend, in load order, not already named in this list".
const wildcard = "*"

// PreferExt sets an ordered preference list of backend names for a file
// extension (without leading dot). ids may include wildcard.
func (r *Registry) PreferExt(ext string, ids []string) {
	r.prefsExt[ext] = ids
}

// PreferMIME sets an ordered preference list of backend names for a
// "type/subtype" MIME key (already normalized). ids may include wildcard.
func (r *Registry) PreferMIME(mime string, ids []string) {
	r.prefsMIME[mime] = ids
}

func (r *Registry) byName(name string) Backend {
	for _, b := range r.backends {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

// expand splices wildcard into the full load-ordered backend list, minus
// ids already explicitly present, preserving explicit entries' positions.
func (r *Registry) expand(ids []string) []Backend {
	named := make(map[string]bool, len(ids))
	for _, id := range ids {
		named[id] = true
	}

	var out []Backend
	for _, id := range ids {
		if id == wildcard {
			for _, b := range r.backends {
				if !named[b.Name()] || b.Name() == wildcard {
					out = append(out, b)
				}
			}
			continue
		}
		if b := r.byName(id); b != nil {
			out = append(out, b)
		}
	}
	return out
}

// Resolve picks a backend for filename (optionally with a known mime type)
// selection algorithm: preference list by extension, then
// preference list by MIME, then default MIME match, then default
// extension match.
func (r *Registry) Resolve(filename, mime string) Backend {
	ext := extOf(filename)
	normMime := normalizeMime(mime)

	if ids, ok := r.prefsExt[ext]; ok {
		if b := firstAccepting(r.expand(ids), ext, normMime); b != nil {
			return b
		}
	}
	if normMime != "" {
		if ids, ok := r.prefsMIME[normMime]; ok {
			if b := firstAccepting(r.expand(ids), ext, normMime); b != nil {
				return b
			}
		}
		if b := firstAccepting(r.backends, "", normMime); b != nil {
			return b
		}
	}
	return firstAccepting(r.backends, ext, "")
}

// ResolveStream polls each backend's CanDecode in default (load) order,
// used when a stream carries no recognized MIME type.
func (r *Registry) ResolveStream(s iostream.Stream) Backend {
	for _, b := range r.backends {
		if b.CanDecode(s) {
			return b
		}
	}
	return nil
}

func firstAccepting(backends []Backend, ext, mime string) Backend {
	for _, b := range backends {
		if ext != "" && b.OurFormatExt(ext) {
			return b
		}
		if mime != "" && b.OurFormatMime(mime) {
			return b
		}
	}
	return nil
}

// extOf returns filename's extension, lowercased and without the leading
// dot (empty string if there is none).
func extOf(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 || i == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

// normalizeMime lowercases mime, strips any "; ..." parameters and an
// "x-" prefix on the subtype.
func normalizeMime(mime string) string {
	mime = strings.ToLower(mime)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(mime)
	typ, subtype, ok := strings.Cut(mime, "/")
	if !ok {
		return mime
	}
	subtype = strings.TrimPrefix(subtype, "x-")
	return typ + "/" + subtype
}
