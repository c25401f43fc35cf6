// Package iostream implements the uniform I/O abstraction: a single Stream
// interface with FileFD, FileMmap and NetworkStream variants, so the
// decoder layer never has to know whether it is reading a local file or a
// live HTTP/ICY stream.
package iostream

import (
	"errors"
	"io"
)

// Whence mirrors io.Seeker's constants; re-exported so callers outside this
// package don't need to import "io" just to call Seek.
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)

// ErrAborted is returned by a blocked Read/Prebuffer call after Abort.
var ErrAborted = errors.New("iostream: aborted")

// ErrNotSeekable is returned by Seek on a stream that never supports it
// (a live network stream with no byte-range support).
var ErrNotSeekable = errors.New("iostream: stream not seekable")

// Stream is the uniform interface implemented by FileStream, MmapStream and
// NetworkStream.
type Stream interface {
	// Read reads up to len(p) bytes. A short read without error is a valid
	// outcome for a network stream under transient conditions.
	Read(p []byte) (int, error)

	// Peek returns up to n bytes without advancing the read position.
	Peek(n int) ([]byte, error)

	// Seek repositions the stream. Returns ErrNotSeekable if Seekable() is
	// false.
	Seek(offset int64, whence int) (int64, error)

	// Tell returns the current read position.
	Tell() int64

	// Size returns the total stream size, or -1 if unknown (e.g. a live
	// stream with no Content-Length).
	Size() int64

	// Eof reports whether the stream has been fully consumed.
	Eof() bool

	// Ok reports whether the stream is in a usable state; false means a
	// prior operation failed fatally.
	Ok() bool

	// Strerror returns a description of the last error, or "" if Ok().
	Strerror() string

	// Abort forces any pending or future blocking Read/Prebuffer call to
	// return ErrAborted immediately.
	Abort()

	// FileSize returns the size of the underlying resource if known up
	// front, or -1; every implementation here reports the same value as
	// Size().
	FileSize() int64

	// MimeType returns the stream's content type, if known.
	MimeType() string

	// MetadataTitle returns the most recently received ICY stream title,
	// or "" if none has arrived (or this isn't a network stream).
	MetadataTitle() string

	// MetadataURL returns the most recently received ICY stream URL.
	MetadataURL() string

	// Prebuffer blocks until at least n bytes are available to Read, or
	// until Eof/Abort.
	Prebuffer(n int) error

	// Seekable reports whether Seek is expected to succeed.
	Seekable() bool

	Close() error
}

// FillCallback is invoked whenever the prebuffer level crosses one of the
// 25/50/75/100% thresholds, so a client UI can display prebuffering
// progress.
type FillCallback func(buffered, total int)
