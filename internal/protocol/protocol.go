// Package protocol implements the control-socket wire format: every
// message is a sequence of typed fields, written as either a fixed-width
// little-endian value or a length-prefixed byte sequence. The byte order is
// little-endian on every host, not the host's native order. Commands are an
// i32 opcode followed by a payload; events are an i32 event type followed
// by a payload.
package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/fluxradio/fluxd/internal/playlist"
)

// ErrMessageTooLarge guards against a corrupt or hostile length prefix
// asking for an unreasonable allocation.
var ErrMessageTooLarge = errors.New("protocol: message too large")

const maxStringLen = 16 << 20

// Op is a control-socket command opcode.
type Op int32

const (
	OpPlay Op = iota
	OpStop
	OpPause
	OpUnpause
	OpNext
	OpPrev
	OpSeek
	OpJumpTo
	OpGetState
	OpGetCTime
	OpGetBitrate
	OpGetRate
	OpGetChannels
	OpGetSName
	OpSetOption
	OpGetOption
	OpSetMixer
	OpGetMixer
	OpToggleMixerChannel
	OpToggleSoftmixer
	OpToggleEqualizer
	OpEqualizerPrev
	OpEqualizerNext
	OpEqualizerRefresh
	OpToggleMakeMono
	OpListAdd
	OpDelete
	OpListClear
	OpListMove
	OpQueueAdd
	OpQueueDel
	OpQueueClear
	OpQueueMove
	OpGetPlist
	OpGetQueue
	OpSendPlist
	OpCliPlistAdd
	OpCliPlistDel
	OpCliPlistClear
	OpCliPlistMove
	OpPlistGetSerial
	OpPlistSetSerial
	OpGetSerial
	OpGetTags
	OpGetFileTags
	OpAbortTagsRequests
	OpGetMixerChannelName
	OpSendEvents
	OpCanSendPlist
	OpPing
	OpLock
	OpUnlock
	OpDisconnect
	OpQuit
)

// Reader decodes typed fields from a control-socket connection.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for typed-field decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// I32 reads one little-endian 4-byte integer.
func (d *Reader) I32() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

// Str reads an i32 length followed by that many raw bytes.
func (d *Reader) Str() (string, error) {
	n, err := d.I32()
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > maxStringLen {
		return "", ErrMessageTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Time reads a Unix timestamp stored as an i64 host-width value.
func (d *Reader) Time() (time.Time, error) {
	var buf [8]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return time.Time{}, err
	}
	sec := int64(binary.LittleEndian.Uint64(buf[:]))
	if sec == 0 {
		return time.Time{}, nil
	}
	return time.Unix(sec, 0), nil
}

// Tags reads a {title, artist, album, track, time, filled} record.
func (d *Reader) Tags() (*playlist.Tags, error) {
	title, err := d.Str()
	if err != nil {
		return nil, err
	}
	artist, err := d.Str()
	if err != nil {
		return nil, err
	}
	album, err := d.Str()
	if err != nil {
		return nil, err
	}
	track, err := d.I32()
	if err != nil {
		return nil, err
	}
	t, err := d.I32()
	if err != nil {
		return nil, err
	}
	filled, err := d.I32()
	if err != nil {
		return nil, err
	}
	return &playlist.Tags{
		Title:  title,
		Artist: artist,
		Album:  album,
		Track:  int(track),
		Time:   int(t),
		Filled: playlist.FilledMask(filled),
	}, nil
}

// Item reads a {file, title_tags, tags, mtime} record.
func (d *Reader) Item() (*playlist.Item, error) {
	file, err := d.Str()
	if err != nil {
		return nil, err
	}
	titleTags, err := d.Str()
	if err != nil {
		return nil, err
	}
	tags, err := d.Tags()
	if err != nil {
		return nil, err
	}
	mtime, err := d.Time()
	if err != nil {
		return nil, err
	}
	item := playlist.NewItem(file, playlist.TypeSound)
	item.TitleTags = titleTags
	item.Tags = tags
	item.Mtime = mtime
	return item, nil
}

// Writer encodes typed fields onto a control-socket connection.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w for typed-field encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Flush pushes any buffered bytes to the underlying connection.
func (e *Writer) Flush() error {
	return e.w.Flush()
}

// I32 writes one little-endian 4-byte integer.
func (e *Writer) I32(v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := e.w.Write(buf[:])
	return err
}

// Str writes an i32 length followed by s's bytes.
func (e *Writer) Str(s string) error {
	if err := e.I32(int32(len(s))); err != nil {
		return err
	}
	_, err := e.w.Write([]byte(s))
	return err
}

// Time writes t as a Unix timestamp in an i64 host-width field.
func (e *Writer) Time(t time.Time) error {
	var sec int64
	if !t.IsZero() {
		sec = t.Unix()
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(sec))
	_, err := e.w.Write(buf[:])
	return err
}

// Tags writes a {title, artist, album, track, time, filled} record.
func (e *Writer) Tags(t *playlist.Tags) error {
	if t == nil {
		t = playlist.NewTags()
	}
	for _, err := range []error{
		e.Str(t.Title),
		e.Str(t.Artist),
		e.Str(t.Album),
		e.I32(int32(t.Track)),
		e.I32(int32(t.Time)),
		e.I32(int32(t.Filled)),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Item writes a {file, title_tags, tags, mtime} record.
func (e *Writer) Item(it *playlist.Item) error {
	if err := e.Str(it.File); err != nil {
		return err
	}
	if err := e.Str(it.TitleTags); err != nil {
		return err
	}
	if err := e.Tags(it.Tags); err != nil {
		return err
	}
	return e.Time(it.Mtime)
}
