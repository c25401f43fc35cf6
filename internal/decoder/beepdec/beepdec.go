// Package beepdec implements decoder.Backend for mp3, flac, vorbis and wav
// using gopxl/beep's per-format streamers.
package beepdec

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/iostream"
	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// codec names the four formats beepdec handles; each gets its own
// registered Backend so the registry's load order and preference lists
// can rank them independently, matching per-plugin model.
type codec int

const (
	codecMP3 codec = iota
	codecFLAC
	codecVorbis
	codecWAV
)

// Backend wraps one beep codec decoder.
type Backend struct {
	kind codec
}

// NewMP3 returns the mp3 backend.
func NewMP3() *Backend { return &Backend{kind: codecMP3} }

// NewFLAC returns the flac backend.
func NewFLAC() *Backend { return &Backend{kind: codecFLAC} }

// NewVorbis returns the ogg/vorbis backend.
func NewVorbis() *Backend { return &Backend{kind: codecVorbis} }

// NewWAV returns the wav backend.
func NewWAV() *Backend { return &Backend{kind: codecWAV} }

func (b *Backend) Name() string {
	switch b.kind {
	case codecMP3:
		return "mp3"
	case codecFLAC:
		return "flac"
	case codecVorbis:
		return "vorbis"
	case codecWAV:
		return "wav"
	default:
		return "?"
	}
}

func (b *Backend) GetName() string {
	switch b.kind {
	case codecMP3:
		return "MP3"
	case codecFLAC:
		return "FLA"
	case codecVorbis:
		return "OGG"
	case codecWAV:
		return "WAV"
	default:
		return "?"
	}
}

func (b *Backend) OurFormatExt(ext string) bool {
	switch b.kind {
	case codecMP3:
		return ext == "mp3"
	case codecFLAC:
		return ext == "flac"
	case codecVorbis:
		return ext == "ogg" || ext == "oga"
	case codecWAV:
		return ext == "wav"
	default:
		return false
	}
}

func (b *Backend) OurFormatMime(mime string) bool {
	switch b.kind {
	case codecMP3:
		return mime == "audio/mpeg" || mime == "audio/mp3"
	case codecFLAC:
		return mime == "audio/flac"
	case codecVorbis:
		return mime == "audio/ogg" || mime == "application/ogg"
	case codecWAV:
		return mime == "audio/wav" || mime == "audio/wave"
	default:
		return false
	}
}

// magic bytes sniffed by CanDecode without consuming the stream.
var magic = map[codec][]byte{
	codecFLAC: []byte("fLaC"),
	codecVorbis: []byte("OggS"),
	codecWAV: []byte("RIFF"),
}

func (b *Backend) CanDecode(s iostream.Stream) bool {
	if b.kind == codecMP3 {
		head, err := s.Peek(3)
		if err != nil {
			return false
		}
		if len(head) >= 3 && head[0] == 'I' && head[1] == 'D' && head[2] == '3' {
			return true
		}
		head2, err := s.Peek(2)
		return err == nil && len(head2) == 2 && head2[0] == 0xFF && head2[1]&0xE0 == 0xE0
	}
	want := magic[b.kind]
	if want == nil {
		return false
	}
	head, err := s.Peek(len(want))
	return err == nil && string(head) == string(want)
}

func (b *Backend) Open(uri string) (decoder.Instance, error) {
	f, err := iostream.OpenFile(uri)
	if err != nil {
		return nil, err
	}
	inst, err := b.OpenStream(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return inst, nil
}

func (b *Backend) OpenStream(s iostream.Stream) (decoder.Instance, error) {
	rc := readSeekCloser{s}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	var err error

	switch b.kind {
	case codecMP3:
		streamer, format, err = mp3.Decode(rc)
	case codecFLAC:
		streamer, format, err = flac.Decode(rc)
	case codecVorbis:
		streamer, format, err = vorbis.Decode(rc)
	case codecWAV:
		streamer, format, err = wav.Decode(rc)
	default:
		return nil, fmt.Errorf("beepdec: unknown codec")
	}
	if err != nil {
		return nil, fmt.Errorf("beepdec: %s: %w", b.Name(), err)
	}

	channels := format.NumChannels
	if channels <= 0 {
		channels = 2
	}

	return &instance{
		backend:  b,
		stream:   s,
		streamer: streamer,
		params: soundfmt.Params{
			Channels: channels,
			Rate:     int(format.SampleRate),
			Fmt:      soundfmt.S16 | soundfmt.NE,
		},
	}, nil
}

func (b *Backend) Info(file string, tags *playlist.Tags, mask playlist.FilledMask) error {
	if mask&playlist.FilledComments != 0 {
		t, err := playlist.ReadTagsFromFile(file)
		if err == nil {
			tags.Merge(t)
		}
	}
	if mask&playlist.FilledTime != 0 && !tags.HasTime() {
		if dur, err := b.probeDuration(file); err == nil {
			tags.Time = dur
			tags.Filled |= playlist.FilledTime
		}
	}
	return nil
}

// probeDuration opens the file just long enough to read its beep.Format
// and streamer length, then closes it — used only for background tag-cache
// population, never in the hot decode path.
func (b *Backend) probeDuration(file string) (int, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch b.kind {
	case codecMP3:
		streamer, format, err = mp3.Decode(f)
	case codecFLAC:
		streamer, format, err = flac.Decode(f)
	case codecVorbis:
		streamer, format, err = vorbis.Decode(f)
	case codecWAV:
		streamer, format, err = wav.Decode(f)
	}
	if err != nil {
		return 0, err
	}
	defer streamer.Close()
	return int(float64(streamer.Len()) / float64(format.SampleRate)), nil
}

// instance implements decoder.Instance over a beep.StreamSeekCloser.
type instance struct {
	backend  *Backend
	stream   iostream.Stream
	streamer beep.StreamSeekCloser
	params   soundfmt.Params

	mu       sync.Mutex
	lastErr  *decoder.Error
	closed   bool
}

const decodeBufFrames = 2048

func (in *instance) Decode() (decoder.Chunk, error) {
	buf := make([][2]float64, decodeBufFrames)
	n, ok := in.streamer.Stream(buf)
	if n == 0 && !ok {
		if err := in.streamer.Err(); err != nil {
			in.setErr(&decoder.Error{Kind: decoder.ErrFatal, Message: err.Error()})
			return decoder.Chunk{}, err
		}
		return decoder.Chunk{}, io.EOF
	}

	pcm := make([]byte, 0, n*in.params.Channels*2)
	for i := 0; i < n; i++ {
		l := clamp16(buf[i][0])
		r := clamp16(buf[i][1])
		pcm = appendS16NE(pcm, l)
		if in.params.Channels == 2 {
			pcm = appendS16NE(pcm, r)
		}
	}

	return decoder.Chunk{PCM: pcm, Params: in.params}, nil
}

func clamp16(f float64) int16 {
	if f > 1 {
		f = 1
	}
	if f < -1 {
		f = -1
	}
	return int16(f * 32767)
}

func (in *instance) Seek(sec float64) (float64, error) {
	pos := int(sec * float64(in.params.Rate))
	if err := in.streamer.Seek(pos); err != nil {
		return -1, err
	}
	return sec, nil
}

func (in *instance) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true
	return in.streamer.Close()
}

func (in *instance) Bitrate() int    { return -1 }
func (in *instance) AvgBitrate() int { return -1 }

func (in *instance) Duration() float64 {
	return float64(in.streamer.Len()) / float64(in.params.Rate)
}

func (in *instance) setErr(e *decoder.Error) {
	in.mu.Lock()
	in.lastErr = e
	in.mu.Unlock()
}

func (in *instance) GetError() *decoder.Error {
	in.mu.Lock()
	defer in.mu.Unlock()
	e := in.lastErr
	in.lastErr = nil
	return e
}

func (in *instance) CurrentTags() (*playlist.Tags, bool) { return nil, false }

func (in *instance) Stream() iostream.Stream { return in.stream }

// readSeekCloser adapts an iostream.Stream to io.ReadSeekCloser, which is
// what beep's per-format decoders require.
type readSeekCloser struct {
	s iostream.Stream
}

func (r readSeekCloser) Read(p []byte) (int, error) {
	n, err := r.s.Read(p)
	if n == 0 && err == nil && len(p) > 0 && r.s.Eof() {
		return 0, io.EOF
	}
	return n, err
}
func (r readSeekCloser) Seek(offset int64, whence int) (int64, error) {
	return r.s.Seek(offset, whence)
}
func (r readSeekCloser) Close() error { return r.s.Close() }

func appendS16NE(buf []byte, v int16) []byte {
	if soundfmt.Endianness(soundfmt.S16|soundfmt.NE) == soundfmt.BE {
		return append(buf, byte(v>>8), byte(v))
	}
	return append(buf, byte(v), byte(v>>8))
}
