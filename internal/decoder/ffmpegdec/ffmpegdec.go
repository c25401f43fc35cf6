// Package ffmpegdec is the catch-all decoder backend: it shells out to the
// system ffmpeg binary, via os/exec, to decode any format not covered by a
// dedicated backend, rather than reimplementing every codec natively.
package ffmpegdec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/iostream"
	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// outputRate and outputChannels are the fixed PCM format ffmpeg is asked
// to produce; the conversion pipeline (internal/convert) handles any
// further adaptation to the output driver's native format.
const (
	outputRate     = 44100
	outputChannels = 2
)

// Backend decodes via a forked ffmpeg process reading raw PCM from its
// stdout. It is registered after the format-specific backends, so in
// load-order matching (and in wildcard-spliced preference lists) it only
// ever loses to one of them.
type Backend struct {
	// BinPath is the ffmpeg executable to invoke; defaults to "ffmpeg" on
	// PATH if empty.
	BinPath string

	// NoSeekExtensions names extensions (without dot) for which Seek
	// always reports unsupported: some AAC streams only have their
	// duration estimated by sampling partway through, never indexed, so
	// seeking cannot be offered reliably.
	NoSeekExtensions map[string]bool
}

// New returns an ffmpeg-backed backend with the AAC seek restriction
// applied by default.
func New() *Backend {
	return &Backend{
		NoSeekExtensions: map[string]bool{"aac": true, "m4a": true},
	}
}

func (b *Backend) Name() string     { return "ffmpeg" }
func (b *Backend) GetName() string  { return "FFM" }

func (b *Backend) bin() string {
	if b.BinPath != "" {
		return b.BinPath
	}
	return "ffmpeg"
}

// OurFormatExt claims every non-empty extension; the registry reaches it
// only when no earlier backend claims the file. It claims no MIME type.
func (b *Backend) OurFormatExt(ext string) bool   { return ext != "" }
func (b *Backend) OurFormatMime(mime string) bool { return false }
func (b *Backend) CanDecode(s iostream.Stream) bool { return true }

func (b *Backend) Open(uri string) (decoder.Instance, error) {
	s, err := iostream.OpenFile(uri)
	if err != nil {
		return nil, err
	}
	inst, err := b.openPath(uri, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	return inst, nil
}

func (b *Backend) OpenStream(s iostream.Stream) (decoder.Instance, error) {
	return nil, fmt.Errorf("ffmpegdec: decoding from an already-open stream is not supported; ffmpeg needs a seekable path")
}

func (b *Backend) openPath(path string, s iostream.Stream) (decoder.Instance, error) {
	ctx, cancel := context.WithCancel(context.Background())

	args := []string{
		"-v", "error",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(outputRate),
		"-ac", strconv.Itoa(outputChannels),
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, b.bin(), args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpegdec: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpegdec: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpegdec: start: %w", err)
	}

	go logStderr(stderr)

	ext := extOf(path)
	inst := &instance{
		backend: b,
		stream:  s,
		cmd:     cmd,
		cancel:  cancel,
		out:     bufio.NewReaderSize(stdout, 64*1024),
		params: soundfmt.Params{
			Channels: outputChannels,
			Rate:     outputRate,
			Fmt:      soundfmt.S16 | soundfmt.LE,
		},
		seekable: !b.NoSeekExtensions[ext],
		path:     path,
	}
	return inst, nil
}

func logStderr(r io.Reader) {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			slog.Debug("ffmpegdec", "stderr", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(path[i+1:])
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

// probeDuration runs ffmpeg against /dev/null and parses the final
// "time=" progress line from stderr for the decoded duration. Used only
// for background tag-cache population, never on the hot decode path.
func (b *Backend) probeDuration(path string) (int, error) {
	cmd := exec.Command(b.bin(), "-v", "error", "-i", path, "-f", "null", "-")
	var stderr strings.Builder
	cmd.Stderr = &stderr
	_ = cmd.Run()
	return parseDurationFromStderr(stderr.String())
}

func parseDurationFromStderr(s string) (int, error) {
	idx := strings.LastIndex(s, "time=")
	if idx < 0 {
		return -1, fmt.Errorf("ffmpegdec: no duration found")
	}
	rest := s[idx+len("time="):]
	var h, m int
	var sec float64
	if _, err := fmt.Sscanf(rest, "%d:%d:%f", &h, &m, &sec); err != nil {
		return -1, err
	}
	return h*3600 + m*60 + int(sec), nil
}

// instance is one decoding session: a running ffmpeg process streaming raw
// PCM from stdout.
type instance struct {
	backend *Backend
	stream  iostream.Stream
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	out     *bufio.Reader
	params  soundfmt.Params

	path     string
	seekable bool
	position float64

	mu      sync.Mutex
	lastErr *decoder.Error
	closed  bool
}

const ffmpegChunkFrames = 4096

func (in *instance) Decode() (decoder.Chunk, error) {
	frameBytes := in.params.BytesPerFrame()
	buf := make([]byte, ffmpegChunkFrames*frameBytes)

	n, err := io.ReadFull(in.out, buf)
	if n > 0 {
		in.position += float64(n/frameBytes) / float64(in.params.Rate)
		chunk := decoder.Chunk{PCM: buf[:n], Params: in.params}
		if err == io.ErrUnexpectedEOF {
			return chunk, nil
		}
		return chunk, nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return decoder.Chunk{}, io.EOF
	}
	in.setErr(&decoder.Error{Kind: decoder.ErrFatal, Message: err.Error()})
	return decoder.Chunk{}, err
}

// Seek restarts the ffmpeg process with a -ss offset, since ffmpeg's
// stdout pipe cannot itself be seeked backward. AAC-class formats return
// ErrSeekUnsupported unconditionally, preserving aac_seek's always-(-1)
// behavior.
func (in *instance) Seek(sec float64) (float64, error) {
	if !in.seekable {
		return -1, decoder.ErrSeekUnsupported
	}
	if sec < 0 {
		sec = 0
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.cmd != nil {
		in.cancel()
		_ = in.cmd.Wait()
	}

	ctx, cancel := context.WithCancel(context.Background())
	args := []string{
		"-v", "error",
		"-ss", fmt.Sprintf("%f", sec),
		"-i", in.path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(outputRate),
		"-ac", strconv.Itoa(outputChannels),
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, in.backend.bin(), args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return -1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return -1, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return -1, err
	}
	go logStderr(stderr)

	in.cmd = cmd
	in.cancel = cancel
	in.out = bufio.NewReaderSize(stdout, 64*1024)
	in.position = sec

	return sec, nil
}

func (in *instance) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil
	}
	in.closed = true
	in.cancel()
	if in.stream != nil {
		_ = in.stream.Close()
	}
	return in.cmd.Wait()
}

func (in *instance) Bitrate() int    { return -1 }
func (in *instance) AvgBitrate() int { return -1 }
func (in *instance) Duration() float64 {
	return -1
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
func (in *instance) Stream() iostream.Stream             { return in.stream }
