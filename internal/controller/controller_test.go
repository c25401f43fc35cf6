package controller

import (
	"io"
	"testing"
	"time"

	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/events"
	"github.com/fluxradio/fluxd/internal/iostream"
	"github.com/fluxradio/fluxd/internal/outbuf"
	"github.com/fluxradio/fluxd/internal/player"
	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/fluxradio/fluxd/internal/soundfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsURL(t *testing.T) {
	assert.True(t, isURL("http://example.com/stream.mp3"))
	assert.True(t, isURL("https://example.com/stream.mp3"))
	assert.False(t, isURL("/home/user/music/song.flac"))
	assert.False(t, isURL("song.flac"))
}

func newSlowTestController(t *testing.T) *Controller {
	t.Helper()
	p := player.New(outbuf.New(1<<20), func(req soundfmt.Params) (soundfmt.Params, error) { return req, nil })
	reg := decoder.NewRegistry()
	reg.Register(&instantBackend{slow: true})
	return New(p, reg, events.NewBus(nil))
}

func TestPlayWithEmptyPlaylistFails(t *testing.T) {
	c := newSlowTestController(t)
	err := c.Play("")
	assert.ErrorIs(t, err, ErrNoSuchFile)
}

func TestPlayNamedFileReachesPlayState(t *testing.T) {
	c := newSlowTestController(t)
	addTrack(t, c.Playlist(), "a.flac")
	addTrack(t, c.Playlist(), "b.flac")

	require.NoError(t, c.Play("a.flac"))
	waitForState(t, c, StatePlay)
	assert.Equal(t, "a.flac", c.CurrentFile())

	c.Stop()
	waitForState(t, c, StateStop)
}

func TestGoToAnotherFileAdvancesToSuccessor(t *testing.T) {
	c := newSlowTestController(t)
	addTrack(t, c.Playlist(), "a.flac")
	addTrack(t, c.Playlist(), "b.flac")

	require.NoError(t, c.Play("a.flac"))
	waitForState(t, c, StatePlay)

	c.GoToAnotherFile(true, false)
	waitForFile(t, c, "b.flac")

	c.Stop()
	waitForState(t, c, StateStop)
}

func TestGoToAnotherFileStopsAtEndWithoutRepeat(t *testing.T) {
	c := newSlowTestController(t)
	addTrack(t, c.Playlist(), "only.flac")

	require.NoError(t, c.Play("only.flac"))
	waitForState(t, c, StatePlay)

	c.GoToAnotherFile(true, false)
	waitForState(t, c, StateStop)
}

func TestGoToAnotherFileWrapsWithRepeat(t *testing.T) {
	c := newSlowTestController(t)
	c.Options.Repeat = true
	addTrack(t, c.Playlist(), "only.flac")

	require.NoError(t, c.Play("only.flac"))
	waitForState(t, c, StatePlay)

	c.GoToAnotherFile(true, false)
	waitForFile(t, c, "only.flac")

	c.Stop()
	waitForState(t, c, StateStop)
}

func addTrack(t *testing.T, p *playlist.Playlist, file string) {
	t.Helper()
	_, err := p.Add(playlist.NewItem(file, playlist.TypeSound))
	require.NoError(t, err)
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if s, _ := c.State(); s == want {
			return
		}
		select {
		case <-deadline:
			s, _ := c.State()
			t.Fatalf("timed out waiting for state %v, have %v", want, s)
		case <-time.After(time.Millisecond):
		}
	}
}

func waitForFile(t *testing.T, c *Controller, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if f := c.CurrentFile(); f == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for current file %q, have %q", want, c.CurrentFile())
		case <-time.After(time.Millisecond):
		}
	}
}

// instantBackend/instantInstance decode a few small chunks and then EOF
// almost immediately, just enough to exercise the controller's playback
// lifecycle without any real audio I/O. When slow is set, Decode instead
// yields chunks forever (with a short sleep between each), so a test can
// drive every state transition explicitly via controller calls without
// racing a spontaneous end-of-track.
type instantBackend struct {
	slow bool
}

func (b *instantBackend) Name() string { return "instant" }
func (b *instantBackend) Open(uri string) (decoder.Instance, error) {
	return &instantInstance{
		params: soundfmt.Params{Channels: 2, Rate: 44100, Fmt: soundfmt.S16 | soundfmt.NE},
		slow:   b.slow,
	}, nil
}
func (b *instantBackend) OpenStream(s iostream.Stream) (decoder.Instance, error) {
	return b.Open("")
}
func (b *instantBackend) OurFormatExt(ext string) bool   { return true }
func (b *instantBackend) OurFormatMime(mime string) bool { return true }
func (b *instantBackend) CanDecode(s iostream.Stream) bool { return true }
func (b *instantBackend) Info(file string, tags *playlist.Tags, mask playlist.FilledMask) error {
	return nil
}
func (b *instantBackend) GetName() string { return "INS" }

type instantInstance struct {
	params soundfmt.Params
	idx    int
	slow   bool
}

func (i *instantInstance) Decode() (decoder.Chunk, error) {
	if i.slow {
		time.Sleep(2 * time.Millisecond)
		return decoder.Chunk{PCM: make([]byte, 64), Params: i.params}, nil
	}
	if i.idx >= 2 {
		return decoder.Chunk{}, io.EOF
	}
	i.idx++
	return decoder.Chunk{PCM: make([]byte, 64), Params: i.params}, nil
}
func (i *instantInstance) Seek(sec float64) (float64, error)  { return sec, nil }
func (i *instantInstance) Close() error                        { return nil }
func (i *instantInstance) Bitrate() int                         { return 128 }
func (i *instantInstance) AvgBitrate() int                      { return 128 }
func (i *instantInstance) Duration() float64                    { return -1 }
func (i *instantInstance) GetError() *decoder.Error             { return nil }
func (i *instantInstance) CurrentTags() (*playlist.Tags, bool)  { return nil, false }
func (i *instantInstance) Stream() iostream.Stream               { return nil }
