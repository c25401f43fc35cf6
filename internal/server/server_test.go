package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/fluxradio/fluxd/internal/controller"
	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/eqpreset"
	"github.com/fluxradio/fluxd/internal/events"
	"github.com/fluxradio/fluxd/internal/iostream"
	"github.com/fluxradio/fluxd/internal/outbuf"
	"github.com/fluxradio/fluxd/internal/player"
	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/fluxradio/fluxd/internal/protocol"
	"github.com/fluxradio/fluxd/internal/soundfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer builds a fully wired Server (real controller, tags cache,
// equalizer manager) over a socket under t.TempDir(), with a slow-decoding
// stub backend so a test can drive state transitions deterministically.
// It returns the server, its controller, and a dial func for clients.
func newTestServer(t *testing.T) (*Server, *controller.Controller, func() net.Conn) {
	t.Helper()
	dir := t.TempDir()

	p := player.New(outbuf.New(1<<20), func(req soundfmt.Params) (soundfmt.Params, error) { return req, nil })
	reg := decoder.NewRegistry()
	reg.Register(&slowBackend{})

	eq, err := eqpreset.NewManager(filepath.Join(dir, "eqsets"), 2, 44100)
	require.NoError(t, err)

	srv, err := New(Options{
		SocketPath:    filepath.Join(dir, "ctl.sock"),
		TagsCacheDir:  filepath.Join(dir, "tags"),
		TagsCacheSize: 64,
		TagsSyncEvery: 8,
	}, reg, nil, eq)
	require.NoError(t, err)

	ctl := controller.New(p, reg, srv.Bus())
	srv.AttachController(ctl)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
		srv.Close()
	})

	// Give Start a moment to bind the listener before any test dials it.
	waitForSocket(t, srv.opts.SocketPath)

	dial := func() net.Conn {
		conn, err := net.Dial("unix", srv.opts.SocketPath)
		require.NoError(t, err)
		return conn
	}
	return srv, ctl, dial
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for socket %s", path)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPlayAndGetState(t *testing.T) {
	_, ctl, dial := newTestServer(t)
	_, err := ctl.Playlist().Add(playlist.NewItem("a.flac", playlist.TypeSound))
	require.NoError(t, err)

	conn := dial()
	defer conn.Close()
	r := protocol.NewReader(conn)
	w := protocol.NewWriter(conn)

	require.NoError(t, w.I32(int32(protocol.OpPlay)))
	require.NoError(t, w.Str("a.flac"))
	require.NoError(t, w.Flush())

	waitForState := func(want string) {
		deadline := time.After(2 * time.Second)
		for {
			require.NoError(t, w.I32(int32(protocol.OpGetState)))
			require.NoError(t, w.Flush())
			got, err := r.Str()
			require.NoError(t, err)
			if got == want {
				return
			}
			select {
			case <-deadline:
				t.Fatalf("timed out waiting for state %q, last saw %q", want, got)
			case <-time.After(5 * time.Millisecond):
			}
		}
	}
	waitForState("PLAY")

	require.NoError(t, w.I32(int32(protocol.OpGetSName)))
	require.NoError(t, w.Flush())
	name, err := r.Str()
	require.NoError(t, err)
	assert.Equal(t, "a.flac", name)

	require.NoError(t, w.I32(int32(protocol.OpStop)))
	require.NoError(t, w.Flush())
	waitForState("STOP")
}

func TestOptionRoundTrip(t *testing.T) {
	_, _, dial := newTestServer(t)
	conn := dial()
	defer conn.Close()
	r := protocol.NewReader(conn)
	w := protocol.NewWriter(conn)

	require.NoError(t, w.I32(int32(protocol.OpSetOption)))
	require.NoError(t, w.Str("Shuffle"))
	require.NoError(t, w.I32(1))
	require.NoError(t, w.Flush())

	require.NoError(t, w.I32(int32(protocol.OpGetOption)))
	require.NoError(t, w.Str("Shuffle"))
	require.NoError(t, w.Flush())
	v, err := r.I32()
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
}

func TestListAddAndGetPlist(t *testing.T) {
	_, ctl, dial := newTestServer(t)
	conn := dial()
	defer conn.Close()
	r := protocol.NewReader(conn)
	w := protocol.NewWriter(conn)

	item := playlist.NewItem("b.flac", playlist.TypeSound)
	require.NoError(t, w.I32(int32(protocol.OpListAdd)))
	require.NoError(t, w.Item(item))
	require.NoError(t, w.Flush())

	// No reply on ListAdd; sync via a request/reply op before asserting.
	require.NoError(t, w.I32(int32(protocol.OpGetSerial)))
	require.NoError(t, w.Flush())
	_, err := r.I32()
	require.NoError(t, err)
	assert.Equal(t, 1, ctl.Playlist().Len())

	require.NoError(t, w.I32(int32(protocol.OpGetPlist)))
	require.NoError(t, w.Flush())
	n, err := r.I32()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	got, err := r.Item()
	require.NoError(t, err)
	assert.Equal(t, "b.flac", got.File)
}

func TestLockExcludesOtherClient(t *testing.T) {
	_, _, dial := newTestServer(t)
	a := dial()
	defer a.Close()
	b := dial()
	defer b.Close()

	ra, wa := protocol.NewReader(a), protocol.NewWriter(a)
	rb, wb := protocol.NewReader(b), protocol.NewWriter(b)

	require.NoError(t, wa.I32(int32(protocol.OpLock)))
	require.NoError(t, wa.Flush())
	gotA, err := ra.I32()
	require.NoError(t, err)
	assert.EqualValues(t, 1, gotA)

	require.NoError(t, wb.I32(int32(protocol.OpLock)))
	require.NoError(t, wb.Flush())
	gotB, err := rb.I32()
	require.NoError(t, err)
	assert.EqualValues(t, 0, gotB, "second client must not acquire an already-held lock")
}

func TestPingDeliversPongEvent(t *testing.T) {
	_, _, dial := newTestServer(t)
	conn := dial()
	defer conn.Close()
	r := protocol.NewReader(conn)
	w := protocol.NewWriter(conn)

	require.NoError(t, w.I32(int32(protocol.OpSendEvents)))
	require.NoError(t, w.Flush())
	require.NoError(t, w.I32(int32(protocol.OpPing)))
	require.NoError(t, w.Flush())

	code, err := r.I32()
	require.NoError(t, err)
	assert.EqualValues(t, protocol.WireCodeFor(events.EvPong), code)
}

func TestQuitClosesTheServer(t *testing.T) {
	srv, _, dial := newTestServer(t)
	conn := dial()
	w := protocol.NewWriter(conn)

	require.NoError(t, w.I32(int32(protocol.OpQuit)))
	require.NoError(t, w.Flush())

	deadline := time.After(2 * time.Second)
	for {
		if _, err := net.Dial("unix", srv.opts.SocketPath); err != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for OpQuit to close the listener")
		case <-time.After(5 * time.Millisecond):
		}
	}
	conn.Close()
}

// slowBackend decodes forever (with a short sleep between chunks) so tests
// can observe an intermediate PLAY state without racing a spontaneous
// end-of-track, mirroring the controller package's own test stub.
type slowBackend struct{}

func (b *slowBackend) Name() string { return "slow" }
func (b *slowBackend) Open(uri string) (decoder.Instance, error) {
	return &slowInstance{params: soundfmt.Params{Channels: 2, Rate: 44100, Fmt: soundfmt.S16 | soundfmt.NE}}, nil
}
func (b *slowBackend) OpenStream(s iostream.Stream) (decoder.Instance, error) { return b.Open("") }
func (b *slowBackend) OurFormatExt(ext string) bool                          { return true }
func (b *slowBackend) OurFormatMime(mime string) bool                        { return true }
func (b *slowBackend) CanDecode(s iostream.Stream) bool                      { return true }
func (b *slowBackend) Info(file string, tags *playlist.Tags, mask playlist.FilledMask) error {
	return nil
}
func (b *slowBackend) GetName() string { return "SLW" }

type slowInstance struct {
	params soundfmt.Params
}

func (i *slowInstance) Decode() (decoder.Chunk, error) {
	time.Sleep(2 * time.Millisecond)
	return decoder.Chunk{PCM: make([]byte, 64), Params: i.params}, nil
}
func (i *slowInstance) Seek(sec float64) (float64, error) { return sec, nil }
func (i *slowInstance) Close() error                      { return nil }
func (i *slowInstance) Bitrate() int                      { return 128 }
func (i *slowInstance) AvgBitrate() int                   { return 128 }
func (i *slowInstance) Duration() float64                 { return -1 }
func (i *slowInstance) GetError() *decoder.Error          { return nil }
func (i *slowInstance) CurrentTags() (*playlist.Tags, bool) {
	return nil, false
}
func (i *slowInstance) Stream() iostream.Stream { return nil }
