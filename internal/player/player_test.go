package player

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/iostream"
	"github.com/fluxradio/fluxd/internal/outbuf"
	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/fluxradio/fluxd/internal/soundfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMD5DigestProcessAndSum(t *testing.T) {
	m := newMD5Digest()
	m.process([]byte("hello"))
	m.process([]byte(" world"))
	sum, n, ok := m.sum()
	assert.True(t, ok)
	assert.EqualValues(t, len("hello world"), n)
	assert.NotEmpty(t, sum)
}

func TestMD5DigestInvalidate(t *testing.T) {
	m := newMD5Digest()
	m.process([]byte("abc"))
	m.invalidate()
	_, _, ok := m.sum()
	assert.False(t, ok)
}

func TestRequestSeekClampsNegative(t *testing.T) {
	p := New(outbuf.New(4096), func(req soundfmt.Params) (soundfmt.Params, error) { return req, nil })
	p.RequestSeek(-5)
	req, sec := p.takeRequest()
	assert.Equal(t, reqSeek, req)
	assert.Equal(t, 0.0, sec)
}

func TestBitrateAtDelegatesToTimeline(t *testing.T) {
	p := New(outbuf.New(4096), func(req soundfmt.Params) (soundfmt.Params, error) { return req, nil })
	p.bitrates.Add(0, 128)
	assert.Equal(t, 128, p.BitrateAt(1))
}

func TestPollTagsDecoderDominatesMetadata(t *testing.T) {
	p := New(outbuf.New(4096), func(req soundfmt.Params) (soundfmt.Params, error) { return req, nil })
	p.currTags = playlist.NewTags()

	decoderTags := playlist.NewTags()
	decoderTags.Title = "from decoder"
	inst := &stubInstance{
		tags:        decoderTags,
		tagsChanged: true,
	}
	p.pollTags(inst)
	assert.Equal(t, tagsSourceDecoder, p.tagsSource)
	assert.Equal(t, "from decoder", p.currTags.Title)

	// A later poll with no new decoder tags and a stream present must not
	// fall back to metadata once decoder tags have been seen.
	inst.tagsChanged = false
	inst.stream = &stubStream{title: "from icy"}
	p.pollTags(inst)
	assert.Equal(t, tagsSourceDecoder, p.tagsSource)
	assert.Equal(t, "from decoder", p.currTags.Title)
}

func TestPollTagsFallsBackToMetadataBeforeDecoderTagsSeen(t *testing.T) {
	p := New(outbuf.New(4096), func(req soundfmt.Params) (soundfmt.Params, error) { return req, nil })
	p.currTags = playlist.NewTags()

	inst := &stubInstance{stream: &stubStream{title: "from icy"}}
	p.pollTags(inst)
	assert.Equal(t, tagsSourceMetadata, p.tagsSource)
	assert.Equal(t, "from icy", p.currTags.Title)
}

func TestPlayDecodesUntilEOFAndStops(t *testing.T) {
	params := soundfmt.Params{Channels: 2, Rate: 44100, Fmt: soundfmt.S16 | soundfmt.NE}
	chunks := [][]byte{
		make([]byte, 128),
		make([]byte, 128),
	}
	inst := &stubInstance{
		params: params,
		chunks: chunks,
	}
	backend := &stubBackend{inst: inst}

	// Play waits at EOF until the output buffer has drained, so a consumer
	// must be running for it to return.
	ob := outbuf.New(1 << 20)
	go ob.RunConsumer(func(b []byte) (int, error) { return len(b), nil }, 4096)

	p := New(ob, func(req soundfmt.Params) (soundfmt.Params, error) { return req, nil })

	err := p.Play("song.flac", backend, true, "", false)
	require.NoError(t, err)

	sum, n, ok := p.MD5()
	assert.True(t, ok)
	assert.EqualValues(t, 256, n)
	assert.NotEmpty(t, sum)
}

func TestPlayHonorsStopRequest(t *testing.T) {
	params := soundfmt.Params{Channels: 2, Rate: 44100, Fmt: soundfmt.S16 | soundfmt.NE}
	inst := &stubInstance{params: params, infinite: true}
	backend := &stubBackend{inst: inst}

	p := New(outbuf.New(1<<20), func(req soundfmt.Params) (soundfmt.Params, error) { return req, nil })

	done := make(chan error, 1)
	go func() { done <- p.Play("song.flac", backend, true, "", false) }()

	time.Sleep(20 * time.Millisecond)
	p.RequestStop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not return after RequestStop")
	}

	_, _, ok := p.MD5()
	assert.False(t, ok, "stop must invalidate the digest")
}

// --- stubs ---

type stubStream struct {
	title string
}

func (s *stubStream) Read(p []byte) (int, error)            { return 0, io.EOF }
func (s *stubStream) Peek(n int) ([]byte, error)             { return nil, io.EOF }
func (s *stubStream) Seek(offset int64, whence int) (int64, error) { return 0, nil }
func (s *stubStream) Tell() int64                            { return 0 }
func (s *stubStream) Size() int64                            { return -1 }
func (s *stubStream) Eof() bool                              { return true }
func (s *stubStream) Ok() bool                               { return true }
func (s *stubStream) Strerror() string                       { return "" }
func (s *stubStream) Abort()                                 {}
func (s *stubStream) FileSize() int64                        { return -1 }
func (s *stubStream) MimeType() string                       { return "" }
func (s *stubStream) MetadataTitle() string                  { return s.title }
func (s *stubStream) MetadataURL() string                    { return "" }
func (s *stubStream) Prebuffer(n int) error                  { return nil }
func (s *stubStream) Seekable() bool                         { return false }
func (s *stubStream) Close() error                            { return nil }

type stubInstance struct {
	mu sync.Mutex

	params soundfmt.Params
	chunks [][]byte
	idx    int

	tags        *playlist.Tags
	tagsChanged bool
	stream      iostream.Stream

	// infinite makes Decode return a steady stream of small chunks
	// forever (with a brief sleep to yield to other goroutines), rather
	// than exhausting a fixed chunk list — used to exercise RequestStop
	// mid-stream.
	infinite bool
}

func (s *stubInstance) Decode() (decoder.Chunk, error) {
	if s.infinite {
		time.Sleep(2 * time.Millisecond)
		return decoder.Chunk{PCM: make([]byte, 128), Params: s.params}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.chunks) {
		return decoder.Chunk{}, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return decoder.Chunk{PCM: c, Params: s.params}, nil
}

func (s *stubInstance) Seek(sec float64) (float64, error) { return sec, nil }
func (s *stubInstance) Close() error                       { return nil }
func (s *stubInstance) Bitrate() int                       { return 128 }
func (s *stubInstance) AvgBitrate() int                     { return 128 }
func (s *stubInstance) Duration() float64                   { return -1 }
func (s *stubInstance) GetError() *decoder.Error            { return nil }
func (s *stubInstance) CurrentTags() (*playlist.Tags, bool) { return s.tags, s.tagsChanged }
func (s *stubInstance) Stream() iostream.Stream              { return s.stream }

type stubBackend struct {
	inst *stubInstance
}

func (b *stubBackend) Name() string                                  { return "stub" }
func (b *stubBackend) Open(uri string) (decoder.Instance, error)     { return b.inst, nil }
func (b *stubBackend) OpenStream(s iostream.Stream) (decoder.Instance, error) {
	return b.inst, nil
}
func (b *stubBackend) OurFormatExt(ext string) bool   { return true }
func (b *stubBackend) OurFormatMime(mime string) bool { return true }
func (b *stubBackend) CanDecode(s iostream.Stream) bool { return true }
func (b *stubBackend) Info(file string, tags *playlist.Tags, mask playlist.FilledMask) error {
	return nil
}
func (b *stubBackend) GetName() string { return "STB" }
