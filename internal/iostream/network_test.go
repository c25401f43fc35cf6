package iostream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// icyHandler serves a fixed audio payload with a single ICY metadata block
// injected at the given metaint, announcing the given title.
func icyHandler(audio []byte, metaint int, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("icy-metaint", fmt.Sprintf("%d", metaint))
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)

		meta := fmt.Sprintf("StreamTitle='%s';", title)
		metaBlock := make([]byte, 0, 16*((len(meta)/16)+1)+1)
		padded := meta
		for len(padded)%16 != 0 {
			padded += "\x00"
		}
		metaBlock = append(metaBlock, byte(len(padded)/16))
		metaBlock = append(metaBlock, []byte(padded)...)

		first := audio[:metaint]
		rest := audio[metaint:]

		w.Write(first)
		w.Write(metaBlock)
		w.Write(rest)
	}
}

func TestNetworkStreamReadsAudioAroundICYBlock(t *testing.T) {
	audio := strings.Repeat("A", 100) + strings.Repeat("B", 100)
	srv := httptest.NewServer(icyHandler([]byte(audio), 100, "Now Playing: Test"))
	defer srv.Close()

	s, err := OpenNetwork(context.Background(), srv.URL)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Prebuffer(len(audio)))

	out := make([]byte, len(audio))
	total := 0
	for total < len(audio) {
		n, err := s.Read(out[total:])
		require.NoError(t, err)
		if n == 0 {
			break
		}
		total += n
	}
	assert.Equal(t, audio, string(out[:total]))
	assert.Equal(t, "Now Playing: Test", s.MetadataTitle())
}

func TestNetworkStreamNotSeekable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	s, err := OpenNetwork(context.Background(), srv.URL)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Seekable())
	_, err = s.Seek(0, SeekStart)
	assert.ErrorIs(t, err, ErrNotSeekable)
}

func TestNetworkStreamAbortUnblocksRead(t *testing.T) {
	blockCh := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-blockCh
	}))
	defer srv.Close()
	defer close(blockCh)

	s, err := OpenNetwork(context.Background(), srv.URL)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Prebuffer(1))
	buf := make([]byte, 1)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done := make(chan error, 1)
	go func() {
		_, err := s.Read(buf)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Abort()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAborted)
	case <-time.After(time.Second):
		t.Fatal("Read did not unblock after Abort")
	}
}
