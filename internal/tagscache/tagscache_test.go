package tagscache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fluxradio/fluxd/internal/decoder"
	"github.com/fluxradio/fluxd/internal/iostream"
	"github.com/fluxradio/fluxd/internal/playlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct{ album string }

func (b *stubBackend) Name() string { return "stub" }
func (b *stubBackend) Open(uri string) (decoder.Instance, error) { return nil, nil }
func (b *stubBackend) OpenStream(s iostream.Stream) (decoder.Instance, error) {
	return nil, nil
}
func (b *stubBackend) OurFormatExt(ext string) bool        { return ext == "flac" }
func (b *stubBackend) OurFormatMime(mime string) bool       { return false }
func (b *stubBackend) CanDecode(s iostream.Stream) bool      { return false }
func (b *stubBackend) Info(file string, tags *playlist.Tags, mask playlist.FilledMask) error {
	tags.Title = "Some Song"
	tags.Album = b.album
	tags.Time = 123
	tags.Filled |= playlist.FilledComments | playlist.FilledTime
	return nil
}

func newRegistry(album string) *decoder.Registry {
	reg := decoder.NewRegistry()
	reg.Register(&stubBackend{album: album})
	return reg
}

func writeTempFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	return path
}

func TestAddRequestResolvesViaBackgroundReader(t *testing.T) {
	file := writeTempFile(t, "a.flac")

	var mu sync.Mutex
	results := map[string]*playlist.Tags{}
	done := make(chan struct{}, 1)

	c, err := Open(t.TempDir(), 10, 100, newRegistry("Album1"), func(client ClientID, f string, tags *playlist.Tags) {
		mu.Lock()
		results[f] = tags
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)
	defer c.Close()

	c.AddRequest(file, playlist.FilledComments|playlist.FilledTime, NewClientID())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tags response")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, results, file)
	assert.Equal(t, "Some Song", results[file].Title)
	assert.Equal(t, "Album1", results[file].Album)
}

func TestGetImmediateAfterBackgroundResolve(t *testing.T) {
	file := writeTempFile(t, "b.flac")
	dir := t.TempDir()

	calls := 0
	var mu sync.Mutex
	c, err := Open(dir, 10, 100, newRegistry("X"), func(client ClientID, f string, tags *playlist.Tags) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer c.Close()

	client := NewClientID()
	c.AddRequest(file, playlist.FilledComments|playlist.FilledTime, client)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, 2*time.Second, time.Millisecond)

	tags, ok := c.GetImmediate(file, playlist.FilledComments|playlist.FilledTime)
	require.True(t, ok)
	assert.Equal(t, "Some Song", tags.Title)
}

func TestGetImmediateMissingReturnsFalse(t *testing.T) {
	c, err := Open(t.TempDir(), 10, 100, newRegistry("X"), nil)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.GetImmediate("/no/such/file", playlist.FilledComments)
	assert.False(t, ok)
}

func TestEvictionDropsLowestATime(t *testing.T) {
	dir := t.TempDir()
	var mu sync.Mutex
	resolved := make(map[string]bool)
	done := make(chan struct{}, 10)

	c, err := Open(dir, 3, 1000, newRegistry("X"), func(client ClientID, f string, tags *playlist.Tags) {
		mu.Lock()
		resolved[f] = true
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)
	defer c.Close()

	files := make([]string, 4)
	for i := 0; i < 4; i++ {
		files[i] = writeTempFile(t, string(rune('a'+i))+".flac")
		c.AddRequest(files[i], playlist.FilledComments|playlist.FilledTime, NewClientID())
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for resolution")
		}
	}

	c.dbMu.Lock()
	_, firstPresent := c.records[files[0]]
	_, lastPresent := c.records[files[3]]
	count := len(c.records)
	c.dbMu.Unlock()

	assert.False(t, firstPresent, "oldest record should have been evicted")
	assert.True(t, lastPresent)
	assert.LessOrEqual(t, count, 3)
}

func TestClearQueueDropsPendingRequests(t *testing.T) {
	c, err := Open(t.TempDir(), 10, 1000, newRegistry("X"), func(ClientID, string, *playlist.Tags) {})
	require.NoError(t, err)
	defer c.Close()

	client := NewClientID()
	c.qMu.Lock()
	c.order = append(c.order, client)
	c.queues[client] = []request{{file: "x.flac"}}
	c.qMu.Unlock()

	c.ClearQueue(client)

	c.qMu.Lock()
	defer c.qMu.Unlock()
	assert.Empty(t, c.queues[client])
	assert.NotContains(t, c.order, client)
}

func TestVersionMismatchPurgesCache(t *testing.T) {
	dir := t.TempDir()
	versionPath := filepath.Join(dir, "version")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, writeVersion(versionPath, versionInfo{CacheFormatVersion: 999}))

	sentinel := filepath.Join(dir, "stale.marker")
	require.NoError(t, os.WriteFile(sentinel, []byte("x"), 0o644))

	c, err := Open(dir, 10, 100, newRegistry("X"), nil)
	require.NoError(t, err)
	defer c.Close()

	_, statErr := os.Stat(sentinel)
	assert.True(t, os.IsNotExist(statErr))
}
