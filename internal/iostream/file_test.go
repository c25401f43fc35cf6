package iostream

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStreamReadSeekTell(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	s, err := OpenFile(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, int64(10), s.Size())
	assert.True(t, s.Seekable())

	buf := make([]byte, 4)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123", string(buf))
	assert.Equal(t, int64(4), s.Tell())

	pos, err := s.Seek(2, SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pos)

	peeked, err := s.Peek(3)
	require.NoError(t, err)
	assert.Equal(t, "234", string(peeked))
	// Peek must not advance the cursor.
	assert.Equal(t, int64(2), s.Tell())
}

func TestFileStreamEOF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("ab"), 0o644))

	s, err := OpenFile(path)
	require.NoError(t, err)
	defer s.Close()

	buf := make([]byte, 10)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, s.Eof())
	assert.True(t, s.Ok())
}

func TestFileStreamAbort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(path, []byte("ab"), 0o644))

	s, err := OpenFile(path)
	require.NoError(t, err)
	defer s.Close()

	s.Abort()
	_, err = s.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrAborted)
}
