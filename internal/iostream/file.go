package iostream

import (
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync"
)

// FileStream implements Stream over an os.File opened in the ordinary
// buffered-read mode.
type FileStream struct {
	mu       sync.Mutex
	f        *os.File
	size     int64
	pos      int64
	eof      bool
	ok       bool
	errStr   string
	aborted  bool
	mimeType string
}

// OpenFile opens path as a plain file-descriptor-backed stream.
func OpenFile(path string) (*FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileStream{
		f:        f,
		size:     info.Size(),
		ok:       true,
		mimeType: mimeFromExt(path),
	}, nil
}

func mimeFromExt(path string) string {
	t := mime.TypeByExtension(filepath.Ext(path))
	if t == "" {
		return "application/octet-stream"
	}
	return t
}

func (s *FileStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return 0, ErrAborted
	}
	n, err := s.f.Read(p)
	s.pos += int64(n)
	if err == io.EOF || (err == nil && s.pos >= s.size) {
		s.eof = true
		return n, nil
	}
	if err != nil {
		s.ok = false
		s.errStr = err.Error()
	}
	return n, err
}

func (s *FileStream) Peek(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, n)
	read, err := s.f.ReadAt(buf, s.pos)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}

func (s *FileStream) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, err := s.f.Seek(offset, whence)
	if err != nil {
		s.ok = false
		s.errStr = err.Error()
		return 0, err
	}
	s.pos = pos
	s.eof = false
	return pos, nil
}

func (s *FileStream) Tell() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *FileStream) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *FileStream) FileSize() int64 { return s.Size() }

func (s *FileStream) Eof() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eof
}

func (s *FileStream) Ok() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ok
}

func (s *FileStream) Strerror() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errStr
}

func (s *FileStream) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
}

func (s *FileStream) MimeType() string        { return s.mimeType }
func (s *FileStream) MetadataTitle() string   { return "" }
func (s *FileStream) MetadataURL() string     { return "" }
func (s *FileStream) Seekable() bool          { return true }

// Prebuffer is a no-op for local files: the data is already entirely
// available via the filesystem.
func (s *FileStream) Prebuffer(n int) error { return nil }

func (s *FileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
