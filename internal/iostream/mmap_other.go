//go:build !unix

package iostream

// MmapStream is unavailable on non-unix platforms; OpenMmap falls back to
// an ordinary buffered FileStream so callers don't need a build-tag switch
// of their own.
type MmapStream = FileStream

// OpenMmap falls back to OpenFile on platforms without unix.Mmap.
func OpenMmap(path string) (*MmapStream, error) {
	return OpenFile(path)
}
