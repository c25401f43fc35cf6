package eqpreset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fluxradio/fluxd/internal/equalizer"
)

// Manager cycles through the EQSET preset files found in a directory,
// handing back a ready-to-use equalizer.Equalizer for whichever preset is
// current.
type Manager struct {
	dir        string
	files      []string
	idx        int
	channels   int
	sampleRate float64
	mixin      float64
}

// NewManager scans dir for preset files (any regular file, sorted by
// name) and positions at the first one, if any.
func NewManager(dir string, channels int, sampleRate float64) (*Manager, error) {
	m := &Manager{dir: dir, channels: channels, sampleRate: sampleRate, mixin: 1.0}
	if dir == "" {
		return m, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m.files = append(m.files, e.Name())
	}
	sort.Strings(m.files)
	return m, nil
}

// Reconfigure updates the channel/sample-rate parameters future
// equalizers are built with (the output device may have changed).
func (m *Manager) Reconfigure(channels int, sampleRate float64) {
	m.channels = channels
	m.sampleRate = sampleRate
}

// Name returns the current preset's file name, or "" if none is loaded.
func (m *Manager) Name() string {
	if len(m.files) == 0 {
		return ""
	}
	return m.files[m.idx]
}

// Current loads and returns the equalizer for the current preset, or nil
// if no presets were found.
func (m *Manager) Current() (*equalizer.Equalizer, error) {
	if len(m.files) == 0 {
		return nil, nil
	}
	path := filepath.Join(m.dir, m.files[m.idx])
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eqpreset: open %s: %w", path, err)
	}
	defer f.Close()

	preset, err := Parse(f, m.files[m.idx])
	if err != nil {
		return nil, err
	}
	return equalizer.New(m.channels, m.sampleRate, preset.Bands, preset.Preamp, m.mixin), nil
}

// Next advances to the next preset, wrapping around, and returns its
// equalizer.
func (m *Manager) Next() (*equalizer.Equalizer, error) {
	if len(m.files) == 0 {
		return nil, nil
	}
	m.idx = (m.idx + 1) % len(m.files)
	return m.Current()
}

// Prev moves to the previous preset, wrapping around, and returns its
// equalizer.
func (m *Manager) Prev() (*equalizer.Equalizer, error) {
	if len(m.files) == 0 {
		return nil, nil
	}
	m.idx = (m.idx - 1 + len(m.files)) % len(m.files)
	return m.Current()
}
