package outdriver

import (
	"errors"
	"testing"

	"github.com/fluxradio/fluxd/internal/soundfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDriver struct {
	name    string
	initErr error
}

func (s *stubDriver) Name() string                   { return s.name }
func (s *stubDriver) Init() (Caps, error)             { return Caps{}, s.initErr }
func (s *stubDriver) Shutdown()                       {}
func (s *stubDriver) Open(soundfmt.Params) error      { return nil }
func (s *stubDriver) Close()                          {}
func (s *stubDriver) Play(buf []byte) (int, error)    { return len(buf), nil }
func (s *stubDriver) ReadMixer() int                  { return 100 }
func (s *stubDriver) SetMixer(vol int)                {}
func (s *stubDriver) GetBuffFill() int                { return 0 }
func (s *stubDriver) Reset() error                    { return nil }
func (s *stubDriver) Rate() int                       { return 44100 }
func (s *stubDriver) ToggleMixerChannel()             {}
func (s *stubDriver) GetMixerChannelName() string     { return "" }

func TestSelectPicksFirstSuccessfulInitInPriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubDriver{name: "a", initErr: errors.New("no device")})
	r.Register(&stubDriver{name: "b"})
	r.Register(&stubDriver{name: "c"})

	d, _, err := r.Select("")
	require.NoError(t, err)
	assert.Equal(t, "b", d.Name())
}

func TestSelectHonorsPreferredName(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubDriver{name: "a"})
	r.Register(&stubDriver{name: "b"})

	d, _, err := r.Select("b")
	require.NoError(t, err)
	assert.Equal(t, "b", d.Name())
}

func TestSelectReturnsErrWhenAllFail(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubDriver{name: "a", initErr: errors.New("nope")})
	r.Register(&stubDriver{name: "b", initErr: errors.New("nope")})

	_, _, err := r.Select("")
	assert.ErrorIs(t, err, ErrNoDriverAvailable)
}
