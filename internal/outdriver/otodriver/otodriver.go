// Package otodriver implements outdriver.Driver over
// github.com/ebitengine/oto/v3, grounded on the oto.NewContext/NewPlayer
// pattern of feeding an io.Reader into a long-lived oto.Player. Since
// oto's Player pulls from a Reader rather than accepting pushed buffers,
// Play here writes into an io.Pipe that the Player reads from.
package otodriver

import (
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/fluxradio/fluxd/internal/outdriver"
	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// Driver is an oto-backed output driver, S16LE only (oto's native format).
type Driver struct {
	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
	pw     *io.PipeWriter
	rate   int
}

// New returns an uninitialized oto driver.
func New() *Driver { return &Driver{} }

func (d *Driver) Name() string { return "otodriver" }

func (d *Driver) Init() (outdriver.Caps, error) {
	return outdriver.Caps{Formats: []soundfmt.Format{soundfmt.S16 | soundfmt.LE}}, nil
}

func (d *Driver) Shutdown() {}

func (d *Driver) Open(params soundfmt.Params) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	op := &oto.NewContextOptions{
		SampleRate:   params.Rate,
		ChannelCount: params.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("otodriver: new context: %w", err)
	}
	<-ready

	pr, pw := io.Pipe()
	player := ctx.NewPlayer(pr)
	player.Play()

	d.ctx = ctx
	d.player = player
	d.pw = pw
	d.rate = params.Rate
	return nil
}

func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return
	}
	_ = d.pw.Close()
	_ = d.player.Close()
	d.player = nil
	d.pw = nil
}

// Play blocks writing buf into the pipe the player reads from; oto
// consumes it at the device's real-time rate, which provides the natural
// backpressure the output thread relies on.
func (d *Driver) Play(buf []byte) (int, error) {
	d.mu.Lock()
	pw := d.pw
	d.mu.Unlock()
	if pw == nil {
		return -1, fmt.Errorf("otodriver: device not open")
	}
	n, err := pw.Write(buf)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// ReadMixer and SetMixer map onto oto.Player's per-player float volume.
func (d *Driver) ReadMixer() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return 100
	}
	return int(d.player.Volume() * 100)
}

func (d *Driver) SetMixer(vol int) {
	if vol < 0 {
		vol = 0
	}
	if vol > 100 {
		vol = 100
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player != nil {
		d.player.SetVolume(float64(vol) / 100)
	}
}

// GetBuffFill reports how many bytes oto still holds unplayed, as given by
// UnplayedBufferSize.
func (d *Driver) GetBuffFill() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return 0
	}
	return int(d.player.UnplayedBufferSize())
}

func (d *Driver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.player == nil {
		return nil
	}
	d.player.Pause()
	d.player.Play()
	return nil
}

func (d *Driver) Rate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// ToggleMixerChannel is a no-op: oto exposes one player-level volume.
func (d *Driver) ToggleMixerChannel() {}

func (d *Driver) GetMixerChannelName() string { return "software" }
