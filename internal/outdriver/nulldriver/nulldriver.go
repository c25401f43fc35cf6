// Package nulldriver implements outdriver.Driver as a discard-everything
// backend: Play sleeps for the real-time duration the buffer would have
// taken to play, so higher layers see realistic pacing during headless
// testing. It carries no third-party dependency by design — a fake device
// has nothing to gain from one.
package nulldriver

import (
	"sync"
	"time"

	"github.com/fluxradio/fluxd/internal/outdriver"
	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// Driver discards all audio it is given.
type Driver struct {
	mu     sync.Mutex
	params soundfmt.Params
}

// New returns a null driver.
func New() *Driver {
	return &Driver{}
}

func (d *Driver) Name() string { return "nulldriver" }

func (d *Driver) Init() (outdriver.Caps, error) {
	return outdriver.Caps{
		Formats: []soundfmt.Format{soundfmt.S8, soundfmt.S16 | soundfmt.NE},
	}, nil
}

func (d *Driver) Shutdown() {}

func (d *Driver) Open(params soundfmt.Params) error {
	d.mu.Lock()
	d.params = params
	d.mu.Unlock()
	return nil
}

func (d *Driver) Close() {
	d.mu.Lock()
	d.params = soundfmt.Params{}
	d.mu.Unlock()
}

// Play sleeps for the wall-clock duration size bytes would take to play at
// the open()ed sound parameters, then reports it all consumed.
func (d *Driver) Play(buf []byte) (int, error) {
	d.mu.Lock()
	bps := d.params.BytesPerSecond()
	d.mu.Unlock()

	if bps > 0 {
		time.Sleep(time.Duration(float64(len(buf)) / float64(bps) * float64(time.Second)))
	}
	return len(buf), nil
}

// ReadMixer always reports full scale, matching null_read_mixer's
// constant 100.
func (d *Driver) ReadMixer() int { return 100 }

// SetMixer is a no-op, matching null_set_mixer.
func (d *Driver) SetMixer(vol int) {}

func (d *Driver) GetBuffFill() int { return 0 }

func (d *Driver) Reset() error { return nil }

func (d *Driver) Rate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params.Rate
}

func (d *Driver) ToggleMixerChannel() {}

func (d *Driver) GetMixerChannelName() string { return "null" }
