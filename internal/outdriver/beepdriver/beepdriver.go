// Package beepdriver implements outdriver.Driver over
// github.com/gopxl/beep/v2/speaker, grounded on the package's
// Init(sampleRate, bufferSize) + Play(streamer) pattern. Since speaker
// pulls samples from a beep.Streamer rather than accepting pushed byte
// buffers, Play here hands S16 frames to a small internal streamer over a
// bounded channel, which provides Play's backpressure.
package beepdriver

import (
	"fmt"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/fluxradio/fluxd/internal/outdriver"
	"github.com/fluxradio/fluxd/internal/soundfmt"
)

const queueDepth = 64 // frames queued in channel form, not bytes

// Driver is a beep/speaker-backed output driver.
type Driver struct {
	mu       sync.Mutex
	channels int
	rate     int
	vol      float64
	stream   *queueStreamer
	opened   bool
}

// New returns an uninitialized beep/speaker driver at full volume.
func New() *Driver {
	return &Driver{vol: 1}
}

func (d *Driver) Name() string { return "beepdriver" }

func (d *Driver) Init() (outdriver.Caps, error) {
	return outdriver.Caps{Formats: []soundfmt.Format{soundfmt.S16 | soundfmt.LE}}, nil
}

func (d *Driver) Shutdown() {
	speaker.Close()
}

func (d *Driver) Open(params soundfmt.Params) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	bufferSize := params.Rate / 20 // 50ms, a typical beep buffer size
	if err := speaker.Init(beep.SampleRate(params.Rate), bufferSize); err != nil {
		return fmt.Errorf("beepdriver: init: %w", err)
	}

	d.channels = params.Channels
	d.rate = params.Rate
	d.stream = newQueueStreamer(params.Channels, queueDepth)
	speaker.Play(d.stream)
	d.opened = true
	return nil
}

func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.opened {
		return
	}
	d.stream.close()
	d.opened = false
}

// Play pushes little-endian S16 frames onto the queue streamer, which
// speaker's audio callback drains; the channel send blocks when the queue
// is full, giving the caller natural backpressure.
func (d *Driver) Play(buf []byte) (int, error) {
	d.mu.Lock()
	stream := d.stream
	channels := d.channels
	d.mu.Unlock()
	if stream == nil {
		return -1, fmt.Errorf("beepdriver: device not open")
	}

	frameBytes := 2 * channels
	n := len(buf) / frameBytes * frameBytes
	speaker.Lock()
	stream.push(buf[:n])
	speaker.Unlock()
	return n, nil
}

func (d *Driver) ReadMixer() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int(d.vol * 100)
}

func (d *Driver) SetMixer(vol int) {
	if vol < 0 {
		vol = 0
	}
	if vol > 100 {
		vol = 100
	}
	d.mu.Lock()
	d.vol = float64(vol) / 100
	if d.stream != nil {
		d.stream.setGain(d.vol)
	}
	d.mu.Unlock()
}

func (d *Driver) GetBuffFill() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return 0
	}
	return d.stream.queuedBytes()
}

func (d *Driver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		d.stream.drain()
	}
	return nil
}

func (d *Driver) Rate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// ToggleMixerChannel is a no-op: speaker exposes one software volume.
func (d *Driver) ToggleMixerChannel() {}

func (d *Driver) GetMixerChannelName() string { return "software" }
