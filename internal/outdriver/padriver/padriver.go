// Package padriver implements outdriver.Driver over PortAudio
// (github.com/gordonklaus/portaudio), using its
// OpenStream/StreamParameters API for output-only streams. It is the
// first driver tried in default priority order.
package padriver

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/fluxradio/fluxd/internal/outdriver"
	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// Driver is a PortAudio-backed output driver. Volume control is emulated
// in software since PortAudio exposes no hardware mixer.
type Driver struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
	rate   int
	vol    int
}

// New returns a PortAudio driver with volume initialized to full scale.
func New() *Driver {
	return &Driver{vol: 100}
}

func (d *Driver) Name() string { return "padriver" }

func (d *Driver) Init() (outdriver.Caps, error) {
	if err := portaudio.Initialize(); err != nil {
		return outdriver.Caps{}, fmt.Errorf("padriver: initialize: %w", err)
	}
	return outdriver.Caps{Formats: []soundfmt.Format{soundfmt.S16 | soundfmt.NE}}, nil
}

func (d *Driver) Shutdown() {
	_ = portaudio.Terminate()
}

func (d *Driver) Open(params soundfmt.Params) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return fmt.Errorf("padriver: default output device: %w", err)
	}

	const framesPerBuffer = 1024
	d.buf = make([]float32, framesPerBuffer*params.Channels)

	sp := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: params.Channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(params.Rate),
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(sp, d.buf)
	if err != nil {
		return fmt.Errorf("padriver: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("padriver: start stream: %w", err)
	}

	d.stream = stream
	d.rate = params.Rate
	return nil
}

func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return
	}
	d.stream.Stop()
	d.stream.Close()
	d.stream = nil
}

// Play decodes buf as little-endian S16 frames, applies software volume,
// writes them into the PortAudio float32 buffer and flushes via Write.
func (d *Driver) Play(buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return -1, fmt.Errorf("padriver: device not open")
	}

	frameBytes := 2 // S16
	n := len(buf) / frameBytes
	if n > len(d.buf) {
		n = len(d.buf)
	}

	gain := float32(d.vol) / 100
	for i := 0; i < n; i++ {
		s := int16(uint16(buf[2*i]) | uint16(buf[2*i+1])<<8)
		d.buf[i] = (float32(s) / 32768) * gain
	}
	for i := n; i < len(d.buf); i++ {
		d.buf[i] = 0
	}

	if err := d.stream.Write(); err != nil {
		return -1, err
	}
	return n * frameBytes, nil
}

func (d *Driver) ReadMixer() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vol
}

func (d *Driver) SetMixer(vol int) {
	if vol < 0 {
		vol = 0
	}
	if vol > 100 {
		vol = 100
	}
	d.mu.Lock()
	d.vol = vol
	d.mu.Unlock()
}

// GetBuffFill is always 0: PortAudio's blocking Write call reports no
// queryable device-side backlog through this binding.
func (d *Driver) GetBuffFill() int { return 0 }

func (d *Driver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	return d.stream.Stop()
}

func (d *Driver) Rate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// ToggleMixerChannel is a no-op: PortAudio exposes one software volume,
// not multiple hardware-mixer channels.
func (d *Driver) ToggleMixerChannel() {}

func (d *Driver) GetMixerChannelName() string { return "software" }
