// Package outdriver defines the polymorphic output-driver capability set
// and the priority-ordered selection used to pick the first
// backend whose Init succeeds.
package outdriver

import (
	"errors"

	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// ErrNoDriverAvailable is returned by Open when every registered driver's
// Init failed.
var ErrNoDriverAvailable = errors.New("outdriver: no driver initialized successfully")

// Caps describes what a driver reports after a successful Init.
type Caps struct {
	// Formats lists every soundfmt.Format the driver claims to accept
	// directly (an empty list means "negotiate at Open time").
	Formats []soundfmt.Format
}

// Driver is one output backend. Its methods are called from several
// goroutines: the output-buffer consumer calls Play, the player opens the
// device, control-socket handlers call the mixer methods, and position
// queries call GetBuffFill. Each implementation guards its own state.
type Driver interface {
	// Name identifies this driver for configuration (SoundDriver) and
	// diagnostics.
	Name() string

	// Init probes whether the backend is usable on this machine (device
	// present, library loadable) and reports its capabilities.
	Init() (Caps, error)

	// Shutdown releases any resources acquired by Init.
	Shutdown()

	// Open opens the device for the given sound parameters. The driver
	// may choose a different rate than requested; callers must call
	// Rate() afterward and insert conversion if it differs.
	Open(params soundfmt.Params) error

	// Close closes the device opened by Open.
	Close()

	// Play writes buf to the device and returns the number of bytes
	// consumed, or a negative value on error.
	Play(buf []byte) (int, error)

	// ReadMixer returns the current volume in [0,100].
	ReadMixer() int

	// SetMixer sets the volume in [0,100].
	SetMixer(vol int)

	// GetBuffFill returns bytes written to the device but not yet
	// physically played (device/driver latency).
	GetBuffFill() int

	// Reset flushes the device's internal buffer.
	Reset() error

	// Rate returns the device's actual sample rate after Open.
	Rate() int

	// ToggleMixerChannel cycles which hardware channel SetMixer/ReadMixer
	// address (e.g. PCM vs Master), for drivers that expose more than
	// one.
	ToggleMixerChannel()

	// GetMixerChannelName names the channel currently addressed by
	// ReadMixer/SetMixer.
	GetMixerChannelName() string
}

// Registry holds drivers in configured priority order.
type Registry struct {
	drivers []Driver
}

// NewRegistry returns an empty registry; drivers are tried in the order
// they are registered.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a driver to the priority list.
func (r *Registry) Register(d Driver) {
	r.drivers = append(r.drivers, d)
}

// Drivers returns the registered drivers in priority order.
func (r *Registry) Drivers() []Driver {
	return r.drivers
}

// ByName returns the registered driver with the given name, or nil.
func (r *Registry) ByName(name string) Driver {
	for _, d := range r.drivers {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Select returns the first driver in priority order whose Init succeeds.
// If preferred is non-empty, that driver is tried first regardless of its
// position in the registry.
func (r *Registry) Select(preferred string) (Driver, Caps, error) {
	ordered := r.drivers
	if preferred != "" {
		if d := r.ByName(preferred); d != nil {
			ordered = append([]Driver{d}, removeDriver(r.drivers, d)...)
		}
	}

	for _, d := range ordered {
		caps, err := d.Init()
		if err == nil {
			return d, caps, nil
		}
	}
	return nil, Caps{}, ErrNoDriverAvailable
}

func removeDriver(all []Driver, exclude Driver) []Driver {
	out := make([]Driver, 0, len(all))
	for _, d := range all {
		if d != exclude {
			out = append(out, d)
		}
	}
	return out
}
