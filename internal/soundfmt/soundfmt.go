// Package soundfmt defines the sound-parameter triple and sample-format
// bitfield shared by every stage of the decode/convert/output pipeline.
package soundfmt

import "fmt"

// Format is a bitfield. Exactly one sample-format bit and, for non-8-bit
// non-float formats, exactly one endianness bit must be set for a value to
// be valid (see Valid).
type Format uint32

const (
	S8 Format = 1 << iota
	U8
	S16
	U16
	S32 // 24-in-32
	U32 // 24-in-32
	Float

	LE
	BE
)

// sampleMask covers every sample-format bit.
const sampleMask = S8 | U8 | S16 | U16 | S32 | U32 | Float

// endianMask covers every endianness bit.
const endianMask = LE | BE

// NE is the host's native endianness tag, resolved once at init time.
var NE Format

func init() {
	NE = nativeEndian()
}

// NeedsEndian reports whether fmt's sample format carries an explicit
// endianness tag (8-bit and float formats do not).
func NeedsEndian(f Format) bool {
	sample := f & sampleMask
	return sample != S8 && sample != U8 && sample != Float
}

// Valid reports whether f carries exactly one sample-format bit and,
// if required, exactly one endianness bit.
func Valid(f Format) bool {
	sample := f & sampleMask
	if popcount32(uint32(sample)) != 1 {
		return false
	}
	if !NeedsEndian(f) {
		return true
	}
	endian := f & endianMask
	return popcount32(uint32(endian)) == 1
}

// BytesPerSample returns the byte width of a single sample in this format's
// sample component (independent of channel count).
func BytesPerSample(f Format) int {
	switch f & sampleMask {
	case S8, U8:
		return 1
	case S16, U16:
		return 2
	case S32, U32, Float:
		return 4
	default:
		return 0
	}
}

// Signed reports whether the sample format is a signed integer format.
// Float is treated as signed for clipping purposes.
func Signed(f Format) bool {
	switch f & sampleMask {
	case S8, S16, S32, Float:
		return true
	default:
		return false
	}
}

// IsFloat reports whether f's sample component is FLOAT.
func IsFloat(f Format) bool {
	return f&sampleMask == Float
}

// Endianness resolves the effective byte order of f, substituting NE for
// formats that carry no explicit tag.
func Endianness(f Format) Format {
	if !NeedsEndian(f) {
		return NE
	}
	return f & endianMask
}

// Params is the {channels, rate, fmt} triple describing a PCM stream's
// shape.
type Params struct {
	Channels int
	Rate     int
	Fmt      Format
}

// Eq reports whether two Params are identical in all three fields.
func (p Params) Eq(o Params) bool {
	return p.Channels == o.Channels && p.Rate == o.Rate && p.Fmt == o.Fmt
}

// BytesPerFrame returns bytes-per-sample * channels, i.e. the size of one
// interleaved multi-channel frame.
func (p Params) BytesPerFrame() int {
	return BytesPerSample(p.Fmt) * p.Channels
}

// BytesPerSecond returns the byte rate implied by this format, used by the
// output buffer to convert drained bytes into wall-clock seconds.
func (p Params) BytesPerSecond() int {
	return p.BytesPerFrame() * p.Rate
}

// String renders a human-readable form for logging, e.g. "44100Hz/2ch/S16LE".
func (p Params) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", p.Rate, p.Channels, formatName(p.Fmt))
}

func formatName(f Format) string {
	var base string
	switch f & sampleMask {
	case S8:
		return "S8"
	case U8:
		return "U8"
	case S16:
		base = "S16"
	case U16:
		base = "U16"
	case S32:
		base = "S32"
	case U32:
		base = "U32"
	case Float:
		return "FLOAT"
	default:
		return "?"
	}
	if f&BE != 0 {
		return base + "BE"
	}
	return base + "LE"
}

// RateWithinTolerance reports whether two rates are close enough that no resampling stage is required.
func RateWithinTolerance(a, b int) bool {
	if a == 0 || b == 0 {
		return a == b
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return float64(diff)/float64(a) <= 0.05
}

func popcount32(x uint32) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}
