package convert

import (
	"encoding/binary"
	"math"

	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// ToFloat64 decodes raw bytes in the given format into canonicalized
// float64 samples in [-1, 1], folding the format-widen/narrow+sign-adjust
// and endian-swap stages into a single pass: reading the source format
// correctly already accounts for both.
func ToFloat64(src []byte, fmtSpec soundfmt.Format) []float64 {
	bps := soundfmt.BytesPerSample(fmtSpec)
	if bps == 0 {
		return nil
	}
	n := len(src) / bps
	out := make([]float64, n)

	bo := byteOrder(fmtSpec)

	for i := 0; i < n; i++ {
		chunk := src[i*bps : (i+1)*bps]
		out[i] = decodeSample(chunk, fmtSpec, bo)
	}
	return out
}

// FromFloat64 encodes canonicalized float64 samples back into raw bytes in
// the given destination format, clipping to the integer range.
func FromFloat64(samples []float64, fmtSpec soundfmt.Format) []byte {
	bps := soundfmt.BytesPerSample(fmtSpec)
	out := make([]byte, len(samples)*bps)
	bo := byteOrder(fmtSpec)

	for i, s := range samples {
		encodeSample(out[i*bps:(i+1)*bps], s, fmtSpec, bo)
	}
	return out
}

func byteOrder(f soundfmt.Format) binary.ByteOrder {
	if soundfmt.Endianness(f) == soundfmt.BE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func decodeSample(b []byte, f soundfmt.Format, bo binary.ByteOrder) float64 {
	switch {
	case f&soundfmt.Float != 0:
		bits := bo.Uint32(b)
		return float64(math.Float32frombits(bits))
	case f&soundfmt.S8 != 0:
		return float64(int8(b[0])) / 128.0
	case f&soundfmt.U8 != 0:
		return (float64(b[0]) - 128.0) / 128.0
	case f&soundfmt.S16 != 0:
		v := int16(bo.Uint16(b))
		return float64(v) / 32768.0
	case f&soundfmt.U16 != 0:
		v := bo.Uint16(b)
		return (float64(v) - 32768.0) / 32768.0
	case f&soundfmt.S32 != 0:
		v := int32(bo.Uint32(b))
		return float64(v) / 2147483648.0
	case f&soundfmt.U32 != 0:
		v := bo.Uint32(b)
		return (float64(v) - 2147483648.0) / 2147483648.0
	}
	return 0
}

func encodeSample(b []byte, s float64, f soundfmt.Format, bo binary.ByteOrder) {
	if s > 1.0 {
		s = 1.0
	}
	if s < -1.0 {
		s = -1.0
	}
	// scale multiplies by the same full-scale factor decodeSample divides
	// by, so integer samples survive a decode/encode round trip; +1.0 clips
	// to the format's maximum.
	scale := func(full float64) int64 {
		v := int64(s * full)
		if v >= int64(full) {
			v = int64(full) - 1
		}
		return v
	}
	switch {
	case f&soundfmt.Float != 0:
		bo.PutUint32(b, math.Float32bits(float32(s)))
	case f&soundfmt.S8 != 0:
		b[0] = byte(int8(scale(128)))
	case f&soundfmt.U8 != 0:
		b[0] = byte(scale(128) + 128)
	case f&soundfmt.S16 != 0:
		bo.PutUint16(b, uint16(int16(scale(32768))))
	case f&soundfmt.U16 != 0:
		bo.PutUint16(b, uint16(scale(32768)+32768))
	case f&soundfmt.S32 != 0:
		bo.PutUint32(b, uint32(int32(scale(2147483648))))
	case f&soundfmt.U32 != 0:
		bo.PutUint32(b, uint32(scale(2147483648)+2147483648))
	}
}
