// Package convert implements the audio conversion pipeline: format
// widening/narrowing, endian swap, resampling and channel remapping,
// applied only when the requested and driver sound parameters actually
// differ.
package convert

import (
	"github.com/fluxradio/fluxd/internal/soundfmt"
)

// Resampler converts a slice of canonicalized float64 frames (interleaved
// by channel) from one sample rate to another. A linear resampler is the
// only implementation shipped, since it's the fast default; the interface
// leaves room for a higher-quality algorithm without touching the
// pipeline that drives it.
type Resampler interface {
	Resample(in []float64, channels int, inRate, outRate int) []float64
}

// Pipeline applies the ordered conversion stages: format widen/narrow+sign,
// endian swap, resample, channel conversion.
type Pipeline struct {
	req       soundfmt.Params
	drv       soundfmt.Params
	resampler Resampler
}

// NewPipeline returns nil (meaning: pass through unmodified) unless any of
// the three "any of" conditions hold: format mismatch, channel
// count mismatch, or a rate difference exceeding 5% tolerance.
func NewPipeline(req, drv soundfmt.Params) *Pipeline {
	needed := req.Fmt != drv.Fmt ||
		req.Channels != drv.Channels ||
		!soundfmt.RateWithinTolerance(req.Rate, drv.Rate)
	if !needed {
		return nil
	}
	return &Pipeline{req: req, drv: drv, resampler: LinearResampler{}}
}

// SetResampler overrides the default linear resampler.
func (p *Pipeline) SetResampler(r Resampler) {
	p.resampler = r
}

// Convert runs src (raw bytes in p.req's format) through every needed stage
// and returns raw bytes in p.drv's format.
func (p *Pipeline) Convert(src []byte) []byte {
	frames := ToFloat64(src, p.req.Fmt)

	if !soundfmt.RateWithinTolerance(p.req.Rate, p.drv.Rate) {
		frames = p.resampler.Resample(frames, p.req.Channels, p.req.Rate, p.drv.Rate)
	}

	if p.req.Channels != p.drv.Channels {
		frames = ConvertChannels(frames, p.req.Channels, p.drv.Channels)
	}

	return FromFloat64(frames, p.drv.Fmt)
}
