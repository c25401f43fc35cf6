// Package equalizer implements the peaking-biquad cascade and soft mixer
// gain curve, using the Audio EQ Cookbook peaking-EQ formulas by Robert
// Bristow-Johnson.
package equalizer

import "math"

// Biquad holds one peaking filter's coefficients and its per-channel
// (x1,x2,y1,y2) state, reset whenever sample rate or channel count changes.
type Biquad struct {
	a0, a1, a2, a3, a4 float64
	x1, x2, y1, y2     float64

	CenterFreq float64
	Bandwidth  float64 // octaves
	GainDB     float64
}

// NewBiquad derives coefficients for a peaking filter at centerFreq Hz,
// bandwidth octaves wide, with gainDB of boost/cut, at the given sample
// rate.
func NewBiquad(gainDB, centerFreq, sampleRate, bandwidth float64) *Biquad {
	b := &Biquad{CenterFreq: centerFreq, Bandwidth: bandwidth, GainDB: gainDB}
	b.recompute(sampleRate)
	return b
}

func (b *Biquad) recompute(sampleRate float64) {
	A := math.Pow(10, b.GainDB/40.0)
	omega := 2 * math.Pi * b.CenterFreq / sampleRate
	sn := math.Sin(omega)
	cs := math.Cos(omega)
	alpha := sn * math.Sinh(math.Ln2/2.0*b.Bandwidth*omega/sn)

	alphaMA := alpha * A
	alphaDA := alpha / A

	b0 := 1.0 + alphaMA
	b1 := -2.0 * cs
	b2 := 1.0 - alphaMA
	a0 := 1.0 + alphaDA
	a1 := b1
	a2 := 1.0 - alphaDA

	b.a0 = b0 / a0
	b.a1 = b1 / a0
	b.a2 = b2 / a0
	b.a3 = a1 / a0
	b.a4 = a2 / a0
}

// ResetState zeroes the filter's per-channel memory (x1,x2,y1,y2), required
// whenever sample rate or channel count changes.
func (b *Biquad) ResetState() {
	b.x1, b.x2, b.y1, b.y2 = 0, 0, 0, 0
}

// Apply filters one sample: y = a0*x + a1*x1 + a2*x2 - a3*y1 - a4*y2,
// shifting the filter's state.
func (b *Biquad) Apply(x float64) float64 {
	y := x*b.a0 + b.a1*b.x1 + b.a2*b.x2 - b.a3*b.y1 - b.a4*b.y2
	b.x2 = b.x1
	b.x1 = x
	b.y2 = b.y1
	b.y1 = y
	return y
}

// Band is the per-band configuration loaded from an EQSET preset.
type Band struct {
	CenterFreq float64
	Bandwidth  float64
	GainDB     float64
}

// Equalizer is a per-channel cascade of peaking biquads plus a preamp and
// dry/wet mix factor.
type Equalizer struct {
	Channels   int
	SampleRate float64
	PreampDB   float64
	Mixin      float64 // 0=fully filtered("wet"), 1=fully dry passthrough

	bands    []Band
	perChan  [][]*Biquad // [channel][band]
}

// New builds an Equalizer for the given channel count and sample rate from
// bands, with preampDB applied before filtering and mixin controlling the
// dry/wet blend (Mixin=0 is fully filtered, Mixin=1 is fully dry).
func New(channels int, sampleRate float64, bands []Band, preampDB, mixin float64) *Equalizer {
	e := &Equalizer{
		Channels:   channels,
		SampleRate: sampleRate,
		PreampDB:   preampDB,
		Mixin:      mixin,
		bands:      bands,
	}
	e.rebuild()
	return e
}

func (e *Equalizer) rebuild() {
	e.perChan = make([][]*Biquad, e.Channels)
	for c := 0; c < e.Channels; c++ {
		chain := make([]*Biquad, len(e.bands))
		for i, band := range e.bands {
			chain[i] = NewBiquad(band.GainDB, band.CenterFreq, e.SampleRate, band.Bandwidth)
		}
		e.perChan[c] = chain
	}
}

// Reconfigure rebuilds every filter's coefficients and resets state: used
// when sample rate or channel count changes.
func (e *Equalizer) Reconfigure(channels int, sampleRate float64) {
	e.Channels = channels
	e.SampleRate = sampleRate
	e.rebuild()
}

func (e *Equalizer) preampGain() float64 {
	return math.Pow(10, e.PreampDB/20.0)
}

// ProcessInPlace applies the preamp, the biquad cascade and the dry/wet mix
// to interleaved float64 frames: each sample becomes
// Mixin*raw + (1-Mixin)*filtered.
func (e *Equalizer) ProcessInPlace(frames []float64) {
	if len(e.bands) == 0 && e.PreampDB == 0 {
		return
	}
	gain := e.preampGain()
	channels := e.Channels
	if channels == 0 {
		return
	}

	for i := 0; i < len(frames); i++ {
		c := i % channels
		raw := frames[i] * gain
		filtered := raw
		for _, bq := range e.perChan[c] {
			filtered = bq.Apply(filtered)
		}
		frames[i] = e.Mixin*raw + (1-e.Mixin)*filtered
	}
}
