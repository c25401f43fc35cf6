package equalizer

import "math"

// eulerMinusOne is (e-1), the denominator of the soft mixer's perceptual
// gain curve.
var eulerMinusOne = math.E - 1

// SoftMixer implements software volume control by multiplying each sample
// by (exp(vol/100)-1)/(e-1) so vol=100 is unity gain and the response is
// perceptually log-shaped. Mono mode averages both channels into both
// outputs before applying gain.
type SoftMixer struct {
	Vol  int // 0..100
	Mono bool
}

// Gain returns the linear multiplier for the current Vol setting.
func (m *SoftMixer) Gain() float64 {
	v := float64(m.Vol)
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return (math.Exp(v/100) - 1) / eulerMinusOne
}

// ProcessInPlace applies the soft mixer's gain (and, if Mono, a
// stereo-to-mono-in-both-channels fold) to interleaved float64 frames.
func (m *SoftMixer) ProcessInPlace(frames []float64, channels int) {
	gain := m.Gain()

	if m.Mono && channels == 2 {
		for i := 0; i+1 < len(frames); i += 2 {
			avg := (frames[i] + frames[i+1]) / 2
			frames[i] = avg * gain
			frames[i+1] = avg * gain
		}
		return
	}

	for i := range frames {
		frames[i] *= gain
	}
}
