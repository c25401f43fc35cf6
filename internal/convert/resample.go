package convert

// LinearResampler implements Resampler via linear interpolation between
// adjacent frames, the default/fast resampling algorithm.
type LinearResampler struct{}

// Resample linearly interpolates in to outRate, treating the slice as
// interleaved frames of `channels` samples each.
func (LinearResampler) Resample(in []float64, channels int, inRate, outRate int) []float64 {
	if channels <= 0 || inRate <= 0 || outRate <= 0 || len(in) == 0 {
		return nil
	}
	inFrames := len(in) / channels
	if inFrames == 0 {
		return nil
	}

	ratio := float64(inRate) / float64(outRate)
	outFrames := int(float64(inFrames) / ratio)
	if outFrames < 1 {
		outFrames = 1
	}

	out := make([]float64, outFrames*channels)
	for i := 0; i < outFrames; i++ {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		if i0 >= inFrames-1 {
			i0 = inFrames - 2
			if i0 < 0 {
				i0 = 0
			}
		}
		i1 := i0 + 1
		if i1 >= inFrames {
			i1 = inFrames - 1
		}
		frac := srcPos - float64(i0)

		for c := 0; c < channels; c++ {
			a := in[i0*channels+c]
			b := in[i1*channels+c]
			out[i*channels+c] = a + (b-a)*frac
		}
	}
	return out
}
