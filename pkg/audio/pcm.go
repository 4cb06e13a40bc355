package audio

import "math"

// RMS returns the root-mean-square of raw 16-bit samples, on the int16 scale.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if math.IsNaN(rms) || math.IsInf(rms, 0) {
		return 0
	}
	return rms
}

// NormRMS returns the RMS normalized to [0,1].
func NormRMS(samples []int16) float64 {
	return RMS(samples) / 32768.0
}

// Peak returns the absolute peak amplitude on the int16 scale.
func Peak(samples []int16) float64 {
	var peak float64
	for _, s := range samples {
		f := math.Abs(float64(s))
		if f > peak {
			peak = f
		}
	}
	return peak
}

// ToFloat32 converts 16-bit PCM to normalized float32 samples.
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Resample converts normalized samples from one rate to another by linear
// interpolation. Good enough for feature extraction; not a polyphase design.
func Resample(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	ratio := float64(fromRate) / float64(toRate)
	n := int(float64(len(in)) / ratio)
	out := make([]float32, n)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return out
}
