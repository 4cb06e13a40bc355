package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sine(freqHz float64, amplitude int16, rate, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(float64(amplitude) * math.Sin(2*math.Pi*freqHz*float64(i)/float64(rate)))
	}
	return out
}

func TestRMS(t *testing.T) {
	require.Zero(t, RMS(nil))
	require.Zero(t, RMS([]int16{0, 0, 0}))

	// A full-scale sine has RMS amplitude/sqrt(2).
	s := sine(440, 16000, 16000, 16000)
	require.InDelta(t, 16000/math.Sqrt2, RMS(s), 50)
	require.InDelta(t, 16000/math.Sqrt2/32768, NormRMS(s), 0.005)
}

func TestPeak(t *testing.T) {
	require.Zero(t, Peak(nil))
	require.Equal(t, 1200.0, Peak([]int16{3, -1200, 7}))
}

func TestToFloat32(t *testing.T) {
	out := ToFloat32([]int16{0, 16384, -32768})
	require.Equal(t, []float32{0, 0.5, -1}, out)
}

func TestResample(t *testing.T) {
	in := []float32{0, 1, 2, 3, 4, 5, 6, 7}

	same := Resample(in, 16000, 16000)
	require.Equal(t, in, same)
	same[0] = 99
	require.Zero(t, in[0], "identity resample must still copy")

	down := Resample(in, 16000, 8000)
	require.Len(t, down, 4)
	require.InDelta(t, 0, down[0], 1e-6)
	require.InDelta(t, 2, down[1], 1e-6)

	up := Resample(in, 8000, 16000)
	require.Len(t, up, 16)
	require.InDelta(t, 0.5, up[1], 1e-6)
}
