package reject

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algo-boyz/earshot/pkg/audio"
	"github.com/algo-boyz/earshot/pkg/config"
)

const testRate = 16000

func testRejection() config.Rejection {
	return config.Rejection{
		SilenceRMS:         0.01,
		EnergyRMS:          0.015,
		SpeechBandMinRatio: 0.25,
		CrestFactorMax:     8.0,
		EnvelopeCVMax:      1.2,
		VADMode:            3,
		VADMinSpeechRatio:  0.5,
	}
}

func sine(freqHz float64, amplitude float64, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*freqHz*float64(i)/testRate))
	}
	return out
}

func mix(signals ...[]int16) []int16 {
	out := make([]int16, len(signals[0]))
	for i := range out {
		var sum int32
		for _, s := range signals {
			sum += int32(s[i])
		}
		out[i] = int16(sum)
	}
	return out
}

func window(raw []int16) Window {
	return Window{Raw: raw, Mono: audio.ToFloat32(raw), MonoRate: testRate}
}

func newChain(t *testing.T, continuous bool) *Chain {
	t.Helper()
	c, err := NewChain(testRejection(), testRate, continuous)
	require.NoError(t, err)
	return c
}

func TestSilenceGate(t *testing.T) {
	c := newChain(t, false)
	stage, err := c.Check(window(make([]int16, testRate)))
	require.NoError(t, err)
	require.Equal(t, StageSilence, stage)
}

func TestEnergyGate(t *testing.T) {
	// RMS above the silence floor but under the quiet-incidental cap.
	c := newChain(t, false)
	quiet := sine(1000, 550, testRate)
	stage, err := c.Check(window(quiet))
	require.NoError(t, err)
	require.Equal(t, StageEnergy, stage)
}

func TestKnownToneRejected(t *testing.T) {
	// The assistant's ambient tone: 42Hz fundamental with decaying harmonics
	// and nothing above 200Hz.
	c := newChain(t, false)
	tone := mix(
		sine(42, 8000, testRate),
		sine(84, 4000, testRate),
		sine(126, 2400, testRate),
	)
	stage, err := c.Check(window(tone))
	require.NoError(t, err)
	require.Equal(t, StageTone, stage)
}

func TestNonSpeechBandRejected(t *testing.T) {
	// Loud, but all the energy sits above the formant band.
	c := newChain(t, false)
	hiss := sine(5000, 9000, testRate)
	stage, err := c.Check(window(hiss))
	require.NoError(t, err)
	require.Equal(t, StageSpeechBand, stage)
}

func TestSpeechBandToneSurvives(t *testing.T) {
	c := newChain(t, false)
	voicelike := sine(1000, 9000, testRate)
	stage, err := c.Check(window(voicelike))
	require.NoError(t, err)
	require.Equal(t, StageNone, stage)
}

func TestImpulsiveClicksRejectedInContinuousMode(t *testing.T) {
	// A click train: loud enough to pass the energy gates, spectrally broad
	// enough to pass the band checks, but with an extreme crest factor.
	clicks := make([]int16, testRate)
	for i := 0; i < len(clicks); i += 800 {
		clicks[i] = 32000
	}

	c := newChain(t, true)
	stage, err := c.Check(window(clicks))
	require.NoError(t, err)
	require.Equal(t, StageImpulse, stage)

	// The same window sails through when the continuous-only stages are off.
	direct := newChain(t, false)
	stage, err = direct.Check(window(clicks))
	require.NoError(t, err)
	require.Equal(t, StageNone, stage)
}

func TestEnvelopeCV(t *testing.T) {
	steady := sine(1000, 9000, testRate)
	require.Less(t, envelopeCV(steady, testRate), 0.5)

	bursty := make([]int16, testRate)
	copy(bursty, sine(1000, 9000, testRate/8))
	require.Greater(t, envelopeCV(bursty, testRate), 1.2)
}

func TestVADMinimum(t *testing.T) {
	_, err := NewVAD(2, 44100)
	require.ErrorContains(t, err, "unsupported sample rate")

	vad, err := NewVAD(3, testRate)
	require.NoError(t, err)
	ratio, err := vad.SpeechRatio(make([]int16, testRate))
	require.NoError(t, err)
	require.LessOrEqual(t, ratio, 0.2, "silence should not classify as speech")
}
