// Package reject implements the cheap pre-classifier filter chain that culls
// non-speech windows before the wake-word model runs.
package reject

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"

	"github.com/algo-boyz/earshot/pkg/audio"
	"github.com/algo-boyz/earshot/pkg/config"
)

// Stage identifies the filter that rejected a window.
type Stage string

const (
	StageNone       Stage = ""
	StageSilence    Stage = "silence"
	StageEnergy     Stage = "energy"
	StageTone       Stage = "tone"
	StageSpeechBand Stage = "speech_band"
	StageImpulse    Stage = "impulse"
	StageVAD        Stage = "vad"
)

// Window is one detection window as seen by the chain: the raw capture-rate
// samples plus the normalized model-rate samples derived from them.
type Window struct {
	Raw      []int16   // capture-rate PCM
	Mono     []float32 // model-rate normalized samples
	MonoRate int       // sample rate of Mono
}

// Chain applies the rejection stages in fixed order. The impulsive-sound and
// statistical VAD stages only run in continuous mode.
type Chain struct {
	cfg         config.Rejection
	captureRate int
	continuous  bool
	vad         *VAD
}

// NewChain builds the filter chain. In continuous mode a webrtc VAD instance
// is created for the statistical stage.
func NewChain(cfg config.Rejection, captureRate int, continuous bool) (*Chain, error) {
	c := &Chain{cfg: cfg, captureRate: captureRate, continuous: continuous}
	if continuous {
		vad, err := NewVAD(cfg.VADMode, captureRate)
		if err != nil {
			return nil, fmt.Errorf("reject: %w", err)
		}
		c.vad = vad
	}
	return c, nil
}

// Check runs the window through every stage in order and returns the first
// stage that rejected it, or StageNone if the window survives. A returned
// error means a stage could not run; callers treat that as a rejection.
func (c *Chain) Check(w Window) (Stage, error) {
	rms := audio.NormRMS(w.Raw)
	if rms < c.cfg.SilenceRMS {
		return StageSilence, nil
	}
	if rms < c.cfg.EnergyRMS {
		return StageEnergy, nil
	}

	spectrum := powerSpectrum(w.Mono)
	if c.isKnownTone(spectrum, w.MonoRate) {
		return StageTone, nil
	}
	if !c.isSpeechLike(spectrum, w.MonoRate) {
		return StageSpeechBand, nil
	}

	if c.continuous {
		if c.isImpulsive(w.Raw, rms) {
			return StageImpulse, nil
		}
		speech, err := c.vad.SpeechRatio(w.Raw)
		if err != nil {
			return StageVAD, fmt.Errorf("reject: vad stage: %w", err)
		}
		if speech < c.cfg.VADMinSpeechRatio {
			return StageVAD, nil
		}
	}
	return StageNone, nil
}

// Notification-tone signature: a ~42Hz fundamental with its first two
// harmonics carrying most of the energy and little content above 200Hz.
// This keeps the assistant's own ambient tone from triggering itself.
const (
	toneFundamentalLowHz  = 40
	toneFundamentalHighHz = 50
	toneHarmonic2LowHz    = 80
	toneHarmonic2HighHz   = 100
	toneHarmonic3LowHz    = 120
	toneHarmonic3HighHz   = 150
	toneHighFreqCutoffHz  = 200

	toneFundamentalMinRatio = 0.30
	toneHarmonic2MinRatio   = 0.10
	toneHarmonic3MinRatio   = 0.05
	toneHighFreqMaxRatio    = 0.30
)

// Human speech formant band.
const (
	speechBandLowHz  = 300
	speechBandHighHz = 3400
)

func (c *Chain) isKnownTone(spectrum []float64, rate int) bool {
	total := bandEnergy(spectrum, rate, 0, float64(rate)/2)
	if total < 1e-10 {
		return false
	}
	fundamental := bandEnergy(spectrum, rate, toneFundamentalLowHz, toneFundamentalHighHz) / total
	harmonic2 := bandEnergy(spectrum, rate, toneHarmonic2LowHz, toneHarmonic2HighHz) / total
	harmonic3 := bandEnergy(spectrum, rate, toneHarmonic3LowHz, toneHarmonic3HighHz) / total
	highFreq := bandEnergy(spectrum, rate, toneHighFreqCutoffHz, float64(rate)/2) / total

	return fundamental > toneFundamentalMinRatio &&
		harmonic2 > toneHarmonic2MinRatio &&
		harmonic3 > toneHarmonic3MinRatio &&
		highFreq < toneHighFreqMaxRatio
}

func (c *Chain) isSpeechLike(spectrum []float64, rate int) bool {
	total := bandEnergy(spectrum, rate, 0, float64(rate)/2)
	if total < 1e-10 {
		return false
	}
	speech := bandEnergy(spectrum, rate, speechBandLowHz, speechBandHighHz) / total
	return speech >= c.cfg.SpeechBandMinRatio
}

// isImpulsive flags sharp transients (clicks, coughs, taps): a crest factor
// beyond the cap, or sub-window energies too irregular for sustained speech.
func (c *Chain) isImpulsive(raw []int16, rms float64) bool {
	if rms <= 0 {
		return false
	}
	crest := audio.Peak(raw) / 32768.0 / rms
	if crest > c.cfg.CrestFactorMax {
		return true
	}
	return envelopeCV(raw, c.captureRate) > c.cfg.EnvelopeCVMax
}

// envelopeCV is the coefficient of variation of 50ms sub-window RMS energies.
func envelopeCV(raw []int16, rate int) float64 {
	sub := rate / 20
	if sub <= 0 || len(raw) < 2*sub {
		return 0
	}
	var energies []float64
	for i := 0; i+sub <= len(raw); i += sub {
		energies = append(energies, audio.NormRMS(raw[i:i+sub]))
	}
	var mean float64
	for _, e := range energies {
		mean += e
	}
	mean /= float64(len(energies))
	if mean < 1e-10 {
		return 0
	}
	var variance float64
	for _, e := range energies {
		variance += (e - mean) * (e - mean)
	}
	variance /= float64(len(energies))
	return math.Sqrt(variance) / mean
}

// powerSpectrum returns the magnitude spectrum of the window, one bin per
// frequency up to Nyquist.
func powerSpectrum(mono []float32) []float64 {
	signal := make([]float64, len(mono))
	for i, s := range mono {
		signal[i] = float64(s)
	}
	result := fft.FFTReal(signal)
	spectrum := make([]float64, len(result)/2+1)
	for i := range spectrum {
		spectrum[i] = math.Hypot(real(result[i]), imag(result[i]))
	}
	return spectrum
}

// bandEnergy sums spectrum magnitudes between lowHz (inclusive) and highHz
// (exclusive).
func bandEnergy(spectrum []float64, rate int, lowHz, highHz float64) float64 {
	if len(spectrum) < 2 {
		return 0
	}
	binWidth := float64(rate) / 2 / float64(len(spectrum)-1)
	var sum float64
	for i, mag := range spectrum {
		freq := float64(i) * binWidth
		if freq >= lowHz && freq < highHz {
			sum += mag
		}
	}
	return sum
}
