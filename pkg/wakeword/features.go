package wakeword

import (
	"errors"
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/mat"

	"github.com/algo-boyz/earshot/pkg/audio"
)

// ErrInsufficientAudio is returned when a window holds less than one hop of
// audio. Callers treat it as "not yet ready", not a failure.
var ErrInsufficientAudio = errors.New("window shorter than one hop")

// FeatureWindow is the fixed-shape matrix the scorer consumes: Frames rows of
// FeatureDim coefficients, time-major.
type FeatureWindow struct {
	Frames     int
	FeatureDim int
	Data       []float32 // len == Frames * FeatureDim
}

// At returns the coefficient at (frame, coeff).
func (w FeatureWindow) At(frame, coeff int) float32 {
	return w.Data[frame*w.FeatureDim+coeff]
}

// frame/FFT geometry, matching the training pipeline
const (
	fftSize      = 2048
	preEmphCoeff = 0.97
)

// Extractor converts raw capture-rate audio into the MFCC feature window the
// active model's metadata declares. Filterbank, DCT matrix and analysis
// window are precomputed once.
type Extractor struct {
	meta        Metadata
	captureRate int
	filterbank  *mat.Dense
	dct         *mat.Dense
	window      []float64
}

// NewExtractor builds an extractor for the given capture rate and model
// metadata.
func NewExtractor(meta Metadata, captureRate int) *Extractor {
	return &Extractor{
		meta:        meta,
		captureRate: captureRate,
		filterbank:  melFilterbank(meta.MelBands, fftSize, meta.SampleRate, 0, float64(meta.SampleRate)/2),
		dct:         dctMatrix(meta.NumCoeffs, meta.MelBands),
		window:      hannWindow(fftSize),
	}
}

// Extract downsamples a raw capture-rate window to the model rate and
// extracts its feature window.
func (e *Extractor) Extract(raw []int16) (FeatureWindow, error) {
	mono := audio.Resample(audio.ToFloat32(raw), e.captureRate, e.meta.SampleRate)
	return e.ExtractMono(mono)
}

// ExtractMono extracts features from normalized samples already at the model
// rate. The result always has exactly meta.MaxFrames frames: short signals
// are right-padded with zero vectors, long ones truncated from the end so
// the earliest audio survives.
func (e *Extractor) ExtractMono(mono []float32) (FeatureWindow, error) {
	if len(mono) < e.meta.HopLength {
		return FeatureWindow{}, ErrInsufficientAudio
	}
	numFrames := 1 + (len(mono)-fftSize)/e.meta.HopLength
	if numFrames <= 0 {
		return FeatureWindow{}, ErrInsufficientAudio
	}

	mfcc := e.mfcc(mono, numFrames) // [numFrames][NumCoeffs]
	if e.meta.UseDeltas {
		d1 := deltas(mfcc)
		d2 := deltas(d1)
		for t := range mfcc {
			mfcc[t] = append(append(mfcc[t], d1[t]...), d2[t]...)
		}
	}

	dim := e.meta.FeatureDim()
	out := FeatureWindow{
		Frames:     e.meta.MaxFrames,
		FeatureDim: dim,
		Data:       make([]float32, e.meta.MaxFrames*dim),
	}
	for t := 0; t < e.meta.MaxFrames && t < len(mfcc); t++ {
		copy(out.Data[t*dim:], mfcc[t])
	}
	return out, nil
}

// mfcc computes per-frame cepstral coefficients: pre-emphasis, Hann-windowed
// FFT, mel filterbank, log, then DCT-II.
func (e *Extractor) mfcc(signal []float32, numFrames int) [][]float32 {
	emphasized := preEmphasis(signal, preEmphCoeff)

	melBands := e.meta.MelBands
	logMel := mat.NewDense(numFrames, melBands, nil)
	framed := make([]float64, fftSize)
	for t := 0; t < numFrames; t++ {
		start := t * e.meta.HopLength
		for i := 0; i < fftSize; i++ {
			if start+i < len(emphasized) {
				framed[i] = float64(emphasized[start+i]) * e.window[i]
			} else {
				framed[i] = 0
			}
		}
		spectrum := fft.FFTReal(framed)
		for m := 0; m < melBands; m++ {
			var sum float64
			for k := 0; k <= fftSize/2; k++ {
				if w := e.filterbank.At(m, k); w != 0 {
					sum += w * math.Hypot(real(spectrum[k]), imag(spectrum[k]))
				}
			}
			logMel.Set(t, m, math.Log(sum+1e-10))
		}
	}

	var cepstra mat.Dense
	cepstra.Mul(logMel, e.dct.T()) // [numFrames][NumCoeffs]

	out := make([][]float32, numFrames)
	for t := range out {
		row := make([]float32, e.meta.NumCoeffs)
		for k := range row {
			row[k] = float32(cepstra.At(t, k))
		}
		out[t] = row
	}
	return out
}

// preEmphasis applies a first-order high-pass filter to the signal.
func preEmphasis(signal []float32, coeff float32) []float32 {
	if len(signal) <= 1 || coeff == 0 {
		return signal
	}
	out := make([]float32, len(signal))
	out[0] = signal[0]
	for i := 1; i < len(signal); i++ {
		out[i] = signal[i] - coeff*signal[i-1]
	}
	return out
}

// deltas computes first-order time derivatives with a width-2 regression
// window, clamping at the edges.
func deltas(coeffs [][]float32) [][]float32 {
	const n = 2
	const denom = 2 * (1*1 + 2*2)
	out := make([][]float32, len(coeffs))
	clamp := func(i int) int {
		if i < 0 {
			return 0
		}
		if i >= len(coeffs) {
			return len(coeffs) - 1
		}
		return i
	}
	for t := range coeffs {
		row := make([]float32, len(coeffs[t]))
		for k := range row {
			var sum float32
			for d := 1; d <= n; d++ {
				sum += float32(d) * (coeffs[clamp(t+d)][k] - coeffs[clamp(t-d)][k])
			}
			row[k] = sum / denom
		}
		out[t] = row
	}
	return out
}

// hannWindow creates a Hann analysis window.
func hannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return window
}

// hzToMel converts frequency from Hz to the mel scale.
func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700.0)
}

// melToHz converts frequency from the mel scale back to Hz.
func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595.0) - 1)
}

// melFilterbank generates the triangular mel filterbank matrix
// [numMelBands x fftSize/2+1].
func melFilterbank(numMelBands, fftSize, sampleRate int, lowFreq, highFreq float64) *mat.Dense {
	var (
		melMin     = hzToMel(lowFreq)
		melMax     = hzToMel(highFreq)
		fftBins    = make([]int, numMelBands+2)
		filterbank = mat.NewDense(numMelBands, fftSize/2+1, nil)
	)
	for i := range fftBins {
		mel := melMin + (melMax-melMin)*float64(i)/float64(numMelBands+1)
		fftBins[i] = int(math.Floor(float64(fftSize+1) * melToHz(mel) / float64(sampleRate)))
	}
	for j := 0; j < numMelBands; j++ {
		for i := fftBins[j]; i < fftBins[j+1]; i++ {
			filterbank.Set(j, i, float64(i-fftBins[j])/float64(fftBins[j+1]-fftBins[j]))
		}
		for i := fftBins[j+1]; i < fftBins[j+2]; i++ {
			filterbank.Set(j, i, float64(fftBins[j+2]-i)/float64(fftBins[j+2]-fftBins[j+1]))
		}
	}
	return filterbank
}

// dctMatrix builds the orthonormal DCT-II matrix taking melBands log
// energies to numCoeffs cepstral coefficients.
func dctMatrix(numCoeffs, melBands int) *mat.Dense {
	if numCoeffs > melBands {
		panic(fmt.Sprintf("wakeword: n_mfcc %d exceeds n_mels %d", numCoeffs, melBands))
	}
	d := mat.NewDense(numCoeffs, melBands, nil)
	scale := math.Sqrt(2 / float64(melBands))
	for k := 0; k < numCoeffs; k++ {
		rowScale := scale
		if k == 0 {
			rowScale = scale / math.Sqrt2
		}
		for m := 0; m < melBands; m++ {
			d.Set(k, m, rowScale*math.Cos(math.Pi*float64(k)*(2*float64(m)+1)/(2*float64(melBands))))
		}
	}
	return d
}
