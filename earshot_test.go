package main

import (
	"bytes"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algo-boyz/earshot/pkg/capture"
	"github.com/algo-boyz/earshot/pkg/config"
	"github.com/algo-boyz/earshot/pkg/state"
	"github.com/algo-boyz/earshot/pkg/wakeword"
)

// sliceSource serves a fixed sample stream in frame-sized chunks and reports
// io.EOF once drained.
type sliceSource struct {
	samples   []int16
	frameSize int
}

func (s *sliceSource) NextFrame() ([]int16, error) {
	if len(s.samples) == 0 {
		return nil, io.EOF
	}
	n := s.frameSize
	if n > len(s.samples) {
		n = len(s.samples)
	}
	frame := s.samples[:n]
	s.samples = s.samples[n:]
	return frame, nil
}

// stubScorer returns a fixed confidence and counts calls.
type stubScorer struct {
	confidence float32
	calls      int
}

func (s *stubScorer) Score(wakeword.FeatureWindow) (float32, error) {
	s.calls++
	return s.confidence, nil
}

func testMeta() *wakeword.Metadata {
	return &wakeword.Metadata{
		MaxFrames:  60,
		NumCoeffs:  13,
		SampleRate: 16000,
		HopLength:  256,
		MelBands:   40,
	}
}

func tone(n int, freq float64, amp float64, rate int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func captureSink(dst *[]int16) capture.Sink {
	return func(samples []int16) error {
		*dst = append([]int16(nil), samples...)
		return nil
	}
}

// A quiet stream followed by a spoken burst must produce exactly one trigger,
// one finalized segment that is a contiguous slice of the stream, and no
// scorer work while the stream is still silent.
func TestEngineWakewordScenario(t *testing.T) {
	cfg := config.Default()
	cfg.Recording.SilenceSeconds = 0.5

	rate := cfg.Capture.SampleRate
	var stream []int16
	stream = append(stream, make([]int16, 72000)...)           // 1.5s silence
	stream = append(stream, tone(16000, 1000, 16000, rate)...) // spoken burst
	stream = append(stream, make([]int16, 26624)...)           // trailing silence

	streamCopy := append([]int16(nil), stream...)
	src := &sliceSource{samples: stream, frameSize: cfg.Capture.FrameSize}
	scorer := &stubScorer{confidence: 0.97}
	var segment []int16
	var out bytes.Buffer

	engine, err := NewEngine(state.NewContext(), cfg, Deps{
		Source: src,
		Scorer: scorer,
		Meta:   testMeta(),
		Sink:   captureSink(&segment),
		Out:    &out,
	})
	require.NoError(t, err)
	require.NoError(t, engine.Listen())

	require.Equal(t, "READY\nDETECTED:0.970\nRECORDING_COMPLETE\n", out.String())

	// The scorer only ran once: the pre-buffer never fills with pure silence
	// scored, and the cooldown holds after the trigger.
	require.Equal(t, 1, scorer.calls)

	// The finalized segment is the pre-buffer snapshot plus every drained
	// frame, contiguous against the source stream: no gap, no duplication.
	// The trigger fires on the first frame that fills the pre-buffer, so the
	// snapshot starts where the buffer's oldest retained sample does.
	preBuffer := int(cfg.Capture.PreBufferSeconds * float64(rate))
	framesToFill := (preBuffer + cfg.Capture.FrameSize - 1) / cfg.Capture.FrameSize
	start := framesToFill*cfg.Capture.FrameSize - preBuffer
	require.GreaterOrEqual(t, len(segment), preBuffer)
	require.Equal(t, streamCopy[start:start+len(segment)], segment)
}

func TestEngineManualModeNeedsNoModel(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeManual
	cfg.Recording.SilenceSeconds = 0.064 // 3 frames

	rate := cfg.Capture.SampleRate
	var stream []int16
	stream = append(stream, tone(2*cfg.Capture.FrameSize, 1000, 8000, rate)...)
	stream = append(stream, make([]int16, 4*cfg.Capture.FrameSize)...)
	streamCopy := append([]int16(nil), stream...)

	src := &sliceSource{samples: stream, frameSize: cfg.Capture.FrameSize}
	var segment []int16
	var out bytes.Buffer

	engine, err := NewEngine(state.NewContext(), cfg, Deps{
		Source: src,
		Sink:   captureSink(&segment),
		Out:    &out,
	})
	require.NoError(t, err)

	engine.Signals().RequestStart()
	require.NoError(t, engine.Listen())

	require.Equal(t, "READY\nRECORDING_COMPLETE\n", out.String())
	// 2 voiced frames plus the 3 silent frames that ended the take.
	require.Equal(t, streamCopy[:5*cfg.Capture.FrameSize], segment)
}

func TestEngineContinuousModeRejectsImpulsiveSegment(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeContinuous
	cfg.Recording.SilenceSeconds = 0.5
	cfg.Recording.MinActivitySeconds = 0.1 // 4 frames of sustained energy

	rate := cfg.Capture.SampleRate
	var stream []int16
	stream = append(stream, tone(4*cfg.Capture.FrameSize, 1000, 8000, rate)...)
	stream = append(stream, make([]int16, 25*cfg.Capture.FrameSize)...)
	streamCopy := append([]int16(nil), stream...)

	src := &sliceSource{samples: stream, frameSize: cfg.Capture.FrameSize}
	scorer := &stubScorer{confidence: 0.97}
	var segment []int16
	var out bytes.Buffer

	engine, err := NewEngine(state.NewContext(), cfg, Deps{
		Source: src,
		Scorer: scorer,
		Meta:   testMeta(),
		Sink:   captureSink(&segment),
		Out:    &out,
	})
	require.NoError(t, err)
	require.NoError(t, engine.Listen())

	// A short burst with a long silent tail is too spiky for sustained
	// speech, so the segment is captured but labelled zero.
	require.Equal(t, "READY\nSPEECH_SEGMENT:0.000\n", out.String())
	require.Zero(t, scorer.calls)

	// Capture is unaffected by the label: burst plus the silence run.
	require.Equal(t, streamCopy[:27*cfg.Capture.FrameSize], segment)
}
