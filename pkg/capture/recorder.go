// Package capture governs the transition between listening and recording and
// owns the recording loop's stop conditions.
package capture

import (
	"fmt"
	"log/slog"

	"github.com/algo-boyz/earshot/pkg/audio"
	"github.com/algo-boyz/earshot/pkg/command"
	"github.com/algo-boyz/earshot/pkg/config"
)

// StopReason says why a recording ended.
type StopReason string

const (
	StopSilence StopReason = "silence"
	StopMaxTime StopReason = "max_duration"
	StopCommand StopReason = "command"
)

// Result describes a finalized recording.
type Result struct {
	Samples []int16
	Reason  StopReason
}

// Sink receives a finalized segment's samples. The default sink writes the
// working WAV file.
type Sink func(samples []int16) error

// Recorder drains frames from the source while recording, bypassing the
// detection pipeline, until its silence counter, the duration cap, or an
// external stop command ends the take.
type Recorder struct {
	cfg           config.Recording
	sampleRate    int
	sig           *command.Signals
	sink          Sink
	silenceFrames int // configured silence duration, in frames
}

// NewRecorder builds a recorder. frameSize fixes the frame-count equivalents
// of the configured durations. A nil sink writes cfg.OutputPath.
func NewRecorder(cfg config.Recording, sampleRate, frameSize int, sig *command.Signals, sink Sink) *Recorder {
	if sink == nil {
		sink = func(samples []int16) error {
			return audio.WriteSegment(cfg.OutputPath, samples, sampleRate)
		}
	}
	return &Recorder{
		cfg:           cfg,
		sampleRate:    sampleRate,
		sig:           sig,
		sink:          sink,
		silenceFrames: int(cfg.SilenceSeconds * float64(sampleRate) / float64(frameSize)),
	}
}

// Record captures one segment: it is seeded with preRoll (the pre-buffer
// snapshot at trigger time), then frames are appended until a stop condition
// fires. The finalized segment is flushed through the sink before returning.
// A source read error is fatal and aborts without flushing.
func (r *Recorder) Record(src audio.FrameSource, preRoll []int16) (Result, error) {
	segment := make([]int16, len(preRoll))
	copy(segment, preRoll)

	var (
		silent   int
		recorded int
		reason   = StopMaxTime
		maxLen   = int(r.cfg.MaxSeconds * float64(r.sampleRate))
	)
	for len(segment)-len(preRoll) < maxLen {
		if r.sig.TakeStop() {
			reason = StopCommand
			break
		}
		frame, err := src.NextFrame()
		if err != nil {
			return Result{}, fmt.Errorf("recording aborted: %w", err)
		}
		segment = append(segment, frame...)
		recorded++

		if audio.RMS(frame) < r.cfg.SilenceRMS {
			silent++
			if silent >= r.silenceFrames {
				reason = StopSilence
				break
			}
		} else {
			silent = 0
		}
	}

	if err := r.sink(segment); err != nil {
		return Result{}, fmt.Errorf("failed to finalize segment: %w", err)
	}
	slog.Debug("recording finalized",
		"reason", reason,
		"pre_roll_samples", len(preRoll),
		"recorded_frames", recorded,
		"total_samples", len(segment),
	)
	return Result{Samples: segment, Reason: reason}, nil
}
