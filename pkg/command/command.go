// Package command carries the out-of-band line protocol: commands arriving
// on stdin and events reported on stdout.
package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Signals is the shared object the listener goroutine and the audio loop
// communicate through. The listener only sets flags; the audio loop polls and
// clears them once per frame. No lock is needed beyond the atomics.
type Signals struct {
	start atomic.Bool
	stop  atomic.Bool
}

// RequestStart asks for an immediate recording. Any pending stop request is
// discarded so the fresh recording is not cut short.
func (s *Signals) RequestStart() {
	s.stop.Store(false)
	s.start.Store(true)
}

// RequestStop asks for the in-flight recording to be finalized.
func (s *Signals) RequestStop() {
	s.stop.Store(true)
}

// TakeStart consumes a pending start request.
func (s *Signals) TakeStart() bool { return s.start.Swap(false) }

// TakeStop consumes a pending stop request.
func (s *Signals) TakeStop() bool { return s.stop.Swap(false) }

// Command lines accepted on the input channel.
const (
	cmdRecordNow     = "RECORD_NOW"
	cmdStopRecording = "STOP_RECORDING"
)

// Listen reads command lines from r until EOF or ctx cancellation, setting
// signal flags as commands arrive. Unrecognised lines are ignored. Listen
// never touches audio data.
func Listen(ctx context.Context, r io.Reader, sig *Signals) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		switch line := strings.TrimSpace(scanner.Text()); line {
		case cmdRecordNow:
			slog.Debug("received command", "command", line)
			sig.RequestStart()
		case cmdStopRecording:
			slog.Debug("received command", "command", line)
			sig.RequestStop()
		case "":
		default:
			slog.Debug("ignoring unrecognised command line", "line", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("command listener: %w", err)
	}
	return nil
}

// Emitter writes protocol events, one per line, flushed immediately. Safe for
// concurrent use.
type Emitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEmitter wraps w, normally os.Stdout.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Ready signals that the device and, when enabled, the classifier are up.
func (e *Emitter) Ready() {
	e.emit("READY")
}

// Detected reports a wake-word trigger.
func (e *Emitter) Detected(confidence float32) {
	e.emit(fmt.Sprintf("DETECTED:%.3f", confidence))
}

// SpeechSegment reports a continuous-mode segment's post-hoc confidence.
func (e *Emitter) SpeechSegment(confidence float32) {
	e.emit(fmt.Sprintf("SPEECH_SEGMENT:%.3f", confidence))
}

// RecordingComplete reports that a segment has been finalized and written.
func (e *Emitter) RecordingComplete() {
	e.emit("RECORDING_COMPLETE")
}

func (e *Emitter) emit(line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintln(e.w, line)
}
