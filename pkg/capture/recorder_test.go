package capture

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algo-boyz/earshot/pkg/command"
	"github.com/algo-boyz/earshot/pkg/config"
)

const (
	testRate  = 16000
	frameSize = 1024
)

// scriptedSource plays back a fixed sequence of frames and then returns a
// terminal error.
type scriptedSource struct {
	frames [][]int16
	final  error
}

func (s *scriptedSource) NextFrame() ([]int16, error) {
	if len(s.frames) == 0 {
		if s.final == nil {
			return nil, io.EOF
		}
		return nil, s.final
	}
	frame := s.frames[0]
	s.frames = s.frames[1:]
	return frame, nil
}

func loudFrame() []int16 {
	frame := make([]int16, frameSize)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = 5000
		} else {
			frame[i] = -5000
		}
	}
	return frame
}

func quietFrame() []int16 {
	return make([]int16, frameSize)
}

func testConfig() config.Recording {
	cfg := config.Default().Recording
	cfg.SilenceSeconds = 0.192 // 3 frames at 16kHz / 1024
	cfg.MaxSeconds = 2
	return cfg
}

func collectSink(dst *[]int16) Sink {
	return func(samples []int16) error {
		*dst = append([]int16(nil), samples...)
		return nil
	}
}

func TestRecordStopsOnSilence(t *testing.T) {
	var frames [][]int16
	for i := 0; i < 4; i++ {
		frames = append(frames, loudFrame())
	}
	for i := 0; i < 3; i++ {
		frames = append(frames, quietFrame())
	}
	src := &scriptedSource{frames: frames}

	var flushed []int16
	rec := NewRecorder(testConfig(), testRate, frameSize, &command.Signals{}, collectSink(&flushed))

	preRoll := loudFrame()
	res, err := rec.Record(src, preRoll)
	require.NoError(t, err)
	require.Equal(t, StopSilence, res.Reason)

	// Pre-roll plus every drained frame, nothing dropped.
	require.Len(t, res.Samples, frameSize*(1+7))
	require.Equal(t, res.Samples, flushed)
	require.Equal(t, preRoll, res.Samples[:frameSize])
}

func TestRecordSilenceCounterResetsOnActivity(t *testing.T) {
	var frames [][]int16
	frames = append(frames, quietFrame(), quietFrame())
	frames = append(frames, loudFrame()) // resets the counter
	frames = append(frames, quietFrame(), quietFrame(), quietFrame())
	src := &scriptedSource{frames: frames}

	var flushed []int16
	rec := NewRecorder(testConfig(), testRate, frameSize, &command.Signals{}, collectSink(&flushed))

	res, err := rec.Record(src, nil)
	require.NoError(t, err)
	require.Equal(t, StopSilence, res.Reason)
	require.Len(t, res.Samples, frameSize*6)
}

func TestRecordStopsOnCommand(t *testing.T) {
	sig := &command.Signals{}
	sig.RequestStop()
	src := &scriptedSource{}

	var flushed []int16
	rec := NewRecorder(testConfig(), testRate, frameSize, sig, collectSink(&flushed))

	preRoll := loudFrame()
	res, err := rec.Record(src, preRoll)
	require.NoError(t, err)
	require.Equal(t, StopCommand, res.Reason)
	// The stop landed before any frame was drained: segment is pre-roll only.
	require.Equal(t, preRoll, res.Samples)
	require.Equal(t, preRoll, flushed)
	require.False(t, sig.TakeStop(), "stop request is consumed")
}

func TestRecordStopsAtMaxDuration(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSeconds = 0.5 // 8000 samples, reached after 8 frames

	var frames [][]int16
	for i := 0; i < 64; i++ {
		frames = append(frames, loudFrame())
	}
	src := &scriptedSource{frames: frames}

	var flushed []int16
	rec := NewRecorder(cfg, testRate, frameSize, &command.Signals{}, collectSink(&flushed))

	res, err := rec.Record(src, nil)
	require.NoError(t, err)
	require.Equal(t, StopMaxTime, res.Reason)
	require.Len(t, res.Samples, frameSize*8)
}

func TestRecordSourceErrorAbortsWithoutFlush(t *testing.T) {
	readErr := errors.New("device gone")
	src := &scriptedSource{frames: [][]int16{loudFrame()}, final: readErr}

	flushes := 0
	rec := NewRecorder(testConfig(), testRate, frameSize, &command.Signals{}, func([]int16) error {
		flushes++
		return nil
	})

	_, err := rec.Record(src, nil)
	require.ErrorIs(t, err, readErr)
	require.Zero(t, flushes, "a broken take must not overwrite the output file")
}

func TestRecordSinkErrorPropagates(t *testing.T) {
	src := &scriptedSource{frames: [][]int16{quietFrame(), quietFrame(), quietFrame()}}
	sinkErr := errors.New("disk full")
	rec := NewRecorder(testConfig(), testRate, frameSize, &command.Signals{}, func([]int16) error {
		return sinkErr
	})

	_, err := rec.Record(src, nil)
	require.ErrorIs(t, err, sinkErr)
}
