package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/algo-boyz/earshot/pkg/audio"
	"github.com/algo-boyz/earshot/pkg/capture"
	"github.com/algo-boyz/earshot/pkg/command"
	"github.com/algo-boyz/earshot/pkg/config"
	"github.com/algo-boyz/earshot/pkg/reject"
	"github.com/algo-boyz/earshot/pkg/state"
	"github.com/algo-boyz/earshot/pkg/wakeword"
)

// Deps are the engine's swappable collaborators. Zero values select the real
// thing: the ONNX scorer, the WAV-file sink and os.Stdout.
type Deps struct {
	Source audio.FrameSource
	Scorer wakeword.Scorer
	Meta   *wakeword.Metadata
	Sink   capture.Sink
	Out    io.Writer
}

// Engine is the audio-thread state machine: it keeps the pre-buffer current,
// runs the detection pipeline at its cadence, and hands off to the recorder
// on a trigger or an external start command.
type Engine struct {
	ctx       state.Context
	cfg       *config.Config
	src       audio.FrameSource
	ring      *audio.Ring
	chain     *reject.Chain
	extractor *wakeword.Extractor
	scorer    wakeword.Scorer
	smoother  *wakeword.Smoother
	recorder  *capture.Recorder
	sig       *command.Signals
	emit      *command.Emitter
	modelRate int

	cadence  int // frames since the last detection pass
	cooldown int // frames to hold off after a trigger
	active   int // continuous mode: consecutive frames above the activity floor
}

// NewEngine wires the pipeline for the configured mode. In manual mode no
// classifier is ever loaded.
func NewEngine(ctx state.Context, cfg *config.Config, deps Deps) (*Engine, error) {
	if deps.Source == nil {
		return nil, errors.New("engine: frame source is required")
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	sig := &command.Signals{}
	e := &Engine{
		ctx:  ctx,
		cfg:  cfg,
		src:  deps.Source,
		ring: audio.NewRing(int(cfg.Capture.PreBufferSeconds * float64(cfg.Capture.SampleRate))),
		sig:  sig,
		emit: command.NewEmitter(deps.Out),
		recorder: capture.NewRecorder(cfg.Recording,
			cfg.Capture.SampleRate, cfg.Capture.FrameSize, sig, deps.Sink),
	}

	if cfg.Mode == config.ModeManual {
		return e, nil
	}

	meta := deps.Meta
	if meta == nil {
		loaded, err := wakeword.LoadMetadata(cfg.Model.MetadataPath)
		if err != nil {
			return nil, err
		}
		meta = &loaded
	}
	e.modelRate = meta.SampleRate
	e.extractor = wakeword.NewExtractor(*meta, cfg.Capture.SampleRate)
	e.scorer = deps.Scorer
	if e.scorer == nil {
		model, err := wakeword.NewModel(ctx, cfg.Model.RuntimePath, cfg.Model.NetworkPath, *meta)
		if err != nil {
			return nil, err
		}
		e.scorer = model
	}
	e.smoother = wakeword.NewSmoother(cfg.Detection)

	chain, err := reject.NewChain(cfg.Rejection, cfg.Capture.SampleRate, cfg.Mode == config.ModeContinuous)
	if err != nil {
		return nil, err
	}
	e.chain = chain
	return e, nil
}

// Signals exposes the shared command flags for the stdin listener.
func (e *Engine) Signals() *command.Signals { return e.sig }

// Listen is the audio loop. It blocks only on frame acquisition, polls the
// command flags once per frame, and returns when the context is cancelled or
// the source is exhausted.
func (e *Engine) Listen() error {
	e.emit.Ready()
	for {
		select {
		case <-e.ctx.Done():
			return nil
		default:
		}

		if e.sig.TakeStart() {
			if err := e.record(false); err != nil {
				return err
			}
			continue
		}

		frame, err := e.src.NextFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("audio loop: %w", err)
		}
		e.ring.Push(frame)

		switch e.cfg.Mode {
		case config.ModeManual:
		case config.ModeContinuous:
			if err := e.continuousStep(frame); err != nil {
				return err
			}
		default:
			if err := e.detectStep(); err != nil {
				return err
			}
		}
	}
}

// detectStep runs one wake-word detection pass when the cadence, the full
// pre-buffer and the cooldown allow it. Stage failures reject the window and
// never stop the loop.
func (e *Engine) detectStep() error {
	if e.cooldown > 0 {
		e.cooldown--
	}
	e.cadence++
	if e.cadence < e.cfg.Detection.EveryFrames || !e.ring.Full() || e.cooldown > 0 {
		return nil
	}
	e.cadence = 0

	raw := e.ring.Snapshot()
	mono := audio.Resample(audio.ToFloat32(raw), e.cfg.Capture.SampleRate, e.modelRate)

	stage, err := e.chain.Check(reject.Window{Raw: raw, Mono: mono, MonoRate: e.modelRate})
	if err != nil {
		slog.Warn("rejection stage failed, window rejected", "err", err)
		e.smoother.Reset()
		return nil
	}
	if stage != reject.StageNone {
		e.smoother.Reset()
		return nil
	}

	confidence, ok := e.score(mono)
	if !ok {
		return nil
	}
	if trigger, fired := e.smoother.Observe(confidence); fired {
		e.emit.Detected(trigger.Confidence)
		e.cooldown = e.cfg.Detection.CooldownCycles * e.cfg.Detection.EveryFrames
		return e.record(false)
	}
	return nil
}

// continuousStep enters recording on sustained energy above the activity
// floor, then scores the finished segment after the fact.
func (e *Engine) continuousStep(frame []int16) error {
	if e.cooldown > 0 {
		e.cooldown--
		return nil
	}
	if audio.RMS(frame) >= e.cfg.Recording.ActivityFloorRMS {
		e.active++
	} else {
		e.active = 0
	}
	minFrames := int(e.cfg.Recording.MinActivitySeconds * float64(e.cfg.Capture.SampleRate) / float64(e.cfg.Capture.FrameSize))
	if minFrames < 1 {
		minFrames = 1
	}
	if e.active < minFrames {
		return nil
	}
	e.active = 0
	e.cooldown = e.cfg.Detection.CooldownCycles * e.cfg.Detection.EveryFrames
	return e.record(true)
}

// score extracts features from the model-rate window and runs the scorer.
// ok is false when the window is not yet ready or a stage failed.
func (e *Engine) score(mono []float32) (float32, bool) {
	features, err := e.extractor.ExtractMono(mono)
	if err != nil {
		if !errors.Is(err, wakeword.ErrInsufficientAudio) {
			slog.Warn("feature extraction failed, window rejected", "err", err)
			e.smoother.Reset()
		}
		return 0, false
	}
	confidence, err := e.scorer.Score(features)
	if err != nil {
		slog.Warn("scorer failed, window rejected", "err", err)
		e.smoother.Reset()
		return 0, false
	}
	return confidence, true
}

// record captures one segment seeded with the pre-buffer, then resets the
// detection state so the tail of the utterance cannot re-trigger.
func (e *Engine) record(postHoc bool) error {
	result, err := e.recorder.Record(e.src, e.ring.Snapshot())
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if postHoc {
		e.emit.SpeechSegment(e.classifySegment(result.Samples))
	} else {
		e.emit.RecordingComplete()
	}
	e.ring.Clear()
	e.cadence = 0
	if e.smoother != nil {
		e.smoother.Reset()
	}
	return nil
}

// classifySegment labels a finalized continuous-mode segment: rejected
// segments report 0, surviving ones the wake-word confidence. Labelling never
// affects the capture itself.
func (e *Engine) classifySegment(samples []int16) float32 {
	mono := audio.Resample(audio.ToFloat32(samples), e.cfg.Capture.SampleRate, e.modelRate)
	stage, err := e.chain.Check(reject.Window{Raw: samples, Mono: mono, MonoRate: e.modelRate})
	if err != nil {
		slog.Warn("segment classification failed", "err", err)
		return 0
	}
	if stage != reject.StageNone {
		slog.Debug("segment rejected", "stage", string(stage))
		return 0
	}
	confidence, ok := e.score(mono)
	if !ok {
		return 0
	}
	return confidence
}
