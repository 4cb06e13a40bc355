package wakeword

import (
	"fmt"
	"log/slog"

	onnx "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"github.com/algo-boyz/earshot/pkg/state"
)

// Scorer turns a feature window into a wake-word confidence in [0,1].
type Scorer interface {
	Score(w FeatureWindow) (float32, error)
}

// Model is the ONNX-backed Scorer. The session and its tensors are created
// once and reused per window.
type Model struct {
	meta    Metadata
	options *onnx.SessionOptions
	session *onnx.AdvancedSession
	input   *onnx.Tensor[float32]
	output  *onnx.Tensor[float32]
}

// NewModel initializes the onnx runtime, validates the network's declared
// input shape against the metadata sidecar, and prepares a reusable scoring
// session. A shape mismatch here is an unrecoverable configuration error.
func NewModel(ctx state.Context, runtimePath, networkPath string, meta Metadata) (m *Model, err error) {
	if runtimePath != "" {
		onnx.SetSharedLibraryPath(runtimePath)
	}
	if err = onnx.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to init onnx lib: %w", err)
	}
	inputs, outputs, err := onnx.GetInputOutputInfo(networkPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get net info for %s: %w", networkPath, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("network %s: expected 1 input and 1 output, got %d/%d",
			networkPath, len(inputs), len(outputs))
	}
	if err = checkShape(inputs[0].Dimensions, meta); err != nil {
		return nil, fmt.Errorf("network %s does not match metadata: %w", networkPath, err)
	}
	slog.Debug("wake-word network loaded",
		"path", networkPath,
		"input", inputs[0].Name, "input_dims", inputs[0].Dimensions,
		"output", outputs[0].Name, "output_dims", outputs[0].Dimensions,
	)

	options, err := onnx.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create onnx session options: %w", err)
	}
	input, err := onnx.NewEmptyTensor[float32](onnx.NewShape(1, int64(meta.MaxFrames), int64(meta.FeatureDim())))
	if err != nil {
		err = multierr.Combine(fmt.Errorf("failed to create input tensor: %w", err), options.Destroy())
		return nil, err
	}
	output, err := onnx.NewEmptyTensor[float32](outputDims(outputs[0].Dimensions))
	if err != nil {
		err = multierr.Combine(fmt.Errorf("failed to create output tensor: %w", err),
			input.Destroy(), options.Destroy())
		return nil, err
	}
	session, err := onnx.NewAdvancedSession(
		networkPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]onnx.ArbitraryTensor{input},
		[]onnx.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		err = multierr.Combine(fmt.Errorf("failed to create onnx session: %w", err),
			output.Destroy(), input.Destroy(), options.Destroy())
		return nil, err
	}
	m = &Model{
		meta:    meta,
		options: options,
		session: session,
		input:   input,
		output:  output,
	}
	go ctx.Defer(func() {
		if err := m.Destroy(); err != nil {
			slog.Warn("failed to destroy wake-word model", "err", err)
		}
		slog.Info("wake-word model exit")
	})
	return m, nil
}

// Score runs the network on one feature window.
func (m *Model) Score(w FeatureWindow) (float32, error) {
	if w.Frames != m.meta.MaxFrames || w.FeatureDim != m.meta.FeatureDim() {
		return 0, fmt.Errorf("feature window shape %dx%d does not match model %dx%d",
			w.Frames, w.FeatureDim, m.meta.MaxFrames, m.meta.FeatureDim())
	}
	copy(m.input.GetData(), w.Data)
	if err := m.session.Run(); err != nil {
		return 0, fmt.Errorf("failed to run wake-word net: %w", err)
	}
	out := m.output.GetData()
	if len(out) == 0 {
		return 0, fmt.Errorf("wake-word net returned empty output")
	}
	return out[0], nil
}

// Destroy releases the session and the onnx environment.
func (m *Model) Destroy() error {
	return multierr.Combine(
		m.session.Destroy(),
		m.output.Destroy(),
		m.input.Destroy(),
		m.options.Destroy(),
		onnx.DestroyEnvironment(),
	)
}

// checkShape compares the network's declared input dimensions against the
// metadata, ignoring dynamic (-1) axes.
func checkShape(dims []int64, meta Metadata) error {
	if len(dims) < 2 {
		return fmt.Errorf("input rank %d too small", len(dims))
	}
	frames, feat := dims[len(dims)-2], dims[len(dims)-1]
	if frames > 0 && frames != int64(meta.MaxFrames) {
		return fmt.Errorf("network expects %d frames, metadata declares %d", frames, meta.MaxFrames)
	}
	if feat > 0 && feat != int64(meta.FeatureDim()) {
		return fmt.Errorf("network expects feature width %d, metadata declares %d", feat, meta.FeatureDim())
	}
	return nil
}

// outputDims replaces dynamic axes with 1 so an output tensor can be
// allocated up front.
func outputDims(dims []int64) onnx.Shape {
	out := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return onnx.NewShape(out...)
}
