// Package wakeword turns audio windows into classifier features and running
// confidences into trigger decisions.
package wakeword

import (
	"encoding/json"
	"fmt"
	"os"
)

// Metadata is the feature-shape contract a trained wake-word network was
// built for, loaded from the sidecar written at training time. The extractor
// must produce exactly this shape; anything else is a configuration error.
type Metadata struct {
	MaxFrames  int  `json:"max_frames"`
	NumCoeffs  int  `json:"n_mfcc"`
	SampleRate int  `json:"sample_rate"`
	UseDeltas  bool `json:"use_deltas"`
	HopLength  int  `json:"hop_length"`
	MelBands   int  `json:"n_mels"`
}

// FeatureDim returns the per-frame feature width: the coefficient count,
// tripled when first and second derivatives are concatenated.
func (m Metadata) FeatureDim() int {
	if m.UseDeltas {
		return m.NumCoeffs * 3
	}
	return m.NumCoeffs
}

// LoadMetadata reads the model sidecar and applies defaults for fields older
// sidecars omit.
func LoadMetadata(filePath string) (Metadata, error) {
	b, err := os.ReadFile(filePath)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read model metadata %s: %w", filePath, err)
	}
	var m Metadata
	if err = json.Unmarshal(b, &m); err != nil {
		return Metadata{}, fmt.Errorf("failed to unmarshal model metadata %s: %w", filePath, err)
	}
	if m.SampleRate == 0 {
		m.SampleRate = 16000
	}
	if m.HopLength == 0 {
		m.HopLength = 256
	}
	if m.MelBands == 0 {
		m.MelBands = 40
	}
	if m.MaxFrames <= 0 || m.NumCoeffs <= 0 {
		return Metadata{}, fmt.Errorf("model metadata %s: max_frames and n_mfcc must be positive", filePath)
	}
	return m, nil
}
