package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Default returns the configuration the source deployment runs with: 48kHz
// capture, 1024-sample frames, a 1.5s pre-buffer and the tuned detection
// thresholds.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Mode:     ModeWakeWord,
		Capture: Capture{
			SampleRate:       48000,
			FrameSize:        1024,
			DeviceIndex:      -1,
			PreBufferSeconds: 1.5,
		},
		Detection: Detection{
			HighThreshold:       0.85,
			MediumThreshold:     0.75,
			ConsecutiveRequired: 2,
			CooldownCycles:      10,
			EveryFrames:         5,
		},
		Rejection: Rejection{
			SilenceRMS:         0.01,
			EnergyRMS:          0.015,
			SpeechBandMinRatio: 0.25,
			CrestFactorMax:     8.0,
			EnvelopeCVMax:      1.2,
			VADMode:            2,
			VADMinSpeechRatio:  0.5,
		},
		Recording: Recording{
			SilenceRMS:         300,
			SilenceSeconds:     1.5,
			MaxSeconds:         15,
			OutputPath:         "command.wav",
			ActivityFloorRMS:   450,
			MinActivitySeconds: 0.3,
		},
		Model: Model{
			NetworkPath:  "model/jarvis/model.onnx",
			MetadataPath: "model/jarvis/metadata.json",
		},
	}
}

// Load reads the YAML configuration file at path, layered over Default, and
// returns a validated Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over Default and validates the
// result. Useful in tests where configs are built from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if !cfg.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: wakeword, continuous, manual", cfg.Mode))
	}
	if cfg.Capture.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("capture.sample_rate must be positive, got %d", cfg.Capture.SampleRate))
	}
	if cfg.Capture.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("capture.frame_size must be positive, got %d", cfg.Capture.FrameSize))
	}
	if cfg.Capture.PreBufferSeconds <= 0 {
		errs = append(errs, fmt.Errorf("capture.pre_buffer_seconds must be positive, got %g", cfg.Capture.PreBufferSeconds))
	}
	if t := cfg.Detection.HighThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("detection.high_threshold must be in [0,1], got %g", t))
	}
	if t := cfg.Detection.MediumThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("detection.medium_threshold must be in [0,1], got %g", t))
	}
	if cfg.Detection.MediumThreshold > cfg.Detection.HighThreshold {
		errs = append(errs, fmt.Errorf("detection.medium_threshold %g exceeds high_threshold %g",
			cfg.Detection.MediumThreshold, cfg.Detection.HighThreshold))
	}
	if cfg.Detection.ConsecutiveRequired < 1 {
		errs = append(errs, fmt.Errorf("detection.consecutive_required must be at least 1, got %d", cfg.Detection.ConsecutiveRequired))
	}
	if cfg.Detection.EveryFrames < 1 {
		errs = append(errs, fmt.Errorf("detection.every_frames must be at least 1, got %d", cfg.Detection.EveryFrames))
	}
	if cfg.Rejection.EnergyRMS < cfg.Rejection.SilenceRMS {
		errs = append(errs, fmt.Errorf("rejection.energy_rms %g is below silence_rms %g",
			cfg.Rejection.EnergyRMS, cfg.Rejection.SilenceRMS))
	}
	if m := cfg.Rejection.VADMode; m < 0 || m > 3 {
		errs = append(errs, fmt.Errorf("rejection.vad_mode must be 0-3, got %d", m))
	}
	if cfg.Recording.SilenceSeconds <= 0 {
		errs = append(errs, fmt.Errorf("recording.silence_seconds must be positive, got %g", cfg.Recording.SilenceSeconds))
	}
	if cfg.Recording.MaxSeconds <= 0 {
		errs = append(errs, fmt.Errorf("recording.max_seconds must be positive, got %g", cfg.Recording.MaxSeconds))
	}
	if cfg.Recording.OutputPath == "" {
		errs = append(errs, errors.New("recording.output_path must not be empty"))
	}
	if cfg.Mode == ModeContinuous {
		switch cfg.Capture.SampleRate {
		case 8000, 16000, 32000, 48000:
		default:
			errs = append(errs, fmt.Errorf("continuous mode requires a sample rate the VAD supports (8000, 16000, 32000, 48000), got %d", cfg.Capture.SampleRate))
		}
	}
	if cfg.Mode != ModeManual {
		if cfg.Model.NetworkPath == "" {
			errs = append(errs, errors.New("model.network_path is required unless mode is manual"))
		}
		if cfg.Model.MetadataPath == "" {
			errs = append(errs, errors.New("model.metadata_path is required unless mode is manual"))
		}
	}

	return errors.Join(errs...)
}
