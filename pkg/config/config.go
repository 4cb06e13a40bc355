// Package config holds the pipeline configuration schema, loader and
// validation for the earshot front-end.
package config

// Mode selects how recording is entered.
type Mode string

const (
	// ModeWakeWord triggers recording from the wake-word scorer.
	ModeWakeWord Mode = "wakeword"

	// ModeContinuous enters recording on sustained energy and scores the
	// finished segment after the fact.
	ModeContinuous Mode = "continuous"

	// ModeManual never loads the scorer; recording is driven by stdin
	// commands only.
	ModeManual Mode = "manual"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeWakeWord, ModeContinuous, ModeManual:
		return true
	}
	return false
}

// LogLevel controls slog verbosity on stderr.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration for the earshot process.
type Config struct {
	LogLevel  LogLevel  `yaml:"log_level"`
	Mode      Mode      `yaml:"mode"`
	Capture   Capture   `yaml:"capture"`
	Detection Detection `yaml:"detection"`
	Rejection Rejection `yaml:"rejection"`
	Recording Recording `yaml:"recording"`
	Model     Model     `yaml:"model"`
}

// Capture configures the microphone stream and rolling pre-buffer.
type Capture struct {
	SampleRate       int     `yaml:"sample_rate"`
	FrameSize        int     `yaml:"frame_size"`
	DeviceIndex      int     `yaml:"device_index"` // -1 selects the default device
	PreBufferSeconds float64 `yaml:"pre_buffer_seconds"`
}

// Detection configures the confidence smoother and detection cadence.
type Detection struct {
	HighThreshold       float32 `yaml:"high_threshold"`
	MediumThreshold     float32 `yaml:"medium_threshold"`
	ConsecutiveRequired int     `yaml:"consecutive_required"`
	CooldownCycles      int     `yaml:"cooldown_cycles"`
	EveryFrames         int     `yaml:"every_frames"`
}

// Rejection configures the pre-classifier filter chain.
type Rejection struct {
	SilenceRMS         float64 `yaml:"silence_rms"` // normalized [0,1]
	EnergyRMS          float64 `yaml:"energy_rms"`  // normalized, slightly above silence_rms
	SpeechBandMinRatio float64 `yaml:"speech_band_min_ratio"`
	CrestFactorMax     float64 `yaml:"crest_factor_max"`
	EnvelopeCVMax      float64 `yaml:"envelope_cv_max"`
	VADMode            int     `yaml:"vad_mode"` // webrtcvad aggressiveness 0-3
	VADMinSpeechRatio  float64 `yaml:"vad_min_speech_ratio"`
}

// Recording configures the recording state machine and its output.
type Recording struct {
	SilenceRMS         float64 `yaml:"silence_rms"` // raw int16 RMS
	SilenceSeconds     float64 `yaml:"silence_seconds"`
	MaxSeconds         float64 `yaml:"max_seconds"`
	OutputPath         string  `yaml:"output_path"`
	ActivityFloorRMS   float64 `yaml:"activity_floor_rms"`   // continuous mode entry
	MinActivitySeconds float64 `yaml:"min_activity_seconds"` // continuous mode entry
}

// Model configures the wake-word scorer.
type Model struct {
	RuntimePath  string `yaml:"runtime_path"`  // onnxruntime shared library
	NetworkPath  string `yaml:"network_path"`  // .onnx graph
	MetadataPath string `yaml:"metadata_path"` // feature-shape sidecar
}
