package reject

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// VAD wraps the webrtc voice activity detector for the statistical rejection
// stage. It classifies fixed 10ms sub-chunks of a window and reports the
// fraction judged speech.
type VAD struct {
	vad        *webrtcvad.VAD
	sampleRate int
	frameSize  int // samples per 10ms sub-chunk
}

// NewVAD creates a detector with the given aggressiveness mode (0-3). The
// sample rate must be one the webrtc engine supports.
func NewVAD(mode, sampleRate int) (*VAD, error) {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("vad: unsupported sample rate %d", sampleRate)
	}
	if mode < 0 {
		mode = 0
	}
	if mode > 3 {
		mode = 3
	}
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad: create: %w", err)
	}
	if err := vad.SetMode(mode); err != nil {
		return nil, fmt.Errorf("vad: set mode %d: %w", mode, err)
	}
	return &VAD{
		vad:        vad,
		sampleRate: sampleRate,
		frameSize:  sampleRate / 100,
	}, nil
}

// SpeechRatio returns the fraction of complete 10ms sub-chunks in samples
// that the detector classifies as speech. A trailing partial chunk is
// ignored.
func (v *VAD) SpeechRatio(samples []int16) (float64, error) {
	var total, speech int
	for i := 0; i+v.frameSize <= len(samples); i += v.frameSize {
		active, err := v.vad.Process(v.sampleRate, int16ToBytes(samples[i:i+v.frameSize]))
		if err != nil {
			return 0, fmt.Errorf("vad: process: %w", err)
		}
		total++
		if active {
			speech++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(speech) / float64(total), nil
}

// int16ToBytes converts samples to little-endian PCM bytes as the webrtc
// engine expects.
func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}
