package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"go.uber.org/multierr"
)

// Load reads a .wav or .mp3 file into mono 16-bit samples and reports the
// file's sample rate. Stereo sources are downmixed.
func Load(filePath string) (samples []int16, sampleRate int, err error) {
	switch ext := filepath.Ext(filePath); ext {
	case ".mp3":
		return loadMP3(filePath)
	case ".wav":
		return loadWAV(filePath)
	default:
		return nil, 0, fmt.Errorf("unsupported audio file extension: %s", ext)
	}
}

func loadWAV(filePath string) (samples []int16, sampleRate int, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, 0, fmt.Errorf("error opening WAV file: %w", err)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file %s", filePath)
	}
	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("error decoding WAV file: %w", err)
	}
	channels := buffer.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	samples = make([]int16, len(buffer.Data)/channels)
	for i := range samples {
		var sum int
		for c := 0; c < channels; c++ {
			sum += buffer.Data[i*channels+c]
		}
		samples[i] = int16(sum / channels)
	}
	return samples, buffer.Format.SampleRate, nil
}

func loadMP3(filePath string) (samples []int16, sampleRate int, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, 0, fmt.Errorf("error opening MP3 file: %w", err)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("error creating MP3 decoder: %w", err)
	}
	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("error reading MP3 data: %w", err)
	}
	// go-mp3 always yields 16-bit stereo; downmix to mono.
	samples = make([]int16, len(raw)/4)
	for i := range samples {
		left := int16(raw[i*4]) | int16(raw[i*4+1])<<8
		right := int16(raw[i*4+2]) | int16(raw[i*4+3])<<8
		samples[i] = int16((int32(left) + int32(right)) / 2)
	}
	return samples, decoder.SampleRate(), nil
}

// WriteSegment writes mono 16-bit samples as a PCM WAV file at filePath,
// replacing any previous file.
func WriteSegment(filePath string, samples []int16, sampleRate int) (err error) {
	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("error creating WAV file: %w", err)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err = enc.Write(buf); err != nil {
		return fmt.Errorf("error writing WAV data: %w", err)
	}
	if err = enc.Close(); err != nil {
		return fmt.Errorf("error finalizing WAV file: %w", err)
	}
	return nil
}
