package audio

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"github.com/algo-boyz/earshot/pkg/state"
)

// FrameSource delivers fixed-size blocks of mono 16-bit samples. NextFrame
// blocks until a full frame is available; the returned slice is owned by the
// caller. Production is the clock - callers must keep up or accept drops.
type FrameSource interface {
	NextFrame() ([]int16, error)
}

// MicStream is the portaudio-backed FrameSource.
type MicStream struct {
	stream     *portaudio.Stream
	buffer     []int16
	sampleRate int
	frameSize  int
	overflows  int
}

// NewMicStream opens the requested input device, falling back to the default
// device when the requested one cannot be opened. deviceIndex -1 selects the
// default outright. The stream is stopped and portaudio terminated when ctx
// is cancelled.
func NewMicStream(ctx state.Context, sampleRate, frameSize, deviceIndex int) (*MicStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio.Initialize: %w", err)
	}
	buffer := make([]int16, frameSize)

	stream, err := openStream(sampleRate, frameSize, deviceIndex, buffer)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	m := &MicStream{
		stream:     stream,
		buffer:     buffer,
		sampleRate: sampleRate,
		frameSize:  frameSize,
	}
	go ctx.Defer(func() {
		if err := m.stream.Stop(); err != nil {
			slog.Warn("failed to stop audio stream", "err", err)
		}
		if err := m.stream.Close(); err != nil {
			slog.Warn("failed to close audio stream", "err", err)
		}
		if err := portaudio.Terminate(); err != nil {
			slog.Warn("failed to terminate portaudio", "err", err)
		}
		slog.Info("portaudio exit", "overflows", m.overflows)
	})
	return m, nil
}

func openStream(sampleRate, frameSize, deviceIndex int, buffer []int16) (*portaudio.Stream, error) {
	if deviceIndex >= 0 {
		stream, err := openDeviceStream(sampleRate, frameSize, deviceIndex, buffer)
		if err == nil {
			return stream, nil
		}
		slog.Warn("failed to open requested input device, falling back to default",
			"device_index", deviceIndex, "err", err)
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, buffer)
	if err != nil {
		return nil, fmt.Errorf("portaudio.OpenDefaultStream: %w", err)
	}
	return stream, nil
}

func openDeviceStream(sampleRate, frameSize, deviceIndex int, buffer []int16) (*portaudio.Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio.Devices: %w", err)
	}
	if deviceIndex >= len(devices) {
		return nil, fmt.Errorf("device index %d out of range (%d devices)", deviceIndex, len(devices))
	}
	device := devices[deviceIndex]
	if device.MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %q has no input channels", device.Name)
	}
	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.Output.Channels = 0
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = frameSize
	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		return nil, fmt.Errorf("portaudio.OpenStream %q: %w", device.Name, err)
	}
	return stream, nil
}

// Start begins capture.
func (m *MicStream) Start() error {
	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("failed to start mic stream: %w", err)
	}
	return nil
}

// SampleRate returns the capture rate in Hz.
func (m *MicStream) SampleRate() int { return m.sampleRate }

// NextFrame blocks until the next frame is captured and returns a copy of it.
// Input overflow is tolerated: the frame is still delivered, with the drop
// counted. Any other read error is fatal to the stream.
func (m *MicStream) NextFrame() ([]int16, error) {
	if err := m.stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			m.overflows++
			slog.Debug("input overflow, frame delivered anyway", "total", m.overflows)
		} else {
			return nil, fmt.Errorf("mic read: %w", err)
		}
	}
	frame := make([]int16, len(m.buffer))
	copy(frame, m.buffer)
	return frame, nil
}

// ListDevices returns the names of available input devices in index order.
// portaudio must not already be initialized by the caller.
func ListDevices() (names []string, err error) {
	if err = portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio.Initialize: %w", err)
	}
	defer func() {
		if terr := portaudio.Terminate(); terr != nil && err == nil {
			err = terr
		}
	}()
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio.Devices: %w", err)
	}
	for i, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		names = append(names, fmt.Sprintf("%d: %s (%d ch, %.0f Hz)",
			i, dev.Name, dev.MaxInputChannels, dev.DefaultSampleRate))
	}
	return names, nil
}
