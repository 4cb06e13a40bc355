package audio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteSegmentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "command.wav")
	samples := sine(440, 8000, 48000, 4800)

	require.NoError(t, WriteSegment(path, samples, 48000))

	got, rate, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 48000, rate)
	require.Equal(t, samples, got)

	// The working file is overwritten, not appended to.
	shorter := sine(220, 4000, 48000, 1200)
	require.NoError(t, WriteSegment(path, shorter, 48000))
	got, _, err = Load(path)
	require.NoError(t, err)
	require.Equal(t, shorter, got)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, _, err := Load("clip.ogg")
	require.ErrorContains(t, err, "unsupported audio file extension")
}
