package wakeword

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeMeta(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMetadataDefaults(t *testing.T) {
	m, err := LoadMetadata(writeMeta(t, `{"max_frames": 149, "n_mfcc": 13}`))
	require.NoError(t, err)
	require.Equal(t, 149, m.MaxFrames)
	require.Equal(t, 13, m.NumCoeffs)
	require.Equal(t, 16000, m.SampleRate)
	require.Equal(t, 256, m.HopLength)
	require.Equal(t, 40, m.MelBands)
	require.False(t, m.UseDeltas)
	require.Equal(t, 13, m.FeatureDim())
}

func TestLoadMetadataDeltas(t *testing.T) {
	m, err := LoadMetadata(writeMeta(t, `{"max_frames": 100, "n_mfcc": 13, "use_deltas": true}`))
	require.NoError(t, err)
	require.Equal(t, 39, m.FeatureDim())
}

func TestLoadMetadataInvalid(t *testing.T) {
	_, err := LoadMetadata(writeMeta(t, `{"max_frames": 0, "n_mfcc": 13}`))
	require.ErrorContains(t, err, "must be positive")

	_, err = LoadMetadata(writeMeta(t, `not json`))
	require.ErrorContains(t, err, "failed to unmarshal")

	_, err = LoadMetadata(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorContains(t, err, "failed to read")
}
