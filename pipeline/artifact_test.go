package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioArtifact_FileLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3"), 0o600))

	a := NewFileArtifact("hi", path, "mp3")
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "audio/mpeg", a.ContentType())

	data, err := a.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), data)

	require.NoError(t, a.Release())
	require.NoError(t, a.Release(), "release is idempotent")
	assert.True(t, a.Released())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = a.Bytes()
	assert.ErrorIs(t, err, ErrArtifactReleased)
}

func TestAudioArtifact_MissingFileRelease(t *testing.T) {
	a := NewFileArtifact("gone", filepath.Join(t.TempDir(), "missing.wav"), "wav")
	assert.NoError(t, a.Release())
}

func TestAudioArtifact_Memory(t *testing.T) {
	a := NewMemoryArtifact("hi", []byte{1, 2}, "unknown")
	assert.Equal(t, "application/octet-stream", a.ContentType())

	data, err := a.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, data)
	require.NoError(t, a.Release())
	assert.True(t, a.Released())
}
