package llm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 42*int(time.Millisecond), time.UTC)
	assert.Equal(t, "response_20240309_140507_042.json", ArtifactName(ts))
}

func TestArtifactWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewArtifactWriter(dir)
	w.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	path, err := w.Write([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "response_20240102_030405_000.json"), path)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "{\n  \"a\": 1\n}\n", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestArtifactWriter_NonJSON(t *testing.T) {
	w := NewArtifactWriter(t.TempDir())
	path, err := w.Write([]byte("gateway timeout"))
	require.NoError(t, err)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "gateway timeout", string(data))
}
