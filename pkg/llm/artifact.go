package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArtifactWriter dumps raw completion responses for debugging
type ArtifactWriter struct {
	dir string
	now func() time.Time
}

func NewArtifactWriter(dir string) *ArtifactWriter {
	return &ArtifactWriter{dir: dir, now: time.Now}
}

// ArtifactName returns response_YYYYMMDD_HHMMSS_mmm.json for t
func ArtifactName(t time.Time) string {
	return fmt.Sprintf("response_%s_%03d.json", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond))
}

// Write stores body, indented when it is valid JSON, and returns the file path
func (w *ArtifactWriter) Write(body []byte) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	out := body
	var indented bytes.Buffer
	if err := json.Indent(&indented, body, "", "  "); err == nil {
		out = append(indented.Bytes(), '\n')
	}

	path := filepath.Join(w.dir, ArtifactName(w.now()))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return "", fmt.Errorf("write artifact temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
