package grab

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hollowness-inside/hlsgrab/pkg/assemble"
	"github.com/hollowness-inside/hlsgrab/pkg/m3u8"
)

// Save writes result into dir under its suggested name and returns the
// final path. The bytes go to a temporary file first, so a failed save never
// leaves a partial artifact under the final name. Existing files are not
// overwritten; a numeric suffix is added instead.
func Save(result *assemble.Result, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".hlsgrab-*.part")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(result.Bytes); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write output: %w", err)
	}

	name := result.SuggestedFilename
	if name == "" {
		name = "video"
	}
	final, err := uniquePath(dir, filepath.Base(name))
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("failed to move output into place: %w", err)
	}
	return final, nil
}

// LoadDocument reads a playlist cached by SaveDocument.
func LoadDocument(cacheFile string) (*m3u8.Document, error) {
	data, err := os.ReadFile(cacheFile)
	if err != nil {
		return nil, err
	}

	var doc m3u8.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached playlist: %w", err)
	}
	if doc.Master == nil && doc.Media == nil {
		return nil, fmt.Errorf("cached playlist is empty")
	}
	return &doc, nil
}

// SaveDocument caches a parsed playlist as JSON.
func SaveDocument(cacheFile string, doc *m3u8.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cacheFile, data, 0o644)
}
