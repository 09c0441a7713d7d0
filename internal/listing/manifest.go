package listing

import (
	"encoding/json"
	"fmt"
)

// Manifest is the index.json document served next to an image folder.
type Manifest struct {
	Files []string `json:"files"`
}

// ParseManifest decodes an index.json manifest.
func ParseManifest(data []byte) ([]string, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Files == nil {
		return []string{}, nil
	}
	return m.Files, nil
}
