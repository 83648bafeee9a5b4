package resolve

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// MediaItem is one entry of an event manifest.
type MediaItem struct {
	Role     string `json:"role"`
	Filename string `json:"filename"`
}

// Manifest describes the media files available for one event.
type Manifest struct {
	Media []MediaItem `json:"media"`
}

// Roles in descending priority. The first role with a matching item wins.
var rolePriority = []string{"hero", "screenshot"}

// ResolveEventMedia loads the manifest for eventID under root and selects
// the media file to serve. Returns the absolute file path and the chosen
// item, or a typed not-found error.
func ResolveEventMedia(root string, eventID int) (string, *MediaItem, error) {
	eventDir := filepath.Join(root, strconv.Itoa(eventID))
	manifestPath := filepath.Join(eventDir, "manifest.json")

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, ErrEventNotFound
		}
		return "", nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "", nil, fmt.Errorf("invalid manifest: %w", err)
	}

	item := selectByRole(manifest.Media)
	if item == nil || item.Filename == "" {
		return "", nil, ErrNoMedia
	}

	path := filepath.Join(eventDir, item.Filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", item, ErrMediaFileMissing
		}
		return "", item, err
	}

	return path, item, nil
}

func selectByRole(items []MediaItem) *MediaItem {
	for _, role := range rolePriority {
		for i := range items {
			if items[i].Role == role {
				return &items[i]
			}
		}
	}
	return nil
}
