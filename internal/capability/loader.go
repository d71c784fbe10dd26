package capability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadFromDir scans a directory for capability plugin subdirectories.
// Each subdirectory should contain a capability.json file and optionally
// summary.md / detail.md files that become a single "guide" resource.
// If dir doesn't exist, returns an empty slice without error.
func LoadFromDir(dir string) ([]*Capability, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading capability directory %s: %w", dir, err)
	}

	var caps []*Capability
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		c, err := loadFromSubdir(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("loading capability %s: %w", entry.Name(), err)
		}
		if c != nil {
			caps = append(caps, c)
		}
	}

	return caps, nil
}

func loadFromSubdir(dir string) (*Capability, error) {
	jsonPath := filepath.Join(dir, "capability.json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading capability.json: %w", err)
	}

	var c Capability
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing capability.json in %s: %w", dir, err)
	}
	c.Source = "plugin"
	if c.Kind == "" {
		if len(c.ToolNames) > 1 {
			c.Kind = KindBundle
		} else {
			c.Kind = KindTool
		}
	}

	// Markdown files alongside the manifest become a guide resource.
	summary := readTrimmed(filepath.Join(dir, "summary.md"))
	detail := readTrimmed(filepath.Join(dir, "detail.md"))
	if summary != "" || detail != "" {
		c.Resources = append(c.Resources, Resource{
			Name:    "guide",
			Summary: summary,
			Detail:  detail,
		})
	}

	return &c, nil
}

func readTrimmed(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
