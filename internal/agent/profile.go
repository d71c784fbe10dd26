package agent

import (
	"os"
	"path/filepath"
	"strings"
)

// ProfileDir is the base directory for agent profile files.
var ProfileDir = "agents"

// LoadProfile reads PROMPT.md and GUIDE.md for the given agent ID and
// returns the concatenated content for system prompt injection. Missing
// files are skipped.
func LoadProfile(agentID string) string {
	dir := filepath.Join(ProfileDir, agentID)
	files := []string{"PROMPT.md", "GUIDE.md"}
	var parts []string
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			continue
		}
		if s := strings.TrimSpace(string(data)); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n---\n\n")
}
