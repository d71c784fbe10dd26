package capability

import (
	"fmt"
	"strings"
)

// State is the capability state of one conversation. It travels with the
// session record and is treated as an immutable value: every mutation
// returns a fresh copy, so the surrounding runtime can replay or checkpoint
// it like any other piece of conversation state.
//
// Loaded keeps insertion order with duplicates collapsed. LoadCounts counts
// every load attempt, including redundant ones; the duplicate counts feed
// the redundant-load wording and telemetry.
type State struct {
	Loaded         []string       `json:"loaded,omitempty"`
	LoadCounts     map[string]int `json:"load_counts,omitempty"`
	VersionsLoaded map[string]int `json:"versions_loaded,omitempty"`
	Expanded       []string       `json:"expanded,omitempty"`
}

// NewState returns an empty state for a fresh conversation.
func NewState() State {
	return State{}
}

// IsLoaded reports whether the capability has been loaded in this conversation.
func (s State) IsLoaded(id string) bool {
	for _, l := range s.Loaded {
		if l == id {
			return true
		}
	}
	return false
}

// LoadCount returns the number of load attempts for the capability.
func (s State) LoadCount(id string) int {
	return s.LoadCounts[id]
}

// IsExpanded reports whether the conversation asked for the capability's
// detail-tier documentation.
func (s State) IsExpanded(id string) bool {
	for _, e := range s.Expanded {
		if e == id {
			return true
		}
	}
	return false
}

func (s State) clone() State {
	out := State{
		Loaded:   append([]string(nil), s.Loaded...),
		Expanded: append([]string(nil), s.Expanded...),
	}
	if s.LoadCounts != nil {
		out.LoadCounts = make(map[string]int, len(s.LoadCounts))
		for k, v := range s.LoadCounts {
			out.LoadCounts[k] = v
		}
	}
	if s.VersionsLoaded != nil {
		out.VersionsLoaded = make(map[string]int, len(s.VersionsLoaded))
		for k, v := range s.VersionsLoaded {
			out.VersionsLoaded[k] = v
		}
	}
	return out
}

// MarkLoaded records a load attempt for the capability. Membership in the
// loaded set is idempotent, but the load count increments on every attempt.
// The boolean reports whether the capability was already loaded.
func MarkLoaded(s State, id string) (State, bool) {
	out := s.clone()
	already := out.IsLoaded(id)
	if !already {
		out.Loaded = append(out.Loaded, id)
	}
	if out.LoadCounts == nil {
		out.LoadCounts = make(map[string]int)
	}
	out.LoadCounts[id]++
	return out, already
}

// RecordVersion snapshots the capability version active at load time.
func RecordVersion(s State, id string, version int) State {
	out := s.clone()
	if out.VersionsLoaded == nil {
		out.VersionsLoaded = make(map[string]int)
	}
	out.VersionsLoaded[id] = version
	return out
}

// Expand marks the capability for detail-tier disclosure.
func Expand(s State, id string) State {
	if s.IsExpanded(id) {
		return s
	}
	out := s.clone()
	out.Expanded = append(out.Expanded, id)
	return out
}

// Summarize renders the system-prompt block for the conversation's loaded
// capabilities: each capability's name and description, plus its resources
// at summary tier, or detail tier once expanded.
func Summarize(s State, reg *Registry) string {
	if len(s.Loaded) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Loaded Capabilities\n")
	for _, id := range s.Loaded {
		c, err := reg.Get(id)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n%s\n", c.Name, c.Description)
		for _, res := range c.Resources {
			text := res.Summary
			if s.IsExpanded(id) && res.Detail != "" {
				text = res.Detail
			}
			if text == "" {
				continue
			}
			fmt.Fprintf(&b, "\n#### %s\n%s\n", res.Name, text)
		}
	}
	return b.String()
}
