package capability

import (
	"fmt"
	"time"
)

// Version is one named revision of a capability's instruction content.
// Exactly one version per capability is active at a time; switching the
// active version is a metadata update, prior versions stay retrievable.
type Version struct {
	Number       int       `json:"number"`
	Label        string    `json:"label,omitempty"`
	Instructions string    `json:"instructions"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	Metrics      Metrics   `json:"metrics"`
}

// Metrics tracks how a version has been used.
type Metrics struct {
	Invocations int64     `json:"invocations"`
	Successes   int64     `json:"successes"`
	Failures    int64     `json:"failures"`
	LastUsed    time.Time `json:"last_used,omitzero"`
}

// AppendVersion adds a new version to the slice, numbering it after the
// highest existing number. The first version of a capability becomes active.
func AppendVersion(versions []Version, label, instructions string, now time.Time) []Version {
	next := 1
	for _, v := range versions {
		if v.Number >= next {
			next = v.Number + 1
		}
	}
	return append(versions, Version{
		Number:       next,
		Label:        label,
		Instructions: instructions,
		Active:       len(versions) == 0,
		CreatedAt:    now,
	})
}

// ActivateVersion marks the given version number active and deactivates the
// rest. Content and metrics are untouched.
func ActivateVersion(versions []Version, number int) ([]Version, error) {
	found := false
	for i := range versions {
		if versions[i].Number == number {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("version %d not found", number)
	}
	out := append([]Version(nil), versions...)
	for i := range out {
		out[i].Active = out[i].Number == number
	}
	return out, nil
}

// ActiveOf returns the active version, or nil if none is active.
func ActiveOf(versions []Version) *Version {
	for i := range versions {
		if versions[i].Active {
			return &versions[i]
		}
	}
	return nil
}
