package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/margrave/gatehouse/internal/capability"
)

const versionPrefix = "gatehouse:capver:"

// versionMu serializes read-modify-write cycles on version slices. Version
// edits are rare operator actions; a process-wide mutex is enough.
var versionMu sync.Mutex

// ListVersions returns every version of a capability, oldest first. A
// capability with no versions yet yields an empty slice, not an error.
func (r *Redis) ListVersions(ctx context.Context, capID string) ([]capability.Version, error) {
	var versions []capability.Version
	err := r.getJSON(ctx, versionPrefix+capID, &versions)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// AddVersion appends a new version. The first version of a capability
// becomes active.
func (r *Redis) AddVersion(ctx context.Context, capID, label, instructions string) (capability.Version, error) {
	versionMu.Lock()
	defer versionMu.Unlock()

	versions, err := r.ListVersions(ctx, capID)
	if err != nil {
		return capability.Version{}, err
	}
	versions = capability.AppendVersion(versions, label, instructions, time.Now())
	if err := r.setJSON(ctx, versionPrefix+capID, versions); err != nil {
		return capability.Version{}, err
	}
	return versions[len(versions)-1], nil
}

// ActivateVersion switches the active version of a capability. The switch
// is atomic: the full slice is rewritten in one set.
func (r *Redis) ActivateVersion(ctx context.Context, capID string, number int) error {
	versionMu.Lock()
	defer versionMu.Unlock()

	versions, err := r.ListVersions(ctx, capID)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("capability %s has no versions", capID)
	}
	updated, err := capability.ActivateVersion(versions, number)
	if err != nil {
		return err
	}
	return r.setJSON(ctx, versionPrefix+capID, updated)
}

// ActiveVersion returns the active version of a capability, or nil when the
// capability has no versions.
func (r *Redis) ActiveVersion(ctx context.Context, capID string) (*capability.Version, error) {
	versions, err := r.ListVersions(ctx, capID)
	if err != nil {
		return nil, err
	}
	return capability.ActiveOf(versions), nil
}

// RecordVersionUse bumps the active version's usage metrics after a gated
// tool ran.
func (r *Redis) RecordVersionUse(ctx context.Context, capID string, success bool) error {
	versionMu.Lock()
	defer versionMu.Unlock()

	versions, err := r.ListVersions(ctx, capID)
	if err != nil {
		return err
	}
	for i := range versions {
		if !versions[i].Active {
			continue
		}
		versions[i].Metrics.Invocations++
		if success {
			versions[i].Metrics.Successes++
		} else {
			versions[i].Metrics.Failures++
		}
		versions[i].Metrics.LastUsed = time.Now()
		return r.setJSON(ctx, versionPrefix+capID, versions)
	}
	return nil
}
