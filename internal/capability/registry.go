package capability

import "sync"

// Registry holds the catalog of known capabilities. It is populated once at
// process start and shared read-only across conversations afterwards.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Capability
	order []string
	owner map[string]string // tool name -> owning capability id
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[string]*Capability),
		owner: make(map[string]string),
	}
}

// Register adds a capability to the catalog. Returns DuplicateError if the
// id is already present.
func (r *Registry) Register(c *Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; ok {
		return &DuplicateError{ID: c.ID}
	}
	r.byID[c.ID] = c
	r.order = append(r.order, c.ID)
	for _, t := range c.ToolNames {
		r.owner[t] = c.ID
	}
	return nil
}

// Get returns a capability by id. Returns NotFoundError if absent.
func (r *Registry) Get(id string) (*Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return c, nil
}

// List returns all capabilities in registration order.
func (r *Registry) List() []*Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Capability, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// ResolveTools returns the deduplicated union of tool names unlocked by the
// given capability ids, preserving the order of ids. Unknown ids are skipped.
func (r *Registry) ResolveTools(ids []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var names []string
	for _, id := range ids {
		c, ok := r.byID[id]
		if !ok {
			continue
		}
		for _, t := range c.ToolNames {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				names = append(names, t)
			}
		}
	}
	return names
}

// OwnerOf returns the capability owning the given tool name. The second
// return is false for tools no capability gates.
func (r *Registry) OwnerOf(tool string) (*Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.owner[tool]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}
