package capability

import "fmt"

// NotFoundError reports a capability id unknown to the registry. It is
// recoverable by design: the gating layer converts it into a corrective
// conversation message instead of failing the turn.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("capability %q not found", e.ID)
}

// DuplicateError reports an attempt to register a capability id twice.
type DuplicateError struct {
	ID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("capability %q already registered", e.ID)
}
