package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Step operations. A step typically registers a process handler that runs the
// step's business logic and a fetch handler that returns the data needed to
// render the step.
const (
	OpProcess = "process"
	OpFetch   = "fetch"
)

// Handler is a step handler. It receives the case number the step is being
// executed for and the caller-validated payload, and returns the handler's
// result data.
type Handler func(ctx context.Context, caseNo string, payload map[string]any) (map[string]any, error)

// Entry holds one registered handler together with its registration metadata.
type Entry struct {
	StepID    string
	Operation string
	Name      string
	Handler   Handler
}

// Registry maps a step token plus operation to its handler. It is populated
// once at startup and frozen before the first request is served; after Freeze
// every read is lock-free in practice since no writes occur.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	frozen  bool
}

// New returns an empty, unfrozen Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

func key(stepID, operation string) string {
	return stepID + "-" + operation
}

// Register adds a handler under the key "{stepID}-{operation}". Registering
// two distinct handlers under the same key is a configuration bug and returns
// an error so startup fails fast. Registration after Freeze is also an error.
func (r *Registry) Register(stepID, operation, name string, fn Handler) error {
	if stepID == "" || name == "" {
		return fmt.Errorf("registry: step id and name are required")
	}
	if operation != OpProcess && operation != OpFetch {
		return fmt.Errorf("registry: unknown operation %q for step %q", operation, stepID)
	}
	if fn == nil {
		return fmt.Errorf("registry: nil handler for step %q operation %q", stepID, operation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry: registration of step %q after freeze", stepID)
	}
	k := key(stepID, operation)
	if existing, ok := r.entries[k]; ok {
		return fmt.Errorf("registry: step %q operation %q already registered as %q", stepID, operation, existing.Name)
	}
	r.entries[k] = Entry{StepID: stepID, Operation: operation, Name: name, Handler: fn}
	return nil
}

// Freeze marks the registry read-only. Called once in main after all flow
// modules have registered and before the HTTP layer accepts traffic.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Resolve returns the handler registered for the given step and operation.
func (r *Registry) Resolve(stepID, operation string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key(stepID, operation)]
	if !ok {
		return nil, false
	}
	return e.Handler, true
}

// Lookup returns the full registration entry for the given step and operation.
func (r *Registry) Lookup(stepID, operation string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key(stepID, operation)]
	return e, ok
}

// Names returns the sorted registration keys, for startup diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for k := range r.entries {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
