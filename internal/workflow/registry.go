package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// RunFunc executes a workflow for one job and returns its final payload.
type RunFunc func(ctx context.Context, job *Job) (any, error)

// Definition binds an event name to the workflow that handles it.
type Definition struct {
	EventName string
	Run       RunFunc
}

// Registry maps event names to workflow definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds def. Event names must be unique.
func (r *Registry) Register(def Definition) error {
	if def.EventName == "" {
		return errors.New("workflow event name is required")
	}
	if def.Run == nil {
		return fmt.Errorf("workflow %s: run func is required", def.EventName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.EventName]; exists {
		return fmt.Errorf("workflow %s already registered", def.EventName)
	}
	r.defs[def.EventName] = def
	return nil
}

// Lookup returns the definition for an event name.
func (r *Registry) Lookup(eventName string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[eventName]
	return def, ok
}

// Has reports whether a workflow is registered for eventName.
func (r *Registry) Has(eventName string) bool {
	_, ok := r.Lookup(eventName)
	return ok
}

// EventNames returns the registered event names in sorted order.
func (r *Registry) EventNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
