// Package capability defines the closed set of executable capabilities the
// workflow runner sequences, plus the registry that resolves them by name.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sentinelhq/sentinel/internal/store"
)

var (
	ErrCapabilityUnregistered = errors.New("capability is not registered")
	ErrNilCapability          = errors.New("capability is nil")
	ErrCapabilityNameEmpty    = errors.New("capability name is empty")
)

// Result is the outcome of one capability invocation. Success false marks a
// capability-level failure without an infrastructure error.
type Result struct {
	Success bool
	Data    map[string]any
	Error   string
}

// Context carries the per-invocation identifiers and collaborator handles a
// capability may use. DryRun is the effective flag computed by the runner;
// while it is set capabilities still record their observations, analyses and
// dry action proposals, but must not perform external side effects.
type Context struct {
	RunID  string
	TaskID string
	DryRun bool

	Store     store.Store
	Completer Completer
	Watcher   ChainWatcher
}

// Capability executes one named action with the given input payload.
type Capability interface {
	Execute(ctx context.Context, action string, execCtx Context, input map[string]any) (Result, error)
}

// Registry maps capability names to implementations. Dispatch is a lookup in
// a fixed table, never reflection.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

func NewRegistry(initial map[string]Capability) *Registry {
	caps := make(map[string]Capability, len(initial))
	for name, c := range initial {
		caps[name] = c
	}
	return &Registry{caps: caps}
}

func (r *Registry) Register(name string, c Capability) error {
	if name == "" {
		return ErrCapabilityNameEmpty
	}
	if c == nil {
		return fmt.Errorf("%w: %q", ErrNilCapability, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[name] = c
	return nil
}

func (r *Registry) Resolve(name string) (Capability, error) {
	if name == "" {
		return nil, ErrCapabilityNameEmpty
	}
	r.mu.RLock()
	c, ok := r.caps[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCapabilityUnregistered, name)
	}
	return c, nil
}

// Names lists registered capability names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
