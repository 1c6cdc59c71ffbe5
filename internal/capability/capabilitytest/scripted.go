// Package capabilitytest provides deterministic collaborator doubles for
// capability and runner tests.
package capabilitytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/sentinelhq/sentinel/internal/capability"
)

// CompleterResponse configures one completer turn in a scripted sequence.
type CompleterResponse struct {
	Completion capability.Completion
	Err        error
}

// ScriptedCompleter replays a fixed sequence of completions and records the
// tool descriptors offered on each turn.
type ScriptedCompleter struct {
	mu        sync.Mutex
	index     int
	responses []CompleterResponse
	tools     [][]capability.Tool
}

func NewScriptedCompleter(responses ...CompleterResponse) *ScriptedCompleter {
	cloned := make([]CompleterResponse, len(responses))
	copy(cloned, responses)
	return &ScriptedCompleter{responses: cloned}
}

var _ capability.Completer = (*ScriptedCompleter)(nil)

func (c *ScriptedCompleter) Complete(_ context.Context, _ []capability.Message, tools ...capability.Tool) (capability.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.index >= len(c.responses) {
		return capability.Completion{}, fmt.Errorf("completer script exhausted at turn %d", c.index+1)
	}
	c.tools = append(c.tools, append([]capability.Tool(nil), tools...))
	current := c.responses[c.index]
	c.index++
	if current.Err != nil {
		return capability.Completion{}, current.Err
	}
	return current.Completion, nil
}

// Calls reports how many turns have been consumed.
func (c *ScriptedCompleter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Tools returns the tool descriptors offered per consumed turn.
func (c *ScriptedCompleter) Tools() [][]capability.Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]capability.Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// WatcherResponse configures one poll in a scripted sequence.
type WatcherResponse struct {
	Events []capability.WatchEvent
	Err    error
}

// ScriptedWatcher replays a fixed sequence of poll results.
type ScriptedWatcher struct {
	mu        sync.Mutex
	index     int
	responses []WatcherResponse
}

func NewScriptedWatcher(responses ...WatcherResponse) *ScriptedWatcher {
	cloned := make([]WatcherResponse, len(responses))
	copy(cloned, responses)
	return &ScriptedWatcher{responses: cloned}
}

var _ capability.ChainWatcher = (*ScriptedWatcher)(nil)

func (w *ScriptedWatcher) Poll(_ context.Context, _ map[string]any) ([]capability.WatchEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.index >= len(w.responses) {
		return nil, fmt.Errorf("watcher script exhausted at poll %d", w.index+1)
	}
	current := w.responses[w.index]
	w.index++
	if current.Err != nil {
		return nil, current.Err
	}
	events := make([]capability.WatchEvent, len(current.Events))
	copy(events, current.Events)
	return events, nil
}
