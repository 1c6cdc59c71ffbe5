package capability

import (
	"context"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged turn in a completion request.
type Message struct {
	Role    Role
	Content string
}

// Usage reports token accounting for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Completion is the model's reply to a completion request.
type Completion struct {
	Text  string
	Usage Usage
}

// Tool describes a callable the model may be offered during a completion.
// Schema is a JSON-schema-shaped description of the tool's parameters.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Completer is the LLM collaborator. Implementations live outside this
// module; tests script one. Tool descriptors are optional; callers that
// need plain text completions pass none.
type Completer interface {
	Complete(ctx context.Context, messages []Message, tools ...Tool) (Completion, error)
}

// WatchEvent is one event reported by a chain watcher poll.
type WatchEvent struct {
	Source     string
	Kind       string
	Data       map[string]any
	ObservedAt time.Time
}

// ChainWatcher is the external observation source. Poll returns the events
// seen since the previous poll for the given watch configuration.
type ChainWatcher interface {
	Poll(ctx context.Context, config map[string]any) ([]WatchEvent, error)
}
