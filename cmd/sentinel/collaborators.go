package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sentinelhq/sentinel/internal/capability"
)

// fileWatcher serves events from a YAML file, one batch per poll. It stands
// in for a live chain-watcher endpoint so workflows can run end to end from
// recorded data.
type fileWatcher struct {
	mu     sync.Mutex
	path   string
	served bool
}

func newFileWatcher(path string) *fileWatcher {
	return &fileWatcher{path: path}
}

type eventFile struct {
	Events []struct {
		Source string         `yaml:"source"`
		Kind   string         `yaml:"kind"`
		Data   map[string]any `yaml:"data,omitempty"`
	} `yaml:"events"`
}

func (w *fileWatcher) Poll(_ context.Context, _ map[string]any) ([]capability.WatchEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.path == "" {
		return nil, fmt.Errorf("no events file configured, pass -events")
	}
	if w.served {
		return nil, nil
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("read events file: %w", err)
	}
	var file eventFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse events file: %w", err)
	}

	events := make([]capability.WatchEvent, 0, len(file.Events))
	for _, e := range file.Events {
		events = append(events, capability.WatchEvent{
			Source: e.Source,
			Kind:   e.Kind,
			Data:   e.Data,
		})
	}
	w.served = true
	return events, nil
}

// localCompleter is an offline stand-in used when no model endpoint is
// configured. It echoes the event back as the finding and takes the score
// from the event's own "score" field, defaulting to zero.
type localCompleter struct{}

func (localCompleter) Complete(_ context.Context, messages []capability.Message, _ ...capability.Tool) (capability.Completion, error) {
	var event struct {
		Kind  string  `json:"kind"`
		Score float64 `json:"score"`
	}
	summary := "unscored event"
	for _, m := range messages {
		if m.Role != capability.RoleUser {
			continue
		}
		if idx := strings.IndexByte(m.Content, '{'); idx >= 0 {
			if err := json.Unmarshal([]byte(m.Content[idx:]), &event); err == nil && event.Kind != "" {
				summary = event.Kind
			}
		}
	}

	reply, err := json.Marshal(map[string]any{"summary": summary, "score": event.Score})
	if err != nil {
		return capability.Completion{}, err
	}
	return capability.Completion{Text: string(reply)}, nil
}
