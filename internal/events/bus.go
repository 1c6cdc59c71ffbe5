// Package events provides a non-blocking publish/subscribe bus used to make
// task and run transitions observable without ever blocking the transition.
package events

import (
	"sync"
	"time"
)

type EventType string

const (
	EventTaskCreated   EventType = "task_created"
	EventTaskQueued    EventType = "task_queued"
	EventTaskStarted   EventType = "task_started"
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
	EventTaskCancelled EventType = "task_cancelled"
	EventTaskRetried   EventType = "task_retried"
	EventRunStarted    EventType = "run_started"
	EventRunFinished   EventType = "run_finished"
	EventStepFinished  EventType = "step_finished"
	EventActionDecided EventType = "action_decided"
)

// Event is a single system event. RunID and TaskID are set when the event
// concerns a run or task; Data carries anything else.
type Event struct {
	Type      EventType
	Timestamp time.Time
	RunID     string
	TaskID    string
	Data      map[string]any
}

type Subscriber func(Event)

// Bus delivers events asynchronously over buffered channels. Publish never
// blocks: if a subscriber's buffer is full the event is dropped for that
// subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for one event type and returns an unsubscribe
// function. fn runs on its own goroutine; a panic in fn is swallowed so a
// bad subscriber cannot take down the bus.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() {
					_ = recover()
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// SubscribeAll registers fn for every known event type and returns a single
// unsubscribe function covering all of them.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	types := []EventType{
		EventTaskCreated, EventTaskQueued, EventTaskStarted,
		EventTaskCompleted, EventTaskFailed, EventTaskCancelled,
		EventTaskRetried, EventRunStarted, EventRunFinished,
		EventStepFinished, EventActionDecided,
	}
	unsubs := make([]func(), 0, len(types))
	for _, et := range types {
		unsubs = append(unsubs, b.Subscribe(et, fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Publish sends an event to all subscribers of its type without blocking.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			// buffer full, drop rather than block the publisher
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
