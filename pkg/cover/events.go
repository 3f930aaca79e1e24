package cover

import (
	"fmt"
	"sync"
)

// State is the position of a search session in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateSearching
	StateReady
	StateEnumeratingImages
	StateResolving
	StateDone
	StateCancelled
)

var stateNames = [...]string{"idle", "searching", "ready", "enumerating_images", "resolving", "done", "cancelled"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool { return s == StateDone || s == StateCancelled }

// EventKind identifies what an Event reports.
type EventKind string

const (
	EventStateChanged         EventKind = "state_changed"
	EventSearchSucceeded      EventKind = "search_succeeded"
	EventAllSearchesConcluded EventKind = "all_searches_concluded"
	EventPotentialImageFound  EventKind = "potential_image_found"
	EventImageResolved        EventKind = "image_resolved"
	EventBatchCompleted       EventKind = "batch_completed"
	EventBatchCancelled       EventKind = "batch_cancelled"
	EventBatchFailed          EventKind = "batch_failed"
)

// Event is a progress notification published while a session runs. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind     EventKind       `json:"kind"`
	Session  string          `json:"session"`
	Service  string          `json:"service,omitempty"`
	State    State           `json:"state"`
	Count    int             `json:"count,omitempty"`
	HasMore  bool            `json:"has_more,omitempty"`
	Accepted bool            `json:"accepted,omitempty"`
	Image    *PotentialImage `json:"image,omitempty"`
	Result   *ImageResult    `json:"result,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// broker fans events out to subscribers. Slow subscribers lose events rather
// than stall the session.
type broker struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

const subscriberBuffer = 64

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[int]chan Event)
	}
	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
