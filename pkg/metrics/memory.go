package metrics

import "sync"

// MemorySink records every event in order. Used by tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty recorder.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) RecordSuccess(event Event) {
	event.Success = true
	m.add(event)
}

func (m *MemorySink) RecordFailure(event Event) {
	event.Success = false
	m.add(event)
}

func (m *MemorySink) add(event Event) {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Filter returns the recorded events matching name and outcome.
func (m *MemorySink) Filter(name string, success bool) []Event {
	var out []Event
	for _, e := range m.Events() {
		if e.Name == name && e.Success == success {
			out = append(out, e)
		}
	}
	return out
}

// Kinds returns the recorded failures of the given kind.
func (m *MemorySink) Kinds(kind ErrorKind) []Event {
	var out []Event
	for _, e := range m.Events() {
		if !e.Success && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all recorded events.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}
