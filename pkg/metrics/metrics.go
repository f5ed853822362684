// Package metrics defines the boundary simulated devices report outcomes into,
// plus a handful of sinks: an in-memory recorder, a per-operation aggregator,
// a Prometheus exporter and a zerolog writer.
package metrics

import "time"

// RequestType tags every event produced by the simulator.
const RequestType = "MQTT"

// ErrorKind classifies a failure for aggregation.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindTimeout    ErrorKind = "timeout"
	KindNotFound   ErrorKind = "not_found"
	KindConnect    ErrorKind = "connect"
	KindDisconnect ErrorKind = "disconnect"
	KindSubmit     ErrorKind = "submit"
	KindGeneric    ErrorKind = "generic"
)

// Event is one measured outcome. Events are emitted and forgotten.
type Event struct {
	RequestType string
	Name        string
	DeviceID    string
	Elapsed     time.Duration
	Success     bool
	Kind        ErrorKind
	Err         error
	PayloadSize int
}

// ElapsedMs returns the elapsed time in whole milliseconds.
func (e Event) ElapsedMs() int64 {
	return e.Elapsed.Milliseconds()
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	RecordSuccess(event Event)
	RecordFailure(event Event)
}

// Multi fans events out to several sinks.
type Multi []Sink

// RecordSuccess forwards to every sink.
func (m Multi) RecordSuccess(event Event) {
	for _, s := range m {
		s.RecordSuccess(event)
	}
}

// RecordFailure forwards to every sink.
func (m Multi) RecordFailure(event Event) {
	for _, s := range m {
		s.RecordFailure(event)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) RecordSuccess(Event) {}
func (Nop) RecordFailure(Event) {}
