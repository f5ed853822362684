package metrics

import "github.com/rs/zerolog"

// LogSink writes events to a zerolog logger: failures at warn, successes at debug.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) RecordSuccess(event Event) {
	l.logger.Debug().
		Str("request_type", event.RequestType).
		Str("name", event.Name).
		Str("device", event.DeviceID).
		Int64("response_time_ms", event.ElapsedMs()).
		Int("response_length", event.PayloadSize).
		Msg("request succeeded")
}

func (l *LogSink) RecordFailure(event Event) {
	l.logger.Warn().
		Str("request_type", event.RequestType).
		Str("name", event.Name).
		Str("device", event.DeviceID).
		Str("kind", string(event.Kind)).
		Int64("response_time_ms", event.ElapsedMs()).
		Err(event.Err).
		Msg("request failed")
}
