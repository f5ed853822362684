package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsSink_Aggregates(t *testing.T) {
	s := NewStatsSink()

	s.RecordSuccess(Event{Name: "publish", Elapsed: 10 * time.Millisecond, PayloadSize: 20})
	s.RecordSuccess(Event{Name: "publish", Elapsed: 30 * time.Millisecond, PayloadSize: 22})
	s.RecordFailure(Event{Name: "publish", Elapsed: 11 * time.Second, Kind: KindTimeout})
	s.RecordFailure(Event{Name: "disconnect", Kind: KindDisconnect})
	s.RecordFailure(Event{Name: "message_found"})

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "disconnect", snap[0].Name)
	assert.Equal(t, "message_found", snap[1].Name)
	assert.Equal(t, int64(1), snap[1].FailureKinds[KindGeneric])

	pub := snap[2]
	assert.Equal(t, "publish", pub.Name)
	assert.Equal(t, int64(3), pub.Requests)
	assert.Equal(t, int64(1), pub.Failures)
	assert.Equal(t, int64(1), pub.FailureKinds[KindTimeout])
	assert.Equal(t, int64(10), pub.MinMs)
	assert.Equal(t, int64(11000), pub.MaxMs)
	assert.Equal(t, int64(42), pub.Bytes)
	assert.Equal(t, int64(30), pub.MedianMs)
	assert.InDelta(t, float64(11040)/3, pub.AvgMs, 0.001)
}

func TestRoundResponseTime(t *testing.T) {
	assert.Equal(t, int64(42), roundResponseTime(42))
	assert.Equal(t, int64(150), roundResponseTime(147))
	assert.Equal(t, int64(2300), roundResponseTime(2345))
	assert.Equal(t, int64(12000), roundResponseTime(12345))
}

func TestMulti_FansOut(t *testing.T) {
	a, b := NewMemorySink(), NewMemorySink()
	m := Multi{a, b, Nop{}}

	m.RecordSuccess(Event{Name: "connect"})
	m.RecordFailure(Event{Name: "disconnect", Kind: KindDisconnect, Err: errors.New("gone")})

	for _, sink := range []*MemorySink{a, b} {
		events := sink.Events()
		require.Len(t, events, 2)
		assert.True(t, events[0].Success)
		assert.False(t, events[1].Success)
		assert.Len(t, sink.Kinds(KindDisconnect), 1)
	}
}

func TestPrometheusSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPrometheusSink(reg, "swarm")
	require.NoError(t, err)

	s.RecordSuccess(Event{Name: "publish", Elapsed: 5 * time.Millisecond, PayloadSize: 12})
	s.RecordSuccess(Event{Name: "publish", Elapsed: 7 * time.Millisecond, PayloadSize: 8})
	s.RecordFailure(Event{Name: "publish", Kind: KindTimeout})
	s.RecordFailure(Event{Name: "disconnect"})

	assert.Equal(t, float64(2), testutil.ToFloat64(s.requests.WithLabelValues("publish", "success", "")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.requests.WithLabelValues("publish", "failure", "timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.requests.WithLabelValues("disconnect", "failure", "generic")))
	assert.Equal(t, float64(20), testutil.ToFloat64(s.bytes.WithLabelValues("publish")))

	_, err = NewPrometheusSink(reg, "swarm")
	assert.Error(t, err, "registering twice must fail")
}

func TestLogSink_DoesNotPanic(t *testing.T) {
	s := NewLogSink(zerolog.Nop())
	s.RecordSuccess(Event{Name: "publish"})
	s.RecordFailure(Event{Name: "publish", Err: errors.New("boom")})
}
