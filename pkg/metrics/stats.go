package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// OperationStats is the aggregate for one operation name.
type OperationStats struct {
	Name         string              `json:"name"`
	Requests     int64               `json:"requests"`
	Failures     int64               `json:"failures"`
	FailureKinds map[ErrorKind]int64 `json:"failure_kinds,omitempty"`
	MinMs        int64               `json:"min_ms"`
	MaxMs        int64               `json:"max_ms"`
	AvgMs        float64             `json:"avg_ms"`
	MedianMs     int64               `json:"median_ms"`
	P95Ms        int64               `json:"p95_ms"`
	Bytes        int64               `json:"bytes"`
}

type operationAccumulator struct {
	requests     int64
	failures     int64
	failureKinds map[ErrorKind]int64
	totalMs      int64
	minMs        int64
	maxMs        int64
	bytes        int64
	// rounded response time -> count
	times map[int64]int64
}

// StatsSink aggregates events per operation name, in the manner of a load-test
// report table.
type StatsSink struct {
	mu         sync.Mutex
	startedAt  time.Time
	operations map[string]*operationAccumulator
}

// NewStatsSink creates an empty aggregator.
func NewStatsSink() *StatsSink {
	return &StatsSink{
		startedAt:  time.Now(),
		operations: make(map[string]*operationAccumulator),
	}
}

func (s *StatsSink) RecordSuccess(event Event) {
	s.record(event, true)
}

func (s *StatsSink) RecordFailure(event Event) {
	s.record(event, false)
}

func (s *StatsSink) record(event Event, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.operations[event.Name]
	if !ok {
		acc = &operationAccumulator{
			failureKinds: make(map[ErrorKind]int64),
			times:        make(map[int64]int64),
			minMs:        math.MaxInt64,
		}
		s.operations[event.Name] = acc
	}

	ms := event.ElapsedMs()
	acc.requests++
	acc.totalMs += ms
	acc.times[roundResponseTime(ms)]++
	if ms < acc.minMs {
		acc.minMs = ms
	}
	if ms > acc.maxMs {
		acc.maxMs = ms
	}
	if success {
		acc.bytes += int64(event.PayloadSize)
		return
	}
	acc.failures++
	kind := event.Kind
	if kind == KindNone {
		kind = KindGeneric
	}
	acc.failureKinds[kind]++
}

// Snapshot returns the current aggregates sorted by operation name.
func (s *StatsSink) Snapshot() []OperationStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]OperationStats, 0, len(s.operations))
	for name, acc := range s.operations {
		st := OperationStats{
			Name:     name,
			Requests: acc.requests,
			Failures: acc.failures,
			MinMs:    acc.minMs,
			MaxMs:    acc.maxMs,
			Bytes:    acc.bytes,
			MedianMs: percentile(acc.times, acc.requests, 0.5),
			P95Ms:    percentile(acc.times, acc.requests, 0.95),
		}
		if acc.requests > 0 {
			st.AvgMs = float64(acc.totalMs) / float64(acc.requests)
		}
		if len(acc.failureKinds) > 0 {
			st.FailureKinds = make(map[ErrorKind]int64, len(acc.failureKinds))
			for k, v := range acc.failureKinds {
				st.FailureKinds[k] = v
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Elapsed returns how long the sink has been collecting.
func (s *StatsSink) Elapsed() time.Duration {
	return time.Since(s.startedAt)
}

// roundResponseTime keeps two significant digits above 100ms.
func roundResponseTime(ms int64) int64 {
	switch {
	case ms < 100:
		return ms
	case ms < 1000:
		return int64(math.Round(float64(ms)/10) * 10)
	case ms < 10000:
		return int64(math.Round(float64(ms)/100) * 100)
	default:
		return int64(math.Round(float64(ms)/1000) * 1000)
	}
}

func percentile(times map[int64]int64, total int64, p float64) int64 {
	if total == 0 {
		return 0
	}
	keys := make([]int64, 0, len(times))
	for k := range times {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	target := int64(math.Ceil(float64(total) * p))
	var seen int64
	for _, k := range keys {
		seen += times[k]
		if seen >= target {
			return k
		}
	}
	return keys[len(keys)-1]
}
