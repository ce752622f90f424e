// Package telemetry carries metric samples from the host into the engine and
// out to metric backends.
package telemetry

import "sync"

// Tag keys understood by the engine.
const (
	FlagTag    = "flagId"
	VariantTag = "variant"
	ReasonTag  = "reason"
)

// Sink receives metric samples. Implementations must not block; the engine
// never waits on or retries a RecordMetric call.
type Sink interface {
	RecordMetric(name string, value float64, tags map[string]string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(name string, value float64, tags map[string]string)

func (fn SinkFunc) RecordMetric(name string, value float64, tags map[string]string) {
	fn(name, value, tags)
}

// Multi fans a sample out to several sinks. A sink that panics is skipped.
type Multi struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

func (m *Multi) Add(s Sink) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

func (m *Multi) RecordMetric(name string, value float64, tags map[string]string) {
	m.mu.RLock()
	sinks := m.sinks
	m.mu.RUnlock()

	for _, s := range sinks {
		safeRecord(s, name, value, tags)
	}
}

func safeRecord(s Sink, name string, value float64, tags map[string]string) {
	defer func() { _ = recover() }()
	s.RecordMetric(name, value, tags)
}
