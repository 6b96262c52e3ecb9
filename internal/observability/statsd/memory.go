package statsd

import (
	"maps"
	"sync"
	"time"
)

// Metric is one observation captured by MemorySink.
type Metric struct {
	Kind     string
	Name     string
	Value    float64
	Duration time.Duration
	Tags     map[string]string
}

// MemorySink records metrics in memory. Useful in tests and for the admin CLI dry runs.
type MemorySink struct {
	mu      sync.Mutex
	metrics []Metric
}

var _ Sink = (*MemorySink)(nil)

func (m *MemorySink) Count(name string, value int64, tags map[string]string) {
	m.add(Metric{Kind: "count", Name: name, Value: float64(value), Tags: maps.Clone(tags)})
}

func (m *MemorySink) Gauge(name string, value float64, tags map[string]string) {
	m.add(Metric{Kind: "gauge", Name: name, Value: value, Tags: maps.Clone(tags)})
}

func (m *MemorySink) Timing(name string, value time.Duration, tags map[string]string) {
	m.add(Metric{Kind: "timing", Name: name, Duration: value, Tags: maps.Clone(tags)})
}

// Metrics returns a copy of everything recorded so far.
func (m *MemorySink) Metrics() []Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Metric(nil), m.metrics...)
}

// Named returns the recorded metrics with the given name.
func (m *MemorySink) Named(name string) []Metric {
	var out []Metric
	for _, metric := range m.Metrics() {
		if metric.Name == name {
			out = append(out, metric)
		}
	}
	return out
}

func (m *MemorySink) add(metric Metric) {
	m.mu.Lock()
	m.metrics = append(m.metrics, metric)
	m.mu.Unlock()
}
