package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu             sync.Mutex
	requestCount   map[string]int64
	requestLatency map[string]time.Duration
	errorCount     map[string]int64
	sagaOutcomes   map[string]int64
	stepFailures   map[string]int64
	events         map[string]int64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Requests     map[string]int64 `json:"requests"`
	AvgLatencyMs map[string]int64 `json:"avg_latency_ms"`
	Errors       map[string]int64 `json:"errors"`
	SagaOutcomes map[string]int64 `json:"saga_outcomes"`
	StepFailures map[string]int64 `json:"step_failures"`
	Events       map[string]int64 `json:"events"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:   make(map[string]int64),
		requestLatency: make(map[string]time.Duration),
		errorCount:     make(map[string]int64),
		sagaOutcomes:   make(map[string]int64),
		stepFailures:   make(map[string]int64),
		events:         make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestLatency[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordSagaOutcome counts finished workflows by decision and result code.
func (m *Metrics) RecordSagaOutcome(decision, outcome string) {
	if m == nil {
		return
	}
	if decision == "" {
		decision = "none"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sagaOutcomes[decision+"|"+outcome]++
}

// RecordStepFailure counts best-effort steps that failed.
func (m *Metrics) RecordStepFailure(step string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepFailures[step]++
}

// RecordEvent counts published domain events by type.
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[eventType]++
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	avg := make(map[string]int64, len(m.requestLatency))
	for key, total := range m.requestLatency {
		if n := m.requestCount[key]; n > 0 {
			avg[key] = total.Milliseconds() / n
		}
	}
	return MetricsSnapshot{
		Requests:     copyCounts(m.requestCount),
		AvgLatencyMs: avg,
		Errors:       copyCounts(m.errorCount),
		SagaOutcomes: copyCounts(m.sagaOutcomes),
		StepFailures: copyCounts(m.stepFailures),
		Events:       copyCounts(m.events),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
