package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for the ops API.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	breachCount   map[string]int64
	escalations   int64
	jobsCompleted int64
	jobsRetried   int64
	jobsFailed    int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		breachCount:  make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
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

// RecordBreach counts a newly stamped breach on the given axis.
func (m *Metrics) RecordBreach(axis string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breachCount[axis]++
}

// RecordEscalation counts a fired escalation rule.
func (m *Metrics) RecordEscalation() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations++
}

// RecordJobCompleted counts a delivered notification job.
func (m *Metrics) RecordJobCompleted() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsCompleted++
}

// RecordJobRetried counts a re-queued notification job.
func (m *Metrics) RecordJobRetried() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsRetried++
}

// RecordJobFailed counts a job that exhausted its attempts.
func (m *Metrics) RecordJobFailed() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobsFailed++
}

// Snapshot returns a copy of all counters for the ops endpoint.
func (m *Metrics) Snapshot() map[string]any {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	requests := make(map[string]int64, len(m.requestCount))
	for k, v := range m.requestCount {
		requests[k] = v
	}
	errs := make(map[string]int64, len(m.errorCount))
	for k, v := range m.errorCount {
		errs[k] = v
	}
	breaches := make(map[string]int64, len(m.breachCount))
	for k, v := range m.breachCount {
		breaches[k] = v
	}
	return map[string]any{
		"requests":       requests,
		"errors":         errs,
		"breaches":       breaches,
		"escalations":    m.escalations,
		"jobs_completed": m.jobsCompleted,
		"jobs_retried":   m.jobsRetried,
		"jobs_failed":    m.jobsFailed,
	}
}
