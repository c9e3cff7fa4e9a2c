// Package monitor records per-operation latency and cache effectiveness for
// vector stores.
package monitor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation names recorded by Wrap.
const (
	OpCreateIndex     = "create_index"
	OpListIndexes     = "list_indexes"
	OpDescribeIndex   = "describe_index"
	OpDeleteIndex     = "delete_index"
	OpUpsert          = "upsert"
	OpSearch          = "search"
	OpUpdateDocument  = "update_document"
	OpDeleteDocuments = "delete_documents"
	OpGetDocuments    = "get_documents"
	OpHealthCheck     = "health_check"
)

// OperationStats aggregates one operation name.
type OperationStats struct {
	Count        int64         `json:"count"`
	Errors       int64         `json:"errors"`
	TotalLatency time.Duration `json:"total_latency"`
	MinLatency   time.Duration `json:"min_latency"`
	MaxLatency   time.Duration `json:"max_latency"`
}

// AvgLatency is TotalLatency / Count.
func (s OperationStats) AvgLatency() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Count)
}

// Snapshot is a point-in-time copy of the monitor state.
type Snapshot struct {
	Uptime       time.Duration             `json:"uptime"`
	Operations   map[string]OperationStats `json:"operations"`
	CacheHits    int64                     `json:"cache_hits"`
	CacheMisses  int64                     `json:"cache_misses"`
	OpsPerSecond float64                   `json:"ops_per_second"`
}

// TotalOperations sums Count over every operation.
func (s Snapshot) TotalOperations() int64 {
	var n int64
	for _, op := range s.Operations {
		n += op.Count
	}
	return n
}

// CacheHitRate is hits / (hits + misses), or 0 with no lookups.
func (s Snapshot) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Monitor is safe for concurrent use.
type Monitor struct {
	start time.Time

	mu          sync.Mutex
	ops         map[string]*OperationStats
	cacheHits   int64
	cacheMisses int64

	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	cache    *prometheus.CounterVec
}

// New creates a monitor. Collectors are registered on reg when it is not nil.
func New(reg prometheus.Registerer) *Monitor {
	factory := promauto.With(reg)
	return &Monitor{
		start: time.Now(),
		ops:   make(map[string]*OperationStats),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "vectorstore",
				Name:      "operation_duration_seconds",
				Help:      "Duration of vector store operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		total: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vectorstore",
				Name:      "operations_total",
				Help:      "Total number of vector store operations",
			},
			[]string{"operation", "result"},
		),
		cache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vectorstore",
				Name:      "cache_requests_total",
				Help:      "Total number of search cache lookups",
			},
			[]string{"result"},
		),
	}
}

// Record adds one observation of op.
func (m *Monitor) Record(op string, latency time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.duration.WithLabelValues(op).Observe(latency.Seconds())
	m.total.WithLabelValues(op, result).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.ops[op]
	if !ok {
		st = &OperationStats{MinLatency: latency}
		m.ops[op] = st
	}
	st.Count++
	if err != nil {
		st.Errors++
	}
	st.TotalLatency += latency
	if latency < st.MinLatency {
		st.MinLatency = latency
	}
	if latency > st.MaxLatency {
		st.MaxLatency = latency
	}
}

// RecordCacheHit counts a served cache entry.
func (m *Monitor) RecordCacheHit() {
	m.cache.WithLabelValues("hit").Inc()
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

// RecordCacheMiss counts a lookup that went to the backend.
func (m *Monitor) RecordCacheMiss() {
	m.cache.WithLabelValues("miss").Inc()
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()
}

// Snapshot copies the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		Uptime:      time.Since(m.start),
		Operations:  make(map[string]OperationStats, len(m.ops)),
		CacheHits:   m.cacheHits,
		CacheMisses: m.cacheMisses,
	}
	for name, st := range m.ops {
		snap.Operations[name] = *st
	}
	if secs := snap.Uptime.Seconds(); secs > 0 {
		snap.OpsPerSecond = float64(snap.TotalOperations()) / secs
	}
	return snap
}

// Reset clears the aggregated counters. Prometheus collectors are cumulative
// and are left untouched.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.start = time.Now()
	m.ops = make(map[string]*OperationStats)
	m.cacheHits = 0
	m.cacheMisses = 0
}
