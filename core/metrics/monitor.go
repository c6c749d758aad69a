// Package metrics exports Prometheus counters and gauges for the pool
// manager and the DB handle pool; the scheduler and the named-mutex
// registry have no metrics here. It replaces
// the ad-hoc atomic-counter bottleneck sampler the teacher shipped with a
// real scrape surface, while keeping the same "record on the hot path, read
// on the cold path" shape.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Monitor is a per-process collection of request/handler metrics plus a
// lightweight bottleneck sampler. All counters are safe for concurrent use
// from connection-serving goroutines; Prometheus itself synchronizes
// collection.
type Monitor struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec

	mu       sync.Mutex
	handlers map[string]*handlerStats

	bottleneckMu sync.RWMutex
	bottlenecks  []Bottleneck

	stop chan struct{}
}

type handlerStats struct {
	count       uint64
	errs        uint64
	totalNanos  uint64
}

// Bottleneck describes a handler whose latency or error rate crossed a
// fixed threshold during the last sampling pass.
type Bottleneck struct {
	Type       string
	Location   string
	Severity   int
	Impact     float64
	DetectedAt time.Time
	Details    string
}

// NewMonitor registers its collectors with reg and starts the background
// bottleneck sampler. Callers that don't want a background goroutine should
// call Close when finished.
func NewMonitor(reg prometheus.Registerer, namespace string) *Monitor {
	m := &Monitor{
		handlers: make(map[string]*handlerStats),
		stop:     make(chan struct{}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_requests_total",
			Help:      "Total requests served per handler.",
		}, []string{"handler"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Total handler errors.",
		}, []string{"handler"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Handler latency distribution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.errors, m.duration)
	}
	go m.sample()
	return m
}

// RecordRequest records one completed request for handler.
func (m *Monitor) RecordRequest(handler string, d time.Duration, isError bool) {
	m.requests.WithLabelValues(handler).Inc()
	m.duration.WithLabelValues(handler).Observe(d.Seconds())
	if isError {
		m.errors.WithLabelValues(handler).Inc()
	}

	m.mu.Lock()
	hs, ok := m.handlers[handler]
	if !ok {
		hs = &handlerStats{}
		m.handlers[handler] = hs
	}
	hs.count++
	hs.totalNanos += uint64(d.Nanoseconds())
	if isError {
		hs.errs++
	}
	m.mu.Unlock()
}

// StartTrace returns a timestamp usable with EndTrace.
func (m *Monitor) StartTrace() time.Time { return time.Now() }

// EndTrace records the elapsed time since start against handler.
func (m *Monitor) EndTrace(handler string, start time.Time, isError bool) {
	m.RecordRequest(handler, time.Since(start), isError)
}

// GetBottlenecks returns the bottlenecks found by the most recent sample.
func (m *Monitor) GetBottlenecks() []Bottleneck {
	m.bottleneckMu.RLock()
	defer m.bottleneckMu.RUnlock()
	return append([]Bottleneck{}, m.bottlenecks...)
}

// Close stops the background sampler.
func (m *Monitor) Close() { close(m.stop) }

func (m *Monitor) sample() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			found := m.detectBottlenecks()
			m.bottleneckMu.Lock()
			m.bottlenecks = found
			m.bottleneckMu.Unlock()
		}
	}
}

func (m *Monitor) detectBottlenecks() []Bottleneck {
	m.mu.Lock()
	snapshot := make(map[string]handlerStats, len(m.handlers))
	for k, v := range m.handlers {
		snapshot[k] = *v
	}
	m.mu.Unlock()

	var found []Bottleneck
	for name, hs := range snapshot {
		if hs.count == 0 {
			continue
		}
		avg := time.Duration(hs.totalNanos / hs.count)
		if avg > 100*time.Millisecond {
			found = append(found, Bottleneck{
				Type: "latency", Location: name, Severity: 8, Impact: 100,
				DetectedAt: time.Now(),
				Details:    fmt.Sprintf("high latency (%v avg)", avg),
			})
		}
		if hs.errs > 0 && float64(hs.errs)/float64(hs.count) > 0.05 {
			rate := float64(hs.errs) / float64(hs.count) * 100
			found = append(found, Bottleneck{
				Type: "errors", Location: name, Severity: 10, Impact: rate,
				DetectedAt: time.Now(),
				Details:    fmt.Sprintf("%.1f%% error rate", rate),
			})
		}
	}
	return found
}

// PoolGauges are the per-pool gauges the pool manager updates on every
// thread-count transition (§4.1 "pool selection", §5 resource model).
type PoolGauges struct {
	ActiveThreads *prometheus.GaugeVec
	IdleThreads   *prometheus.GaugeVec
	QueueDepth    *prometheus.GaugeVec
	Rejected      *prometheus.CounterVec
}

// NewPoolGauges registers pool gauges under namespace and returns them.
func NewPoolGauges(reg prometheus.Registerer, namespace string) *PoolGauges {
	g := &PoolGauges{
		ActiveThreads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pool_active_threads", Help: "Active worker goroutines per pool.",
		}, []string{"pool"}),
		IdleThreads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pool_idle_threads", Help: "Idle worker goroutines per pool.",
		}, []string{"pool"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pool_queue_depth", Help: "Connections waiting for a worker.",
		}, []string{"pool"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pool_rejected_total", Help: "Connections queued past the wait-queue limit (tagged overflow).",
		}, []string{"pool"}),
	}
	if reg != nil {
		reg.MustRegister(g.ActiveThreads, g.IdleThreads, g.QueueDepth, g.Rejected)
	}
	return g
}

// DBPoolGauges are per-pool checkout/in-use/wait-error metrics for DB
// handle pools (§4.4). core/dbpool.Pool takes no gauges and does not
// update them.
type DBPoolGauges struct {
	Checkouts  *prometheus.CounterVec
	InUse      *prometheus.GaugeVec
	WaitErrors *prometheus.CounterVec
}

// NewDBPoolGauges registers DB pool gauges under namespace and returns them.
func NewDBPoolGauges(reg prometheus.Registerer, namespace string) *DBPoolGauges {
	g := &DBPoolGauges{
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dbpool_checkouts_total", Help: "Handle checkouts per DB pool.",
		}, []string{"pool"}),
		InUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "dbpool_in_use", Help: "Handles currently checked out per DB pool.",
		}, []string{"pool"}),
		WaitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "dbpool_wait_timeouts_total", Help: "Checkout waits that timed out.",
		}, []string{"pool"}),
	}
	if reg != nil {
		reg.MustRegister(g.Checkouts, g.InUse, g.WaitErrors)
	}
	return g
}
