package connio

import (
	"sync"
	"sync/atomic"
	"time"
)

// connMetrics accumulates per-connection read/write byte counters.
// observeLatency feeds the shared P² estimator backing Manager.Metrics,
// but no code path in this package calls it.
type connMetrics struct {
	bytesRead    atomic.Int64
	bytesWritten atomic.Int64

	mu      sync.Mutex
	latency *pSquareMultiQuantile
}

func newConnMetrics(latency *pSquareMultiQuantile) *connMetrics {
	return &connMetrics{latency: latency}
}

func (m *connMetrics) recordRead(n int) {
	m.bytesRead.Add(int64(n))
}

func (m *connMetrics) recordWrite(n int) {
	m.bytesWritten.Add(int64(n))
}

func (m *connMetrics) observeLatency(d time.Duration) {
	if m.latency == nil {
		return
	}
	m.latency.Observe(float64(d.Microseconds()))
}

// ManagerMetrics is a point-in-time snapshot of a Manager's
// instrumentation: deferred-write queue depth (the backpressure
// high-water-mark signal), byte counters, and latency percentiles. No
// latency samples are recorded anywhere in the package, so the Latency
// fields report 0.
type ManagerMetrics struct {
	TotalConnections   int
	TotalQueueDepth    int
	MaxQueueDepth      int
	LatencyP50Micros   float64
	LatencyP90Micros   float64
	LatencyP99Micros   float64
	TotalBytesRead     int64
	TotalBytesWritten  int64
}

// managerMetrics is the Manager-wide aggregator: one shared latency
// estimator plus counters swept across every live connection on demand.
type managerMetrics struct {
	latency *pSquareMultiQuantile
}

func newManagerMetrics() *managerMetrics {
	return &managerMetrics{latency: newPSquareMultiQuantile(0.5, 0.9, 0.99)}
}

func (m *managerMetrics) newConnMetrics() *connMetrics {
	return newConnMetrics(m.latency)
}

func (m *managerMetrics) snapshot(conns []*Connection) ManagerMetrics {
	snap := ManagerMetrics{
		LatencyP50Micros: m.latency.Value(0.5),
		LatencyP90Micros: m.latency.Value(0.9),
		LatencyP99Micros: m.latency.Value(0.99),
	}
	snap.TotalConnections = len(conns)
	for _, c := range conns {
		depth := c.deferred.Len()
		snap.TotalQueueDepth += depth
		if depth > snap.MaxQueueDepth {
			snap.MaxQueueDepth = depth
		}
		snap.TotalBytesRead += c.metrics.bytesRead.Load()
		snap.TotalBytesWritten += c.metrics.bytesWritten.Load()
	}
	return snap
}
