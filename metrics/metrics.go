// Package metrics provides lock-free counters for the emulation pipeline.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks what the emulation transport did with each request.
//
// Counters are only touched through sync/atomic, so a *Metrics can be
// shared by every request goroutine.  All methods accept a nil receiver and
// then do nothing, which lets components treat metrics as optional.
type Metrics struct {
	// Total is the number of requests that entered the pipeline.
	Total uint64

	// Emulated counts requests sent with a selected profile.
	Emulated uint64

	// PassedThrough counts requests sent unmodified, either because no
	// profile matched and emulation is optional or because the caller asked
	// to preserve its HTTP fingerprint.
	PassedThrough uint64

	// Rejected counts requests refused before reaching the upstream: no
	// profile while one is required, or invalid metadata headers.
	Rejected uint64

	// Decompressed counts responses whose body was transparently decoded.
	Decompressed uint64

	// UpstreamFailed counts round trips that returned a transport error.
	UpstreamFailed uint64

	startTime time.Time
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total             uint64  `json:"total"`
	Emulated          uint64  `json:"emulated"`
	PassedThrough     uint64  `json:"passed_through"`
	Rejected          uint64  `json:"rejected"`
	Decompressed      uint64  `json:"decompressed"`
	UpstreamFailed    uint64  `json:"upstream_failed"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// IncrementTotal counts a request entering the pipeline.
func (m *Metrics) IncrementTotal() {
	if m != nil {
		atomic.AddUint64(&m.Total, 1)
	}
}

// IncrementEmulated counts a request sent with a profile.
func (m *Metrics) IncrementEmulated() {
	if m != nil {
		atomic.AddUint64(&m.Emulated, 1)
	}
}

// IncrementPassedThrough counts a request sent unmodified.
func (m *Metrics) IncrementPassedThrough() {
	if m != nil {
		atomic.AddUint64(&m.PassedThrough, 1)
	}
}

// IncrementRejected counts a request refused by the pipeline.
func (m *Metrics) IncrementRejected() {
	if m != nil {
		atomic.AddUint64(&m.Rejected, 1)
	}
}

// IncrementDecompressed counts a transparently decoded response.
func (m *Metrics) IncrementDecompressed() {
	if m != nil {
		atomic.AddUint64(&m.Decompressed, 1)
	}
}

// IncrementUpstreamFailed counts a failed round trip.
func (m *Metrics) IncrementUpstreamFailed() {
	if m != nil {
		atomic.AddUint64(&m.UpstreamFailed, 1)
	}
}

// RequestsPerSecond returns the average request rate since the Metrics
// instance was created.
func (m *Metrics) RequestsPerSecond() float64 {
	if m == nil {
		return 0
	}
	elapsed := time.Since(m.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&m.Total)) / elapsed
}

// Snapshot returns the current counters.  The loads are individually
// atomic, not collectively, which is fine for monitoring.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Total:             atomic.LoadUint64(&m.Total),
		Emulated:          atomic.LoadUint64(&m.Emulated),
		PassedThrough:     atomic.LoadUint64(&m.PassedThrough),
		Rejected:          atomic.LoadUint64(&m.Rejected),
		Decompressed:      atomic.LoadUint64(&m.Decompressed),
		UpstreamFailed:    atomic.LoadUint64(&m.UpstreamFailed),
		RequestsPerSecond: m.RequestsPerSecond(),
		UptimeSeconds:     time.Since(m.startTime).Seconds(),
	}
}
