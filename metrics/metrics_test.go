package metrics_test

import (
	"sync"
	"testing"

	"github.com/firasghr/uaemulate/metrics"
)

func TestIncrements(t *testing.T) {
	m := metrics.NewMetrics()
	m.IncrementTotal()
	m.IncrementTotal()
	m.IncrementTotal()
	m.IncrementEmulated()
	m.IncrementPassedThrough()
	m.IncrementRejected()
	m.IncrementDecompressed()
	m.IncrementUpstreamFailed()

	s := m.Snapshot()
	if s.Total != 3 {
		t.Errorf("Total: got %d, want 3", s.Total)
	}
	for name, got := range map[string]uint64{
		"Emulated":       s.Emulated,
		"PassedThrough":  s.PassedThrough,
		"Rejected":       s.Rejected,
		"Decompressed":   s.Decompressed,
		"UpstreamFailed": s.UpstreamFailed,
	} {
		if got != 1 {
			t.Errorf("%s: got %d, want 1", name, got)
		}
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := metrics.NewMetrics()
	const goroutines = 1000
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			m.IncrementTotal()
			m.IncrementEmulated()
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	if s.Total != goroutines {
		t.Errorf("Total: got %d, want %d", s.Total, goroutines)
	}
	if s.Emulated != goroutines {
		t.Errorf("Emulated: got %d, want %d", s.Emulated, goroutines)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	m.IncrementTotal()
	m.IncrementRejected()
	if s := m.Snapshot(); s != (metrics.Snapshot{}) {
		t.Errorf("nil Snapshot: got %+v, want zero", s)
	}
	if rps := m.RequestsPerSecond(); rps != 0 {
		t.Errorf("nil RequestsPerSecond: got %v, want 0", rps)
	}
}

func TestRequestsPerSecond(t *testing.T) {
	m := metrics.NewMetrics()
	for i := 0; i < 10; i++ {
		m.IncrementTotal()
	}
	if rps := m.RequestsPerSecond(); rps <= 0 {
		t.Errorf("RequestsPerSecond: got %v, want > 0", rps)
	}
}
