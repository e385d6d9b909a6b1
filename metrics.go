package mishegos

import (
	"sync/atomic"
	"time"
)

// Metrics tracks operational statistics for one engine run. All counters
// are dispatcher-side: nothing here crosses the shared rings.
type Metrics struct {
	// Pipeline counters
	CandidatesGenerated atomic.Uint64 // Inputs pulled from the mutator
	ChunksPublished     atomic.Uint64 // Input chunks handed to workers
	SlotsFiltered       atomic.Uint64 // Slots run through the filter
	RecordsEmitted      atomic.Uint64 // Records surviving the filter
	BytesEmitted        atomic.Uint64 // Triage-stream payload bytes

	// Worker lifecycle
	CrashesObserved  atomic.Uint64 // Child deaths attributed to a slot
	WorkersRestarted atomic.Uint64 // Respawns performed by the sweep

	// Run lifecycle
	StartTime atomic.Int64 // Run start timestamp (UnixNano)
	StopTime  atomic.Int64 // Run stop timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// Stop marks the run as finished
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time view of a run's metrics
type MetricsSnapshot struct {
	CandidatesGenerated uint64
	ChunksPublished     uint64
	SlotsFiltered       uint64
	RecordsEmitted      uint64
	BytesEmitted        uint64
	CrashesObserved     uint64
	WorkersRestarted    uint64

	UptimeNs         uint64
	CandidatesPerSec float64
}

// Snapshot returns a point-in-time snapshot of metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		CandidatesGenerated: m.CandidatesGenerated.Load(),
		ChunksPublished:     m.ChunksPublished.Load(),
		SlotsFiltered:       m.SlotsFiltered.Load(),
		RecordsEmitted:      m.RecordsEmitted.Load(),
		BytesEmitted:        m.BytesEmitted.Load(),
		CrashesObserved:     m.CrashesObserved.Load(),
		WorkersRestarted:    m.WorkersRestarted.Load(),
	}

	end := m.StopTime.Load()
	if end == 0 {
		end = time.Now().UnixNano()
	}
	start := m.StartTime.Load()
	if end > start {
		s.UptimeNs = uint64(end - start)
		s.CandidatesPerSec = float64(s.CandidatesGenerated) / (float64(s.UptimeNs) / 1e9)
	}
	return s
}
