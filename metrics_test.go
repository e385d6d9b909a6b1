package mishegos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.CandidatesGenerated.Add(4096)
	m.ChunksPublished.Add(1)
	m.SlotsFiltered.Add(4096)
	m.RecordsEmitted.Add(17)
	m.BytesEmitted.Add(2500)
	m.CrashesObserved.Add(2)
	m.WorkersRestarted.Add(2)

	time.Sleep(time.Millisecond)
	m.Stop()
	s := m.Snapshot()

	assert.Equal(t, uint64(4096), s.CandidatesGenerated)
	assert.Equal(t, uint64(1), s.ChunksPublished)
	assert.Equal(t, uint64(17), s.RecordsEmitted)
	assert.Equal(t, uint64(2500), s.BytesEmitted)
	assert.Equal(t, uint64(2), s.CrashesObserved)
	assert.Equal(t, uint64(2), s.WorkersRestarted)
	assert.Greater(t, s.UptimeNs, uint64(0))
	assert.Greater(t, s.CandidatesPerSec, 0.0)
}

func TestMetricsSnapshotBeforeStop(t *testing.T) {
	m := NewMetrics()
	time.Sleep(time.Millisecond)
	s := m.Snapshot()
	assert.Greater(t, s.UptimeNs, uint64(0), "running snapshots use the current time")
	assert.Equal(t, 0.0, s.CandidatesPerSec)
}
