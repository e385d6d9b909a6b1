package mishegos

import (
	"sync"

	"github.com/aengelke/mishegos/mutator"
	"github.com/aengelke/mishegos/slot"
)

// MockDecoder provides a scriptable decoder implementation for testing.
// It implements the optional constructor/destructor interfaces and tracks
// calls for verification.
type MockDecoder struct {
	name    string
	verdict func(raw []byte) (slot.Status, uint16, string)

	mu          sync.Mutex
	decodeCalls int
	constructed bool
	destructed  bool
}

// NewMockDecoder creates a decoder whose verdict function maps candidate
// bytes to (status, ndecoded, result).
func NewMockDecoder(name string, verdict func(raw []byte) (slot.Status, uint16, string)) *MockDecoder {
	return &MockDecoder{name: name, verdict: verdict}
}

// NewEchoDecoder accepts everything: ndecoded is the candidate length and
// the result echoes the raw bytes. Useful for round-trip checks against
// the emitted stream.
func NewEchoDecoder(name string) *MockDecoder {
	return NewMockDecoder(name, func(raw []byte) (slot.Status, uint16, string) {
		return slot.StatusSuccess, uint16(len(raw)), string(raw)
	})
}

// NewRejectingDecoder fails every candidate.
func NewRejectingDecoder(name string) *MockDecoder {
	return NewMockDecoder(name, func(raw []byte) (slot.Status, uint16, string) {
		return slot.StatusFailure, 0, ""
	})
}

// NewFixedLengthDecoder accepts every candidate as exactly n bytes.
func NewFixedLengthDecoder(name string, n uint16) *MockDecoder {
	return NewMockDecoder(name, func(raw []byte) (slot.Status, uint16, string) {
		return slot.StatusSuccess, n, ""
	})
}

// Name implements the decoder interface
func (m *MockDecoder) Name() string { return m.name }

// TryDecode implements the decoder interface
func (m *MockDecoder) TryDecode(out *slot.Output, raw []byte) {
	m.mu.Lock()
	m.decodeCalls++
	m.mu.Unlock()

	status, ndecoded, result := m.verdict(raw)
	out.Status = status
	out.Ndecoded = ndecoded
	out.SetResult(result)
}

// Construct implements the optional constructor interface
func (m *MockDecoder) Construct() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constructed = true
	return nil
}

// Destruct implements the optional destructor interface
func (m *MockDecoder) Destruct() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destructed = true
}

// DecodeCalls returns how many candidates the decoder has seen.
func (m *MockDecoder) DecodeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decodeCalls
}

// Constructed reports whether Construct ran.
func (m *MockDecoder) Constructed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.constructed
}

// Destructed reports whether Destruct ran.
func (m *MockDecoder) Destructed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destructed
}

// CorpusMutator yields the given candidates in order, then exhausts.
func CorpusMutator(candidates ...[]byte) mutator.Func {
	next := 0
	return func(in *slot.Input) bool {
		if next >= len(candidates) {
			return false
		}
		in.Set(candidates[next])
		next++
		return true
	}
}

// RepeatMutator yields count copies of pattern, then exhausts.
func RepeatMutator(pattern []byte, count int) mutator.Func {
	remaining := count
	return func(in *slot.Input) bool {
		if remaining <= 0 {
			return false
		}
		remaining--
		in.Set(pattern)
		return true
	}
}
