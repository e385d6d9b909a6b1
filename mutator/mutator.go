// Package mutator generates candidate byte sequences for the engine. A
// mutator fills one input slot per call and reports false once its
// candidate space is exhausted, which is the engine's end-of-stream
// signal.
package mutator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aengelke/mishegos/slot"
)

// Func fills the given input slot with one candidate and returns true, or
// returns false (slot untouched) once exhausted.
type Func func(*slot.Input) bool

// DefaultName is the mutator used when none is requested.
const DefaultName = "havoc"

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Func{}
)

// Register makes a mutator constructor resolvable by name. Each Create
// call gets a fresh instance, so mutator state is per-run.
func Register(name string, ctor func() Func) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("mutator: duplicate mutator %q", name))
	}
	registry[name] = ctor
}

// Names lists the registered mutators, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create instantiates the named mutator; the empty name selects the
// default.
func Create(name string) (Func, error) {
	if name == "" {
		name = DefaultName
	}
	registryMu.RLock()
	ctor := registry[name]
	registryMu.RUnlock()
	if ctor == nil {
		return nil, fmt.Errorf("no mutator %q", name)
	}
	return ctor(), nil
}

// Limit wraps a mutator to yield at most n candidates. Mostly useful for
// bounded runs and tests.
func Limit(fn Func, n int) Func {
	remaining := n
	return func(in *slot.Input) bool {
		if remaining <= 0 {
			return false
		}
		remaining--
		return fn(in)
	}
}
