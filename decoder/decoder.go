// Package decoder defines the ABI between the engine and the decoder
// implementations under test, and resolves worker-list entries to
// loadable decoders. Decoders are untrusted: in process mode each runs in
// its own child process precisely because it may crash.
package decoder

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aengelke/mishegos/slot"
)

// Decoder is one machine-code decoder under test. TryDecode inspects raw
// (never longer than slot.MaxInsnLen bytes) and fills in the verdict. It
// must not retain out or raw past return: both point into shared rings
// that are overwritten on the next lap.
type Decoder interface {
	Name() string
	TryDecode(out *slot.Output, raw []byte)
}

// Constructor is implemented by decoders that need per-worker setup
// before the first TryDecode.
type Constructor interface {
	Construct() error
}

// Destructor is implemented by decoders that need teardown after the last
// TryDecode.
type Destructor interface {
	Destruct()
}

// Func adapts a plain function to a Decoder.
type Func struct {
	DecoderName string
	Decode      func(out *slot.Output, raw []byte)
}

func (f *Func) Name() string { return f.DecoderName }

func (f *Func) TryDecode(out *slot.Output, raw []byte) { f.Decode(out, raw) }

// BuiltinPrefix marks worker-list entries that resolve to registered
// in-process decoders instead of shared objects.
const BuiltinPrefix = "builtin:"

var (
	registryMu sync.RWMutex
	registry   = map[string]Decoder{}
)

// Register makes a decoder resolvable as "builtin:<name>". Registering a
// duplicate name panics: the worker list must be unambiguous.
func Register(name string, d Decoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("decoder: duplicate builtin %q", name))
	}
	registry[name] = d
}

// Builtins lists the registered builtin names, sorted.
func Builtins() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load resolves a worker-list entry: "builtin:<name>" through the
// registry, anything else as a shared-object path.
func Load(spec string) (Decoder, error) {
	if name, ok := strings.CutPrefix(spec, BuiltinPrefix); ok {
		registryMu.RLock()
		d := registry[name]
		registryMu.RUnlock()
		if d == nil {
			return nil, fmt.Errorf("no builtin decoder %q", name)
		}
		return d, nil
	}
	return loadPlugin(spec)
}
