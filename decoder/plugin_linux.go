//go:build linux

package decoder

import (
	"fmt"
	"plugin"

	"github.com/aengelke/mishegos/slot"
)

// Plug-in symbol names. A decoder shared object is built with
// `go build -buildmode=plugin` and exports:
//
//	var WorkerName string                     (mandatory)
//	func TryDecode(*slot.Output, []byte)      (mandatory)
//	func WorkerCtor() error                   (optional)
//	func WorkerDtor()                         (optional)
const (
	symName   = "WorkerName"
	symDecode = "TryDecode"
	symCtor   = "WorkerCtor"
	symDtor   = "WorkerDtor"
)

type pluginDecoder struct {
	name   string
	decode func(*slot.Output, []byte)
	ctor   func() error
	dtor   func()
}

func (p *pluginDecoder) Name() string { return p.name }

func (p *pluginDecoder) TryDecode(out *slot.Output, raw []byte) { p.decode(out, raw) }

func (p *pluginDecoder) Construct() error {
	if p.ctor == nil {
		return nil
	}
	return p.ctor()
}

func (p *pluginDecoder) Destruct() {
	if p.dtor != nil {
		p.dtor()
	}
}

func loadPlugin(soname string) (Decoder, error) {
	so, err := plugin.Open(soname)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", soname, err)
	}

	nameSym, err := so.Lookup(symName)
	if err != nil {
		return nil, fmt.Errorf("%s: missing symbol %s: %w", soname, symName, err)
	}
	name, ok := nameSym.(*string)
	if !ok {
		return nil, fmt.Errorf("%s: %s has type %T, want *string", soname, symName, nameSym)
	}

	decodeSym, err := so.Lookup(symDecode)
	if err != nil {
		return nil, fmt.Errorf("%s: missing symbol %s: %w", soname, symDecode, err)
	}
	decode, ok := decodeSym.(func(*slot.Output, []byte))
	if !ok {
		return nil, fmt.Errorf("%s: %s has type %T, want func(*slot.Output, []byte)",
			soname, symDecode, decodeSym)
	}

	d := &pluginDecoder{name: *name, decode: decode}

	// Constructor and destructor are optional; a failed lookup just means
	// the plug-in does not define them.
	if sym, err := so.Lookup(symCtor); err == nil {
		if ctor, ok := sym.(func() error); ok {
			d.ctor = ctor
		} else {
			return nil, fmt.Errorf("%s: %s has type %T, want func() error", soname, symCtor, sym)
		}
	}
	if sym, err := so.Lookup(symDtor); err == nil {
		if dtor, ok := sym.(func()); ok {
			d.dtor = dtor
		} else {
			return nil, fmt.Errorf("%s: %s has type %T, want func()", soname, symDtor, sym)
		}
	}

	return d, nil
}
