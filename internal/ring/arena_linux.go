//go:build linux

package ring

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Arena is the single shared mapping backing all rings. In thread mode it
// is an anonymous shared mapping; in process mode it is backed by a memfd
// so worker processes can map the identical layout from the inherited
// descriptor.
type Arena struct {
	data     []byte
	backing  *os.File
	nworkers int
}

// NewAnon maps an anonymous shared arena. Used in thread mode, where the
// mapping never has to cross an exec boundary.
func NewAnon(nworkers int) (*Arena, error) {
	data, err := unix.Mmap(-1, 0, ArenaSize(nworkers),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("mmap anonymous arena: %w", err)
	}
	return &Arena{data: data, nworkers: nworkers}, nil
}

// NewMemfd creates a memfd-backed arena. The file is what carries the
// shared pages into re-exec'd worker processes.
func NewMemfd(nworkers int) (*Arena, error) {
	fd, err := unix.MemfdCreate("mishegos-rings", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	f := os.NewFile(uintptr(fd), "mishegos-rings")
	size := ArenaSize(nworkers)
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate arena to %d: %w", size, err)
	}
	data, err := unix.Mmap(fd, 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap arena: %w", err)
	}
	return &Arena{data: data, backing: f, nworkers: nworkers}, nil
}

// FromFd maps an arena from a descriptor inherited from the dispatcher.
// Called in worker processes; nworkers must match the parent's value or
// the layout offsets diverge.
func FromFd(fd int, nworkers int) (*Arena, error) {
	data, err := unix.Mmap(fd, 0, ArenaSize(nworkers),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap inherited arena: %w", err)
	}
	return &Arena{data: data, nworkers: nworkers}, nil
}

// File returns the memfd backing the arena, or nil for anonymous arenas.
func (a *Arena) File() *os.File {
	return a.backing
}

// InputRing returns the dispatcher-written, all-workers-read input ring.
func (a *Arena) InputRing() *InputRing {
	return (*InputRing)(unsafe.Pointer(&a.data[0]))
}

// OutputRing returns worker w's output ring.
func (a *Arena) OutputRing(w int) *OutputRing {
	if w < 0 || w >= a.nworkers {
		panic(fmt.Sprintf("output ring index %d out of range (nworkers=%d)", w, a.nworkers))
	}
	off := inputRingSize + w*outputRingSize
	return (*OutputRing)(unsafe.Pointer(&a.data[off]))
}

// Close unmaps the arena and closes the backing file, if any. Rings must
// not be touched afterwards.
func (a *Arena) Close() error {
	var err error
	if a.data != nil {
		err = unix.Munmap(a.data)
		a.data = nil
	}
	if a.backing != nil {
		if cerr := a.backing.Close(); err == nil {
			err = cerr
		}
		a.backing = nil
	}
	return err
}
