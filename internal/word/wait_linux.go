//go:build linux

package word

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/aengelke/mishegos/internal/constants"
)

// golang.org/x/sys/unix does not export the futex(2) operation codes, so
// they are given here as the fixed values from linux/include/uapi/linux/futex.h.
const (
	futexWaitOp = 0
	futexWakeOp = 1
)

// WaitUntil blocks until a Load would return target. It spins first; the
// handshake is usually satisfied within a few thousand iterations when
// all lanes are busy, and the spin keeps that hot path syscall-free.
// After the spin budget the caller parks on the futex. FUTEX_WAIT
// re-checks the value in the kernel, so a store between our load and the
// syscall cannot be missed; spurious wakeups just loop.
func (w *Word) WaitUntil(target uint32) {
	spins := 0
	for {
		old := atomic.LoadUint32(&w.val)
		if old == target {
			return
		}
		spins++
		if spins < constants.SpinIterations {
			if spins%128 == 0 {
				runtime.Gosched()
			}
			continue
		}
		atomic.AddUint32(&w.waiters, 1)
		futexWait(&w.val, old)
		atomic.AddUint32(&w.waiters, ^uint32(0))
	}
}

// futexWait parks the calling thread while *addr == old. The futex is
// deliberately not FUTEX_PRIVATE: the word may be shared across
// processes.
func futexWait(addr *uint32, old uint32) {
	// EAGAIN (value changed) and EINTR both return to the caller's
	// re-check loop.
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
		uintptr(futexWaitOp), uintptr(old), 0, 0, 0)
}

func futexWakeAll(addr *uint32) {
	_, _, _ = unix.Syscall6(unix.SYS_FUTEX, uintptr(unsafe.Pointer(addr)),
		uintptr(futexWakeOp), uintptr(int32(^uint32(0)>>1)), 0, 0, 0)
}
