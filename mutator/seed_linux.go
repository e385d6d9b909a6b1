//go:build linux

package mutator

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"
)

// seed draws entropy from the kernel, falling back to the clock if
// getrandom is unavailable.
func seed() int64 {
	var buf [8]byte
	if n, err := unix.Getrandom(buf[:], 0); err == nil && n == len(buf) {
		return int64(binary.LittleEndian.Uint64(buf[:]))
	}
	return time.Now().UnixNano()
}
