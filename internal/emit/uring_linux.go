//go:build linux && giouring

package emit

import (
	"fmt"
	"io"
	"os"
	"syscall"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

const uringEntries = 8

// uringSink writes the stream to a file through io_uring. The dispatcher
// is the only writer and waits for each completion, so ordering matches a
// plain sequential write; the win is batching buffer flushes past the VFS
// fast path on hosts where the triage stream is the bottleneck.
type uringSink struct {
	ring *giouring.Ring
	f    *os.File
}

// NewUringSink returns a write-through sink over f backed by io_uring.
func NewUringSink(f *os.File) (io.WriteCloser, error) {
	ring, err := giouring.CreateRing(uringEntries)
	if err != nil {
		return nil, fmt.Errorf("create io_uring: %w", err)
	}
	return &uringSink{ring: ring, f: f}, nil
}

func (s *uringSink) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		chunk := p[written:]
		sqe := s.ring.GetSQE()
		if sqe == nil {
			return written, fmt.Errorf("io_uring submission queue exhausted")
		}
		// Offset -1: append at the file's current position, like write(2).
		sqe.PrepareWrite(int(s.f.Fd()), uintptr(unsafe.Pointer(&chunk[0])),
			uint32(len(chunk)), ^uint64(0))

		if _, err := s.ring.SubmitAndWait(1); err != nil {
			return written, fmt.Errorf("io_uring submit: %w", err)
		}
		cqe, err := s.ring.WaitCQE()
		if err != nil {
			return written, fmt.Errorf("io_uring wait: %w", err)
		}
		res := cqe.Res
		s.ring.CQESeen(cqe)
		if res < 0 {
			return written, fmt.Errorf("io_uring write: %w", syscall.Errno(-res))
		}
		written += int(res)
	}
	return written, nil
}

func (s *uringSink) Close() error {
	s.ring.QueueExit()
	return nil
}
