//go:build !giouring || !linux

package emit

import (
	"fmt"
	"io"
	"os"
)

// NewUringSink is available when built with -tags giouring.
func NewUringSink(f *os.File) (io.WriteCloser, error) {
	return nil, fmt.Errorf("io_uring output not enabled; build with -tags giouring")
}
