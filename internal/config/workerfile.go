package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/aengelke/mishegos/decoder"
	"github.com/aengelke/mishegos/internal/constants"
)

// ParseWorkerList reads the worker-list file: one decoder per line,
// either a shared-object path or a builtin: entry. Lines starting with #
// and blank lines are skipped. Plug-in paths must be readable now rather
// than failing inside N worker processes later.
func ParseWorkerList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open worker list %s: %w", path, err)
	}
	defer f.Close()

	var sonames []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(sonames) == constants.MaxWorkers {
			return nil, fmt.Errorf("worker list %s exceeds %d workers", path, constants.MaxWorkers)
		}
		if !strings.HasPrefix(line, decoder.BuiltinPrefix) {
			if err := unix.Access(line, unix.R_OK); err != nil {
				return nil, fmt.Errorf("worker %s: %w", line, err)
			}
		}
		sonames = append(sonames, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read worker list %s: %w", path, err)
	}
	if len(sonames) == 0 {
		return nil, fmt.Errorf("worker list %s names no workers", path)
	}
	return sonames, nil
}
