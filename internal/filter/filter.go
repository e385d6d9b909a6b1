// Package filter decides which candidates reach the triage stream. A
// candidate survives when the decoders disagree in a way the configured
// predicates consider interesting.
package filter

import (
	"fmt"

	"github.com/aengelke/mishegos/internal/constants"
	"github.com/aengelke/mishegos/slot"
)

// Config holds the retention predicates. Negative bounds are placeholders
// relative to the worker count and must be resolved once workers are
// enumerated: -1 means N, -2 means N-1.
type Config struct {
	MinSuccess int
	MaxSuccess int

	// NdecodedSame keeps candidates whose successful decoders disagree
	// on the number of bytes consumed, regardless of the success bounds.
	NdecodedSame bool

	resolved bool
}

// Default keeps every candidate at least one decoder accepted: all-reject
// candidates are noise, everything else is potentially a disagreement.
func Default() Config {
	return Config{MinSuccess: 1, MaxSuccess: constants.MaxWorkers}
}

// Resolve rebases negative bounds against the actual worker count.
// Called exactly once, after the worker list is read.
func (c *Config) Resolve(nworkers int) error {
	if c.resolved {
		return fmt.Errorf("filter bounds resolved twice")
	}
	if c.MinSuccess < 0 {
		c.MinSuccess += nworkers + 1
	}
	if c.MaxSuccess < 0 {
		c.MaxSuccess += nworkers + 1
	}
	c.resolved = true
	return nil
}

// Keep reports whether the candidate behind these per-worker outputs
// should be emitted.
func (c *Config) Keep(outputs []*slot.Output) bool {
	numSuccess := 0
	ndecodedSame := true
	lastNdecoded := -1
	for _, out := range outputs {
		if out.Status != slot.StatusSuccess {
			continue
		}
		numSuccess++
		if lastNdecoded == -1 {
			lastNdecoded = int(out.Ndecoded)
		} else if lastNdecoded != int(out.Ndecoded) {
			ndecodedSame = false
		}
	}

	if numSuccess >= c.MinSuccess && numSuccess <= c.MaxSuccess {
		return true
	}
	return c.NdecodedSame && !ndecodedSame
}
