package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aengelke/mishegos/slot"
)

func outputs(verdicts ...struct {
	st       slot.Status
	ndecoded uint16
}) []*slot.Output {
	outs := make([]*slot.Output, len(verdicts))
	for i, v := range verdicts {
		outs[i] = &slot.Output{Status: v.st, Ndecoded: v.ndecoded}
	}
	return outs
}

type verdict = struct {
	st       slot.Status
	ndecoded uint16
}

func TestResolveNegativeBounds(t *testing.T) {
	c := Config{MinSuccess: 1, MaxSuccess: -2}
	require.NoError(t, c.Resolve(3))
	assert.Equal(t, 1, c.MinSuccess)
	assert.Equal(t, 2, c.MaxSuccess) // -2 with N=3 means N-1

	c = Config{MinSuccess: -1, MaxSuccess: -1}
	require.NoError(t, c.Resolve(4))
	assert.Equal(t, 4, c.MinSuccess)
	assert.Equal(t, 4, c.MaxSuccess)
}

func TestResolveTwiceFails(t *testing.T) {
	c := Default()
	require.NoError(t, c.Resolve(3))
	assert.Error(t, c.Resolve(3))
}

// Default filter: emitted iff 1 <= #success <= N.
func TestDefaultFilterLaw(t *testing.T) {
	c := Config{MinSuccess: 1, MaxSuccess: 3}

	assert.True(t, c.Keep(outputs(
		verdict{slot.StatusSuccess, 1},
		verdict{slot.StatusSuccess, 1},
		verdict{slot.StatusSuccess, 1},
	)), "all-accept must be kept under the default filter")

	assert.False(t, c.Keep(outputs(
		verdict{slot.StatusFailure, 0},
		verdict{slot.StatusFailure, 0},
		verdict{slot.StatusFailure, 0},
	)), "all-reject must be dropped")
}

// Filter 1:N-1: emitted iff at least one accepted and at least one did not.
func TestSplitVerdictLaw(t *testing.T) {
	c := Config{MinSuccess: 1, MaxSuccess: -2}
	require.NoError(t, c.Resolve(3))

	assert.True(t, c.Keep(outputs(
		verdict{slot.StatusSuccess, 2},
		verdict{slot.StatusFailure, 0},
		verdict{slot.StatusSuccess, 2},
	)))
	assert.False(t, c.Keep(outputs(
		verdict{slot.StatusSuccess, 2},
		verdict{slot.StatusSuccess, 2},
		verdict{slot.StatusSuccess, 2},
	)), "unanimous accept is outside 1:N-1")
	assert.False(t, c.Keep(outputs(
		verdict{slot.StatusFailure, 0},
		verdict{slot.StatusFailure, 0},
		verdict{slot.StatusFailure, 0},
	)))
}

// Empty success range plus -n: emitted iff >=2 successes with distinct
// ndecoded.
func TestNdecodedOnlyLaw(t *testing.T) {
	c := Config{MinSuccess: 1, MaxSuccess: 0, NdecodedSame: true}

	assert.True(t, c.Keep(outputs(
		verdict{slot.StatusSuccess, 1},
		verdict{slot.StatusSuccess, 1},
		verdict{slot.StatusSuccess, 2},
	)), "distinct lengths must be kept")

	assert.False(t, c.Keep(outputs(
		verdict{slot.StatusSuccess, 1},
		verdict{slot.StatusSuccess, 1},
		verdict{slot.StatusSuccess, 1},
	)), "agreeing lengths fall to the empty success range")

	assert.False(t, c.Keep(outputs(
		verdict{slot.StatusSuccess, 1},
		verdict{slot.StatusFailure, 0},
		verdict{slot.StatusFailure, 0},
	)), "a single success cannot disagree with itself")
}

func TestNonSuccessStatusesDoNotCount(t *testing.T) {
	c := Config{MinSuccess: 2, MaxSuccess: 3}
	assert.False(t, c.Keep(outputs(
		verdict{slot.StatusSuccess, 1},
		verdict{slot.StatusCrash, 0},
		verdict{slot.StatusPartial, 1},
	)))
}

func TestCrashWithDisagreementKept(t *testing.T) {
	c := Config{MinSuccess: 1, MaxSuccess: 3}
	assert.True(t, c.Keep(outputs(
		verdict{slot.StatusSuccess, 1},
		verdict{slot.StatusCrash, 0},
		verdict{slot.StatusSuccess, 1},
	)))
}
