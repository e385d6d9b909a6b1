package mutator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aengelke/mishegos/slot"
)

func TestCreateDefault(t *testing.T) {
	fn, err := Create("")
	require.NoError(t, err)
	var in slot.Input
	require.True(t, fn(&in))
	assert.GreaterOrEqual(t, in.Len, uint8(1))
	assert.LessOrEqual(t, in.Len, uint8(slot.MaxInsnLen))
}

func TestCreateUnknown(t *testing.T) {
	_, err := Create("no-such-mutator")
	assert.Error(t, err)
}

func TestNamesContainBuiltins(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "havoc")
	assert.Contains(t, names, "sliding")
	assert.Contains(t, names, "sweep")
}

func TestHavocBounds(t *testing.T) {
	fn, err := Create("havoc")
	require.NoError(t, err)
	var in slot.Input
	for i := 0; i < 10000; i++ {
		require.True(t, fn(&in))
		require.GreaterOrEqual(t, in.Len, uint8(1))
		require.LessOrEqual(t, in.Len, uint8(slot.MaxInsnLen))
	}
}

func TestSlidingShrinksThenRestarts(t *testing.T) {
	fn, err := Create("sliding")
	require.NoError(t, err)

	var in slot.Input
	require.True(t, fn(&in))
	prev := int(in.Len)
	grewAgain := false
	for i := 0; i < 200; i++ {
		require.True(t, fn(&in))
		n := int(in.Len)
		require.GreaterOrEqual(t, n, 1)
		require.LessOrEqual(t, n, slot.MaxInsnLen)
		// Within one candidate the window shrinks by exactly one byte;
		// a length increase marks the start of the next candidate.
		if n >= prev {
			grewAgain = true
		} else {
			require.Equal(t, prev-1, n)
		}
		prev = n
	}
	assert.True(t, grewAgain, "sliding never synthesized a second candidate")
}

func TestSweepExhausts(t *testing.T) {
	fn, err := Create("sweep")
	require.NoError(t, err)

	var in slot.Input
	count := 0
	for fn(&in) {
		count++
		require.LessOrEqual(t, count, 1000, "sweep did not terminate")
	}
	assert.Equal(t, 512, count)
	// Exhausted mutators stay exhausted.
	assert.False(t, fn(&in))
}

func TestSweepCoversEscapedOpcodes(t *testing.T) {
	fn, err := Create("sweep")
	require.NoError(t, err)

	var in slot.Input
	seen0f := 0
	for fn(&in) {
		if in.Len >= 2 && in.Raw[0] == 0x0f {
			seen0f++
		}
	}
	// All 256 escaped opcodes, plus the plain 0x0f one-byte entry.
	assert.Equal(t, 257, seen0f)
}

func TestLimit(t *testing.T) {
	fn, err := Create("havoc")
	require.NoError(t, err)
	limited := Limit(fn, 3)

	var in slot.Input
	for i := 0; i < 3; i++ {
		assert.True(t, limited(&in))
	}
	assert.False(t, limited(&in))
	assert.False(t, limited(&in))
}
