// Package ring lays out the shared-memory transport between the
// dispatcher and the decoder workers: one input ring written by the
// dispatcher and read by every worker, and one output ring per worker.
// The layout is mapped at possibly different addresses in each process,
// so nothing in it may hold a pointer.
package ring

import (
	"unsafe"

	"github.com/aengelke/mishegos/internal/constants"
	"github.com/aengelke/mishegos/internal/word"
	"github.com/aengelke/mishegos/slot"
)

// InputChunk is one slot of the input ring. Generation is the handshake:
// workers consume the chunk only after it carries the generation they
// expect, and the dispatcher publishes it last, after InputCount and
// RemainingWorkers are in place.
type InputChunk struct {
	Generation       word.Word
	RemainingWorkers word.Word
	InputCount       uint32
	_                [4]byte
	Inputs           [constants.SlotsPerChunk]slot.Input
}

// InputChunkSize is the shared-memory footprint of an InputChunk.
const InputChunkSize = 24 + constants.SlotsPerChunk*slot.InputSize

var _ [InputChunkSize]byte = [unsafe.Sizeof(InputChunk{})]byte{}

// OutputChunk is one slot of a worker's output ring. Remaining counts the
// slots not yet committed; the worker stores it before touching a slot,
// which is what lets the crash monitor identify the offending slot from
// outside the dead process.
type OutputChunk struct {
	Remaining word.Word
	Outputs   [constants.SlotsPerChunk]slot.Output
}

// OutputChunkSize is the shared-memory footprint of an OutputChunk.
const OutputChunkSize = word.Size + constants.SlotsPerChunk*slot.OutputSize

var _ [OutputChunkSize]byte = [unsafe.Sizeof(OutputChunk{})]byte{}

// InputRing and OutputRing are the full per-run ring arrays.
type (
	InputRing  = [constants.NumChunks]InputChunk
	OutputRing = [constants.NumChunks]OutputChunk
)

const (
	inputRingSize  = constants.NumChunks * InputChunkSize
	outputRingSize = constants.NumChunks * OutputChunkSize
)

// ArenaSize is the byte size of the mapping holding the input ring and
// nworkers output rings.
func ArenaSize(nworkers int) int {
	return inputRingSize + nworkers*outputRingSize
}

// Next advances a ring cursor. The generation bumps on wraparound, which
// is what distinguishes successive reuses of the same chunk index.
func Next(idx int, gen uint32) (int, uint32) {
	idx++
	if idx == constants.NumChunks {
		return 0, gen + 1
	}
	return idx, gen
}
