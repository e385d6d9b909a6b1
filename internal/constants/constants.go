// Package constants holds the fixed geometry of the shared-memory
// transport. The values are baked into the mapping layout, so the
// dispatcher and every worker process must agree on them.
package constants

const (
	// NumChunks is the depth of the input ring and of each worker's
	// output ring.
	NumChunks = 16

	// SlotsPerChunk is the number of candidate slots per chunk. A chunk
	// with fewer filled slots signals end of stream.
	SlotsPerChunk = 4096

	// MaxWorkers caps the number of decoder workers per run.
	MaxWorkers = 32

	// SpinIterations is how long a waiter spins on a word before parking
	// in the kernel.
	SpinIterations = 10000
)
