package mishegos

import (
	"github.com/aengelke/mishegos/internal/constants"
	"github.com/aengelke/mishegos/slot"
)

// Re-export constants for public API
const (
	NumChunks     = constants.NumChunks
	SlotsPerChunk = constants.SlotsPerChunk
	MaxWorkers    = constants.MaxWorkers
	MaxInsnLen    = slot.MaxInsnLen
	MaxDecodeLen  = slot.MaxDecodeLen
)

// Convenience aliases so embedders and plug-ins can stay on one import.
type (
	InputSlot  = slot.Input
	OutputSlot = slot.Output
)
