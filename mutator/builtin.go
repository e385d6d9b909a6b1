package mutator

import (
	"math/rand"

	"github.com/aengelke/mishegos/slot"
)

func init() {
	Register("havoc", newHavoc)
	Register("sliding", newSliding)
	Register("sweep", newSweep)
}

// havoc draws fully random candidates: uniform length in 1..=MaxInsnLen,
// uniform bytes. Never exhausts.
func newHavoc() Func {
	r := rand.New(rand.NewSource(seed()))
	return func(in *slot.Input) bool {
		n := 1 + r.Intn(slot.MaxInsnLen)
		in.Len = uint8(n)
		for i := 0; i < n; i++ {
			in.Raw[i] = byte(r.Intn(256))
		}
		return true
	}
}

// x86 legacy prefixes worth mixing into structured candidates.
var legacyPrefixes = []byte{
	0x66, 0x67, 0xf0, 0xf2, 0xf3,
	0x2e, 0x36, 0x3e, 0x26, 0x64, 0x65,
}

// sliding builds a structurally plausible x86-64 encoding (prefixes,
// opcode, ModR/M, SIB, displacement, immediate) and then emits every
// suffix of it, sliding the start offset one byte at a time. Decoders
// disagree most where an instruction is entered mid-encoding. Never
// exhausts; a new candidate is synthesized once a slide completes.
func newSliding() Func {
	r := rand.New(rand.NewSource(seed()))
	var candidate []byte
	off := 0
	return func(in *slot.Input) bool {
		if off >= len(candidate) {
			candidate = structuredCandidate(r)
			off = 0
		}
		in.Set(candidate[off:])
		off++
		return true
	}
}

func structuredCandidate(r *rand.Rand) []byte {
	buf := make([]byte, 0, slot.MaxInsnLen)

	for i := r.Intn(5); i > 0; i-- {
		buf = append(buf, legacyPrefixes[r.Intn(len(legacyPrefixes))])
	}
	if r.Intn(2) == 1 {
		buf = append(buf, byte(0x40+r.Intn(16))) // REX
	}

	switch r.Intn(3) {
	case 0:
		buf = append(buf, byte(r.Intn(256)))
	case 1:
		buf = append(buf, 0x0f, byte(r.Intn(256)))
	default:
		escape := byte(0x38)
		if r.Intn(2) == 1 {
			escape = 0x3a
		}
		buf = append(buf, 0x0f, escape, byte(r.Intn(256)))
	}

	modrm := byte(r.Intn(256))
	buf = append(buf, modrm)
	if modrm&0x07 == 0x04 && modrm>>6 != 3 {
		buf = append(buf, byte(r.Intn(256))) // SIB
	}

	for _, width := range []int{dispWidth(r), immWidth(r)} {
		for i := 0; i < width; i++ {
			buf = append(buf, byte(r.Intn(256)))
		}
	}

	if len(buf) > slot.MaxInsnLen {
		buf = buf[:slot.MaxInsnLen]
	}
	return buf
}

func dispWidth(r *rand.Rand) int {
	return []int{0, 0, 1, 4, 8}[r.Intn(5)]
}

func immWidth(r *rand.Rand) int {
	return []int{0, 0, 1, 2, 4, 8}[r.Intn(6)]
}

// sweep enumerates every one-byte opcode and every 0x0F-escaped two-byte
// opcode, each padded with a ModR/M-shaped tail, then exhausts. Being
// finite, it exercises the engine's drain-and-exit path end to end.
func newSweep() Func {
	next := 0
	return func(in *slot.Input) bool {
		switch {
		case next < 256:
			in.Set([]byte{byte(next), 0x00})
		case next < 512:
			in.Set([]byte{0x0f, byte(next - 256), 0x00})
		default:
			return false
		}
		next++
		return true
	}
}
