package slot

import (
	"testing"
	"unsafe"
)

// The slot layouts are shared across processes and written raw to the
// triage stream, so their sizes are load-bearing.
func TestStructSizes(t *testing.T) {
	tests := []struct {
		name     string
		size     uintptr
		expected int
	}{
		{"Input", unsafe.Sizeof(Input{}), 27},
		{"Output", unsafe.Sizeof(Output{}), 520},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if int(tt.size) != tt.expected {
				t.Errorf("%s size = %d, want %d", tt.name, tt.size, tt.expected)
			}
		})
	}
}

func TestResultAtEndOfOutput(t *testing.T) {
	off := unsafe.Offsetof(Output{}.Result)
	if off != OutputHeaderSize {
		t.Errorf("Result offset = %d, want %d", off, OutputHeaderSize)
	}
	if OutputSize-int(off) != MaxDecodeLen {
		t.Errorf("Result does not span the record tail")
	}
}

func TestInputSetClamps(t *testing.T) {
	var in Input
	long := make([]byte, MaxInsnLen+10)
	for i := range long {
		long[i] = byte(i)
	}
	in.Set(long)
	if in.Len != MaxInsnLen {
		t.Errorf("Len = %d, want %d", in.Len, MaxInsnLen)
	}
	if got := in.Bytes(); len(got) != MaxInsnLen || got[25] != 25 {
		t.Errorf("Bytes() = %v", got)
	}
}

func TestOutputResultRoundTrip(t *testing.T) {
	var out Output
	out.SetResult("add eax, ebx")
	if out.Len != 12 {
		t.Errorf("Len = %d, want 12", out.Len)
	}
	if out.ResultString() != "add eax, ebx" {
		t.Errorf("ResultString() = %q", out.ResultString())
	}
}

func TestStatusString(t *testing.T) {
	for st, want := range map[Status]string{
		StatusUnused:     "unused",
		StatusSuccess:    "success",
		StatusFailure:    "failure",
		StatusCrash:      "crash",
		StatusPartial:    "partial",
		StatusWouldBlock: "wouldblock",
		StatusUnknown:    "unknown",
		Status(99):       "invalid",
	} {
		if st.String() != want {
			t.Errorf("Status(%d).String() = %q, want %q", st, st.String(), want)
		}
	}
}
