package emit

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aengelke/mishegos/slot"
)

func sampleRecord() (*slot.Input, []Entry) {
	var in slot.Input
	in.Set([]byte{0x48, 0x01, 0xd8})

	a := &slot.Output{Status: slot.StatusSuccess, Ndecoded: 3}
	a.SetResult("add rax, rbx")
	b := &slot.Output{Status: slot.StatusFailure}

	return &in, []Entry{{Name: "dec-a", Output: a}, {Name: "dec-b", Output: b}}
}

func TestRecordLayout(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Options{})
	require.NoError(t, err)

	in, entries := sampleRecord()
	require.NoError(t, w.WriteRecord(in, entries))
	require.NoError(t, w.Close())

	raw := buf.Bytes()

	// nworkers
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(raw[0:4]))
	raw = raw[4:]

	// full fixed-width input record
	require.Equal(t, byte(3), raw[0])
	assert.Equal(t, []byte{0x48, 0x01, 0xd8}, raw[1:4])
	raw = raw[slot.InputSize:]

	// first worker: name
	require.Equal(t, uint64(5), binary.LittleEndian.Uint64(raw[0:8]))
	assert.Equal(t, "dec-a", string(raw[8:13]))
	raw = raw[13:]

	// first worker: truncated output record
	assert.Equal(t, uint32(slot.StatusSuccess), binary.LittleEndian.Uint32(raw[0:4]))
	assert.Equal(t, uint16(3), binary.LittleEndian.Uint16(raw[4:6]))
	resultLen := binary.LittleEndian.Uint16(raw[6:8])
	assert.Equal(t, uint16(12), resultLen)
	assert.Equal(t, "add rax, rbx", string(raw[8:8+resultLen]))
	raw = raw[8+int(resultLen):]

	// second worker: failure carries no result bytes at all
	require.Equal(t, uint64(5), binary.LittleEndian.Uint64(raw[0:8]))
	assert.Equal(t, "dec-b", string(raw[8:13]))
	raw = raw[13:]
	assert.Equal(t, uint32(slot.StatusFailure), binary.LittleEndian.Uint32(raw[0:4]))
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(raw[6:8]))
	assert.Len(t, raw, slot.OutputHeaderSize, "record must end after the header")
}

func TestRecordSizesBounded(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Options{})
	require.NoError(t, err)

	var in slot.Input
	in.Set(bytes.Repeat([]byte{0xcc}, slot.MaxInsnLen))
	out := &slot.Output{Status: slot.StatusSuccess, Ndecoded: 1}
	out.SetResult(string(bytes.Repeat([]byte{'x'}, slot.MaxDecodeLen+50)))
	require.LessOrEqual(t, out.Len, uint16(slot.MaxDecodeLen))

	require.NoError(t, w.WriteRecord(&in, []Entry{{Name: "d", Output: out}}))
	require.NoError(t, w.Close())

	want := 4 + slot.InputSize + 8 + 1 + slot.OutputHeaderSize + slot.MaxDecodeLen
	assert.Equal(t, want, buf.Len())
}

func TestMultipleRecordsConcatenate(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Options{})
	require.NoError(t, err)

	in, entries := sampleRecord()
	require.NoError(t, w.WriteRecord(in, entries))
	one := func() int {
		require.NoError(t, w.Flush())
		return buf.Len()
	}()
	require.NoError(t, w.WriteRecord(in, entries))
	require.NoError(t, w.Close())

	assert.Equal(t, one*2, buf.Len())
}

func TestGzipRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Options{Compression: CompressionGzip})
	require.NoError(t, err)

	in, entries := sampleRecord()
	require.NoError(t, w.WriteRecord(in, entries))
	require.NoError(t, w.Close())

	r, err := pgzip.NewReader(&buf)
	require.NoError(t, err)
	plain, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(plain[0:4]))
}

func TestZstdRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Options{Compression: CompressionZstd})
	require.NoError(t, err)

	in, entries := sampleRecord()
	require.NoError(t, w.WriteRecord(in, entries))
	require.NoError(t, w.Close())

	r, err := zstd.NewReader(&buf)
	require.NoError(t, err)
	defer r.Close()
	plain, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(plain[0:4]))
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{
		"":     CompressionNone,
		"none": CompressionNone,
		"gzip": CompressionGzip,
		"zstd": CompressionZstd,
	} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("lz4")
	assert.Error(t, err)
}
