// Package emit serializes surviving candidates to the binary triage
// stream. The format is a little-endian concatenation of records with
// implicit boundaries:
//
//	nworkers:u32 | input(27B) | { name_len:u64 | name | status:u32
//	ndecoded:u16 len:u16 | result[len] } x nworkers
//
// The stream is consumed offline; optional compression trades dispatcher
// CPU for triage-archive size.
package emit

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/aengelke/mishegos/slot"
)

// Compression selects the stream codec.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// ParseCompression maps a user-supplied codec name.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "gzip":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression %q (want gzip or zstd)", s)
	}
}

// Entry is one worker's contribution to a record.
type Entry struct {
	Name   string
	Output *slot.Output
}

const defaultBufferSize = 1 << 16

// Options configures a Writer.
type Options struct {
	Compression Compression
	BufferSize  int
}

// Writer appends records to the triage stream.
type Writer struct {
	buf     *bufio.Writer
	comp    io.Closer // compression layer, nil for raw streams
	scratch []byte
}

// NewWriter builds the write chain: records -> buffer -> codec -> w.
func NewWriter(w io.Writer, opts Options) (*Writer, error) {
	size := opts.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}

	out := w
	var comp io.Closer
	switch opts.Compression {
	case CompressionNone:
	case CompressionGzip:
		gz := pgzip.NewWriter(w)
		out, comp = gz, gz
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		out, comp = zw, zw
	default:
		return nil, fmt.Errorf("unknown compression %q", opts.Compression)
	}

	return &Writer{buf: bufio.NewWriterSize(out, size), comp: comp}, nil
}

// WriteRecord appends one record. entries must hold one entry per worker,
// in worker order.
func (w *Writer) WriteRecord(input *slot.Input, entries []Entry) error {
	b := w.scratch[:0]

	b = binary.LittleEndian.AppendUint32(b, uint32(len(entries)))
	b = appendInput(b, input)
	for i := range entries {
		b = binary.LittleEndian.AppendUint64(b, uint64(len(entries[i].Name)))
		b = append(b, entries[i].Name...)
		b = appendOutput(b, entries[i].Output)
	}
	w.scratch = b

	_, err := w.buf.Write(b)
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// appendInput serializes the full fixed-width input record.
func appendInput(b []byte, in *slot.Input) []byte {
	b = append(b, in.Len)
	return append(b, in.Raw[:]...)
}

// appendOutput serializes the fixed header plus exactly Len result bytes;
// the unused tail of the result buffer never reaches the stream.
func appendOutput(b []byte, out *slot.Output) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(out.Status))
	b = binary.LittleEndian.AppendUint16(b, out.Ndecoded)
	b = binary.LittleEndian.AppendUint16(b, out.Len)
	n := out.Len
	if n > slot.MaxDecodeLen {
		n = slot.MaxDecodeLen
	}
	return append(b, out.Result[:n]...)
}

// Flush drains buffered records to the underlying writer.
func (w *Writer) Flush() error {
	return w.buf.Flush()
}

// Close flushes and finalizes the codec layer. It does not close the
// underlying destination.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if w.comp != nil {
		return w.comp.Close()
	}
	return nil
}
