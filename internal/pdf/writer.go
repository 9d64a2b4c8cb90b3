package pdf

import (
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/mattetti/filebuffer"
)

// ErrUnwritten is returned when an allocated object number was never given a body.
var ErrUnwritten = errors.New("allocated object was never written")

// Writer collects the indirect objects of a new PDF file and serialises them
// with a classic cross-reference table. Object numbers are allocated
// sequentially starting at 1.
type Writer struct {
	// CompressLevel is the zlib level applied by AddStream.
	// zlib.NoCompression stores streams unfiltered.
	CompressLevel int

	objects map[uint32][]byte
	next    uint32
}

// NewWriter returns an empty writer using zlib.DefaultCompression.
func NewWriter() *Writer {
	return &Writer{
		CompressLevel: zlib.DefaultCompression,
		objects:       make(map[uint32][]byte),
		next:          1,
	}
}

// Alloc reserves an object number whose body is supplied later with Set.
func (w *Writer) Alloc() uint32 {
	id := w.next
	w.next++
	return id
}

// Set stores the body of a previously allocated object.
func (w *Writer) Set(id uint32, body []byte) {
	w.objects[id] = bytes.TrimSpace(body)
}

// AddObject allocates a new object with the given body and returns its number.
func (w *Writer) AddObject(body []byte) uint32 {
	id := w.Alloc()
	w.Set(id, body)
	return id
}

// AddStream adds a stream object. dict holds the dictionary entries without
// the enclosing << >> and without /Length or /Filter; the data is compressed
// according to CompressLevel.
func (w *Writer) AddStream(dict string, data []byte) (uint32, error) {
	id := w.Alloc()
	if err := w.SetStream(id, dict, data); err != nil {
		return 0, err
	}
	return id, nil
}

// SetStream is AddStream for an already allocated object number.
func (w *Writer) SetStream(id uint32, dict string, data []byte) error {
	filter := ""
	if w.CompressLevel != zlib.NoCompression {
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, w.CompressLevel)
		if err != nil {
			return fmt.Errorf("failed to create zlib writer: %w", err)
		}
		if _, err := zw.Write(data); err != nil {
			return fmt.Errorf("failed to compress stream: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to compress stream: %w", err)
		}
		data = buf.Bytes()
		filter = " /Filter /FlateDecode"
	}
	w.SetRawStream(id, dict+filter, data)
	return nil
}

// SetRawStream stores a stream whose data is already encoded as described by
// the filter entries in dict.
func (w *Writer) SetRawStream(id uint32, dict string, data []byte) {
	var buf bytes.Buffer
	buf.Grow(len(dict) + len(data) + 64)
	fmt.Fprintf(&buf, "<< %s /Length %d >>\nstream\n", dict, len(data))
	buf.Write(data)
	buf.WriteString("\nendstream")
	w.objects[id] = buf.Bytes()
}

// Mark returns a checkpoint for Rollback.
func (w *Writer) Mark() uint32 {
	return w.next
}

// Rollback discards every object allocated after mark.
func (w *Writer) Rollback(mark uint32) {
	for id := mark; id < w.next; id++ {
		delete(w.objects, id)
	}
	w.next = mark
}

// Len returns the number of allocated objects.
func (w *Writer) Len() int {
	return int(w.next - 1)
}

// WriteTo serialises all objects followed by the xref table and trailer.
// root is the catalog, info the document information dictionary (0 if absent).
// The file is assembled in a seekable buffer: object offsets are its write
// positions and the file ID hashes everything before the trailer.
func (w *Writer) WriteTo(output io.Writer, root, info uint32) (int64, error) {
	buf := filebuffer.New([]byte{})

	// Binary comment so transfer tools treat the file as binary.
	if _, err := buf.Write([]byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")); err != nil {
		return 0, err
	}

	offsets := make([]int64, w.next)
	for id := uint32(1); id < w.next; id++ {
		body, ok := w.objects[id]
		if !ok {
			return 0, fmt.Errorf("%w: object %d", ErrUnwritten, id)
		}
		pos, err := buf.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, err
		}
		offsets[id] = pos
		if _, err := fmt.Fprintf(buf, "%d 0 obj\n", id); err != nil {
			return 0, fmt.Errorf("failed to write object %d: %w", id, err)
		}
		if _, err := buf.Write(body); err != nil {
			return 0, fmt.Errorf("failed to write object %d: %w", id, err)
		}
		if _, err := buf.Write([]byte("\nendobj\n")); err != nil {
			return 0, fmt.Errorf("failed to write object %d: %w", id, err)
		}
	}

	xrefStart, err := buf.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if err := w.writeXrefTable(buf, offsets); err != nil {
		return 0, err
	}
	trailerStart, err := buf.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}

	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(buf, 0, trailerStart)); err != nil {
		return 0, fmt.Errorf("failed to hash file: %w", err)
	}
	id := hex.EncodeToString(h.Sum(nil)[:16])
	if _, err := fmt.Fprintf(buf, "trailer\n<< /Size %d /Root %s", w.next, Ref(root)); err != nil {
		return 0, err
	}
	if info != 0 {
		if _, err := fmt.Fprintf(buf, " /Info %s", Ref(info)); err != nil {
			return 0, err
		}
	}
	if _, err := fmt.Fprintf(buf, " /ID [<%s><%s>] >>\nstartxref\n%d\n%%%%EOF\n", id, id, xrefStart); err != nil {
		return 0, err
	}

	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return io.Copy(output, buf)
}

func (w *Writer) writeXrefTable(out io.Writer, offsets []int64) error {
	if _, err := fmt.Fprintf(out, "xref\n0 %d\n", w.next); err != nil {
		return fmt.Errorf("failed to write xref header: %w", err)
	}
	if _, err := io.WriteString(out, "0000000000 65535 f\r\n"); err != nil {
		return fmt.Errorf("failed to write xref entry: %w", err)
	}
	for id := uint32(1); id < w.next; id++ {
		if _, err := fmt.Fprintf(out, "%010d 00000 n\r\n", offsets[id]); err != nil {
			return fmt.Errorf("failed to write xref entry: %w", err)
		}
	}
	return nil
}
