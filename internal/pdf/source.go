// Package pdf reads foreign PDF files and writes new ones at the object level.
//
// Reading is done with github.com/digitorus/pdf. Writing is a small object
// store with a classic xref table; objects copied from a Source keep their
// stream data byte-for-byte, filters included.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	pdflib "github.com/digitorus/pdf"
)

var (
	// ErrMalformed is returned for input the reader cannot make sense of.
	ErrMalformed = errors.New("malformed PDF")
	// ErrEncrypted is returned for encrypted input; its streams cannot be copied as-is.
	ErrEncrypted = errors.New("encrypted PDF")
	// ErrNoPages is returned for documents without a single page.
	ErrNoPages = errors.New("PDF has no pages")
)

// maxInheritDepth bounds walks up the page tree.
const maxInheritDepth = 32

// Letter is the page size assumed when a page has no usable MediaBox.
var Letter = Box{0, 0, 612, 792}

// Box is a rectangle in default user space.
type Box struct {
	LLX, LLY, URX, URY float64
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return b.URX - b.LLX }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return b.URY - b.LLY }

// Source is a parsed foreign PDF file.
type Source struct {
	data    []byte
	rdr     *pdflib.Reader
	offsets map[objKey]int
}

// Open parses data as a PDF file.
func Open(data []byte) (src *Source, err error) {
	defer catch(&err)

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	rdr, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !rdr.Trailer().Key("Encrypt").IsNull() {
		return nil, ErrEncrypted
	}
	if rdr.NumPage() < 1 {
		return nil, ErrNoPages
	}
	return &Source{data: data, rdr: rdr}, nil
}

// Reader returns the underlying low-level reader.
func (s *Source) Reader() *pdflib.Reader {
	return s.rdr
}

// NumPage returns the number of pages.
func (s *Source) NumPage() int {
	return s.rdr.NumPage()
}

// Page returns the page dictionary of the 1-based page number.
func (s *Source) Page(num int) (page pdflib.Value, err error) {
	defer catch(&err)

	if num < 1 || num > s.rdr.NumPage() {
		return pdflib.Value{}, fmt.Errorf("page %d out of range (1-%d)", num, s.rdr.NumPage())
	}
	page = s.rdr.Page(num).V
	if page.IsNull() {
		return pdflib.Value{}, fmt.Errorf("%w: page %d not found", ErrMalformed, num)
	}
	return page, nil
}

// PageBox returns the visible area of a page: its CropBox when present,
// otherwise its MediaBox. Both are inheritable.
func PageBox(page pdflib.Value) Box {
	if box, ok := parseBox(inherited(page, "CropBox")); ok {
		if media, ok := parseBox(inherited(page, "MediaBox")); ok {
			return intersect(box, media)
		}
		return box
	}
	if box, ok := parseBox(inherited(page, "MediaBox")); ok {
		return box
	}
	return Letter
}

// PageRotation returns the inheritable /Rotate of a page normalised to 0, 90, 180 or 270.
func PageRotation(page pdflib.Value) int {
	rot := int(inherited(page, "Rotate").Int64()) % 360
	if rot < 0 {
		rot += 360
	}
	return rot - rot%90
}

func inherited(page pdflib.Value, key string) pdflib.Value {
	v := page
	for i := 0; i < maxInheritDepth && !v.IsNull(); i++ {
		if x := v.Key(key); !x.IsNull() {
			return x
		}
		v = v.Key("Parent")
	}
	return pdflib.Value{}
}

func parseBox(v pdflib.Value) (Box, bool) {
	if v.Kind() != pdflib.Array || v.Len() < 4 {
		return Box{}, false
	}
	var n [4]float64
	for i := range n {
		n[i] = v.Index(i).Float64()
	}
	b := Box{
		LLX: min(n[0], n[2]), LLY: min(n[1], n[3]),
		URX: max(n[0], n[2]), URY: max(n[1], n[3]),
	}
	if b.Width() <= 0 || b.Height() <= 0 {
		return Box{}, false
	}
	return b, true
}

func intersect(a, b Box) Box {
	r := Box{
		LLX: max(a.LLX, b.LLX), LLY: max(a.LLY, b.LLY),
		URX: min(a.URX, b.URX), URY: min(a.URY, b.URY),
	}
	if r.Width() <= 0 || r.Height() <= 0 {
		return b
	}
	return r
}

// rawStream returns the encoded bytes of a stream object exactly as stored.
func (s *Source) rawStream(v pdflib.Value) ([]byte, error) {
	if s.offsets == nil {
		s.offsets = scanObjects(s.data)
	}
	ptr := v.GetPtr()
	off, ok := s.offsets[objKey{uint32(ptr.GetID()), uint16(ptr.GetGen())}]
	if !ok {
		return nil, errStreamNotFound
	}
	return rawStreamAt(s.data, off, v.Key("Length").Int64())
}

// decodedStream returns the data of a stream with its filters applied.
func (s *Source) decodedStream(v pdflib.Value) (data []byte, err error) {
	defer catch(&err)

	rc := v.Reader()
	defer rc.Close()
	return io.ReadAll(rc)
}

// catch converts a panic raised by the reader on broken input into ErrMalformed.
func catch(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrMalformed, r)
	}
}
