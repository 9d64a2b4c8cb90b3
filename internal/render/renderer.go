// Package render produces page content streams and the resource objects
// they refer to.
package render

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/digitorus/pdfreport/internal/pdf"
	"golang.org/x/text/encoding/charmap"
)

// Content accumulates the operators of one content stream together with the
// fonts and XObjects it uses.
type Content struct {
	stream   bytes.Buffer
	fonts    map[string]uint32
	xobjects map[string]uint32
}

// NewContent returns an empty content stream.
func NewContent() *Content {
	return &Content{
		fonts:    make(map[string]uint32),
		xobjects: make(map[string]uint32),
	}
}

// Text shows text with its baseline origin at (x, y) using the font resource
// name bound to fontID.
func (c *Content) Text(name string, fontID uint32, size, x, y float64, text string) {
	c.fonts[name] = fontID
	c.stream.WriteString("BT\n")
	fmt.Fprintf(&c.stream, "%s %s Tf\n", pdf.Name(name), pdf.Number(size))
	fmt.Fprintf(&c.stream, "%s %s Td\n", pdf.Number(x), pdf.Number(y))
	fmt.Fprintf(&c.stream, "%s Tj\n", pdf.HexString(EncodeText(text)))
	c.stream.WriteString("ET\n")
}

// Place draws the XObject id uniformly scaled with its origin at (x, y).
func (c *Content) Place(name string, id uint32, scale, x, y float64) {
	c.Draw(name, id, scale, scale, x, y)
}

// Draw draws the XObject id scaled independently along both axes. Image
// XObjects occupy the unit square, so sx and sy are their size on the page.
func (c *Content) Draw(name string, id uint32, sx, sy, x, y float64) {
	c.xobjects[name] = id
	c.stream.WriteString("q\n")
	fmt.Fprintf(&c.stream, "%s 0 0 %s %s %s cm\n", pdf.Number(sx), pdf.Number(sy), pdf.Number(x), pdf.Number(y))
	fmt.Fprintf(&c.stream, "%s Do\n", pdf.Name(name))
	c.stream.WriteString("Q\n")
}

// Bytes returns the operators written so far.
func (c *Content) Bytes() []byte {
	return c.stream.Bytes()
}

// Resources returns the resource dictionary for the stream.
func (c *Content) Resources() string {
	var buf strings.Builder
	buf.WriteString("<< /ProcSet [/PDF /Text /ImageB /ImageC]")
	writeRefs(&buf, "Font", c.fonts)
	writeRefs(&buf, "XObject", c.xobjects)
	buf.WriteString(" >>")
	return buf.String()
}

func writeRefs(buf *strings.Builder, category string, refs map[string]uint32) {
	if len(refs) == 0 {
		return
	}
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(buf, " %s <<", pdf.Name(category))
	for _, name := range names {
		fmt.Fprintf(buf, " %s %s", pdf.Name(name), pdf.Ref(refs[name]))
	}
	buf.WriteString(" >>")
}

// EncodeText converts text to WinAnsiEncoding bytes, the encoding of every
// font registered by RegisterFont. Runes without a WinAnsi code become '?'.
func EncodeText(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}
