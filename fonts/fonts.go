// Package fonts provides font resources and metrics for generated reports.
//
// Text in a report is laid out with either one of the standard PDF fonts, which
// every reader ships and which need no embedding, or a TrueType font that is
// embedded into the document. Both expose the same Metrics so the composer can
// measure strings for word wrapping.
package fonts

import (
	"golang.org/x/image/font"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/encoding/charmap"
)

// StandardType represents standard PDF fonts that are available in all PDF readers
// without embedding.
type StandardType int

const (
	// Helvetica is the standard sans-serif font.
	Helvetica StandardType = iota
	// HelveticaBold is bold Helvetica.
	HelveticaBold
	// TimesRoman is the standard serif font.
	TimesRoman
	// Courier is the standard monospace font.
	Courier
)

var standardNames = map[StandardType]string{
	Helvetica:     "Helvetica",
	HelveticaBold: "Helvetica-Bold",
	TimesRoman:    "Times-Roman",
	Courier:       "Courier",
}

// Font represents a font resource that can be used for report text.
type Font struct {
	Name     string   // PostScript name of the font
	Data     []byte   // TrueType font data (nil for standard fonts)
	Embedded bool     // Whether the font program is embedded in the PDF
	Metrics  *Metrics // Parsed metrics for text measurement
}

// Standard returns a Font for a standard PDF font (no embedding required).
// Helvetica and Courier carry real glyph widths; the others fall back to an
// average width, which is good enough for wrapping.
func Standard(ft StandardType) *Font {
	f := &Font{Name: standardNames[ft]}
	switch ft {
	case Helvetica:
		f.Metrics = helveticaMetrics
	case Courier:
		f.Metrics = courierMetrics
	}
	return f
}

// TrueType returns an embeddable font for the given TrueType program.
// It fails when the data cannot be parsed, since a report without its base font
// cannot be produced.
func TrueType(name string, data []byte) (*Font, error) {
	m, err := ParseTTFMetrics(data)
	if err != nil {
		return nil, err
	}
	return &Font{Name: name, Data: data, Embedded: true, Metrics: m}, nil
}

// StringWidth returns the width of text in points at the given size.
func (f *Font) StringWidth(text string, size float64) float64 {
	if f == nil {
		return float64(len(text)) * size * 0.5
	}
	return f.Metrics.GetStringWidth(text, size)
}

// Metrics contains parsed font metrics for accurate text measurement.
type Metrics struct {
	UnitsPerEm  int
	GlyphWidths map[rune]int // Advance widths in font units
	font        *sfnt.Font
}

// ParseTTFMetrics parses a TrueType font file and extracts glyph metrics for
// every character of the WinAnsi encoding.
func ParseTTFMetrics(data []byte) (*Metrics, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, err
	}

	unitsPerEm := f.UnitsPerEm()
	glyphWidths := make(map[rune]int)
	var buf sfnt.Buffer

	// Use unitsPerEm as the ppem so advances come back in font units.
	ppem := fixed.Int26_6(unitsPerEm) << 6

	for code := 32; code <= 255; code++ {
		r := charmap.Windows1252.DecodeByte(byte(code))
		idx, err := f.GlyphIndex(&buf, r)
		if err != nil || idx == 0 {
			continue
		}

		advance, err := f.GlyphAdvance(&buf, idx, ppem, font.HintingNone)
		if err != nil {
			continue
		}
		glyphWidths[r] = int(advance >> 6)
	}

	return &Metrics{
		UnitsPerEm:  int(unitsPerEm),
		GlyphWidths: glyphWidths,
		font:        f,
	}, nil
}

// GetStringWidth calculates the width of a string in points at the given font size.
func (m *Metrics) GetStringWidth(text string, fontSize float64) float64 {
	if m == nil || m.UnitsPerEm == 0 {
		return float64(len([]rune(text))) * fontSize * 0.5
	}

	var totalWidth int
	for _, r := range text {
		totalWidth += m.GetGlyphWidth(r)
	}
	return (float64(totalWidth) / float64(m.UnitsPerEm)) * fontSize
}

// GetGlyphWidth returns the width of a single rune in font units.
func (m *Metrics) GetGlyphWidth(r rune) int {
	if m == nil {
		return 0
	}
	if width, ok := m.GlyphWidths[r]; ok {
		return width
	}
	return m.UnitsPerEm / 2
}

// GetWidthsArray returns the /Widths array for a simple font dictionary with
// FirstChar 32 and LastChar 255 under WinAnsiEncoding, scaled to 1000 units per em.
func (m *Metrics) GetWidthsArray() []int {
	widths := make([]int, 256-32)
	if m == nil || m.UnitsPerEm <= 0 {
		for i := range widths {
			widths[i] = 500
		}
		return widths
	}

	scale := 1000.0 / float64(m.UnitsPerEm)
	for code := 32; code < 256; code++ {
		r := charmap.Windows1252.DecodeByte(byte(code))
		widths[code-32] = int(float64(m.GetGlyphWidth(r)) * scale)
	}
	return widths
}
