package pdfreport

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/digitorus/pdfreport/fonts"
)

// Font sizes and line advances of the composer primitives.
const (
	titleSize     = 18.0
	titleAdvance  = 30.0
	subtitleSize  = 14.0
	subtitleAdv   = 22.0
	ruleSize      = 10.0
	ruleAdvance   = 20.0
	bodySize      = 12.0
	fieldValueOff = 110.0
	fieldGap      = 4.0

	ruleWidth    = 90
	bulletPrefix = "• "
	emptyValue   = "-"
)

// Composer draws report content onto a Document and paginates automatically.
// All text is sanitised before it is drawn. A Composer is not safe for
// concurrent use.
type Composer struct {
	doc    *Document
	cursor *Cursor
	source AttachmentSource
	logger *slog.Logger
}

// NewComposer returns a composer that writes onto doc starting at its blank
// base page.
func NewComposer(doc *Document) *Composer {
	return &Composer{
		doc:    doc,
		cursor: newCursor(doc),
		logger: slog.New(slog.DiscardHandler),
	}
}

// WithSource sets the source used to resolve attachment references.
func (c *Composer) WithSource(src AttachmentSource) *Composer {
	c.source = src
	return c
}

// WithLogger sets the logger for skipped attachments.
func (c *Composer) WithLogger(logger *slog.Logger) *Composer {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Logger returns the composer's logger, which render routines use for
// skipped attachments.
func (c *Composer) Logger() *slog.Logger {
	return c.logger
}

// Document returns the document being composed.
func (c *Composer) Document() *Document {
	return c.doc
}

// Cursor returns the layout cursor.
func (c *Composer) Cursor() *Cursor {
	return c.cursor
}

// PageCount returns the number of pages in the document.
func (c *Composer) PageCount() int {
	return c.doc.PageCount()
}

// Title draws a section header.
func (c *Composer) Title(text string) {
	c.block(SideMargin, singleLine(text), titleSize, titleAdvance)
}

// Subtitle draws a sub-section header.
func (c *Composer) Subtitle(text string) {
	c.block(SideMargin, singleLine(text), subtitleSize, subtitleAdv)
}

// Line draws a dashed separator rule.
func (c *Composer) Line() {
	if c.doc.closed {
		return
	}
	c.draw(SideMargin, strings.Repeat("-", ruleWidth), ruleSize, ruleAdvance)
}

// Field draws a label and its value on one row, the value 110pt right of the
// label. An empty value is shown as "-".
func (c *Composer) Field(label, value string) {
	if c.doc.closed {
		return
	}
	label = singleLine(label)
	value = singleLine(value)
	if strings.TrimSpace(value) == "" {
		value = emptyValue
	}

	labels := c.wrap(label, bodySize, fieldValueOff-fieldGap)
	values := c.wrap(value, bodySize, ContentWidth-fieldValueOff)
	for i := 0; i < max(len(labels), len(values)); i++ {
		c.cursor.EnsureSpace(LineHeight)
		if i < len(labels) {
			c.put(SideMargin, labels[i], bodySize)
		}
		if i < len(values) {
			c.put(SideMargin+fieldValueOff, values[i], bodySize)
		}
		c.cursor.Advance(LineHeight)
	}
}

// Paragraph draws text split on newlines, each line checked for space and
// wrapped at the right margin. Empty lines advance without drawing.
func (c *Composer) Paragraph(text string) {
	if c.doc.closed {
		return
	}
	for _, line := range strings.Split(Sanitize(text), "\n") {
		for _, part := range c.wrap(line, bodySize, ContentWidth) {
			c.draw(SideMargin, part, bodySize, LineHeight)
		}
	}
}

// List draws each item as a bulleted line. Wrapped items continue aligned
// with the text after the bullet.
func (c *Composer) List(items []string) {
	if c.doc.closed {
		return
	}
	indent := c.doc.font.StringWidth(bulletPrefix, bodySize)
	for _, item := range items {
		lines := c.wrap(singleLine(item), bodySize, ContentWidth-indent)
		for i, line := range lines {
			if i == 0 {
				c.draw(SideMargin, bulletPrefix+line, bodySize, LineHeight)
				continue
			}
			c.draw(SideMargin+indent, line, bodySize, LineHeight)
		}
	}
}

// Spacer advances the cursor by height points without drawing.
func (c *Composer) Spacer(height float64) {
	if c.doc.closed || height <= 0 {
		return
	}
	c.cursor.Advance(min(height, PageHeight-TopMargin-BottomMargin))
}

// block draws wrapped single-line text.
func (c *Composer) block(x float64, text string, size, advance float64) {
	if c.doc.closed {
		return
	}
	for _, line := range c.wrap(text, size, ContentWidth) {
		c.draw(x, line, size, advance)
	}
}

// draw writes one line at the cursor and advances past it.
func (c *Composer) draw(x float64, text string, size, advance float64) {
	c.cursor.EnsureSpace(advance)
	c.put(x, text, size)
	c.cursor.Advance(advance)
}

func (c *Composer) put(x float64, text string, size float64) {
	if text == "" {
		return
	}
	c.cursor.page.Ops = append(c.cursor.page.Ops, TextOp{Text: text, X: x, Y: c.cursor.y, FontSize: size})
}

func (c *Composer) wrap(text string, size, width float64) []string {
	return wrap(c.doc.font, text, size, width)
}

// singleLine sanitises text and joins its lines with spaces.
func singleLine(text string) string {
	return strings.ReplaceAll(Sanitize(text), "\n", " ")
}

// wrap breaks text into lines no wider than width, preferring spaces and
// splitting words that are too long on their own.
func wrap(f *fonts.Font, text string, size, width float64) []string {
	if f.StringWidth(text, size) <= width {
		return []string{text}
	}

	var lines []string
	line := ""
	for _, word := range strings.Split(text, " ") {
		for f.StringWidth(word, size) > width {
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			n := fit(f, word, size, width)
			lines = append(lines, word[:n])
			word = word[n:]
		}

		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if f.StringWidth(candidate, size) <= width {
			line = candidate
			continue
		}
		lines = append(lines, line)
		line = word
	}
	if line != "" || len(lines) == 0 {
		lines = append(lines, line)
	}
	return lines
}

// fit returns the byte length of the longest prefix of s no wider than width,
// but at least one rune.
func fit(f *fonts.Font, s string, size, width float64) int {
	n := 0
	for n < len(s) {
		_, sz := utf8.DecodeRuneInString(s[n:])
		if n > 0 && f.StringWidth(s[:n+sz], size) > width {
			break
		}
		n += sz
	}
	return n
}
