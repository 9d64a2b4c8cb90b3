package pdfreport

// Cursor tracks the page being written and the vertical position on it.
// It belongs to exactly one Composer.
type Cursor struct {
	doc  *Document
	page *Page
	y    float64
}

func newCursor(doc *Document) *Cursor {
	c := &Cursor{doc: doc}
	// Start on the document's blank base page when it has one.
	if n := len(doc.pages); n > 0 && len(doc.pages[n-1].Ops) == 0 &&
		doc.pages[n-1].Width == PageWidth && doc.pages[n-1].Height == PageHeight {
		c.page = doc.pages[n-1]
		c.y = PageHeight - TopMargin
		return c
	}
	c.newPage()
	return c
}

// Page returns the page the next draw goes to, or nil when the cursor is
// detached.
func (c *Cursor) Page() *Page {
	return c.page
}

// Y returns the current baseline position.
func (c *Cursor) Y() float64 {
	return c.y
}

// Remaining returns the vertical space left above the bottom margin.
func (c *Cursor) Remaining() float64 {
	if c.page == nil {
		return 0
	}
	return c.y - BottomMargin
}

// EnsureSpace starts a new A4 page when less than min points remain above
// the bottom margin, or when the cursor is detached.
func (c *Cursor) EnsureSpace(min float64) {
	if c.page == nil || c.y-BottomMargin < min {
		c.newPage()
	}
}

// Advance moves the cursor down by lineHeight, breaking the page first if the
// line does not fit. The cursor never moves below the bottom margin.
func (c *Cursor) Advance(lineHeight float64) {
	c.EnsureSpace(lineHeight)
	c.y = max(c.y-lineHeight, BottomMargin)
}

// Detach releases the current page. The next EnsureSpace opens a fresh page
// at the end of the document. Attach detaches the cursor so that text
// following an attachment is not written back onto a page before it.
func (c *Cursor) Detach() {
	c.page = nil
}

func (c *Cursor) newPage() {
	c.page = c.doc.addPage(PageWidth, PageHeight)
	c.y = PageHeight - TopMargin
}
