package pdfreport

import "context"

// Page geometry in PDF points. Composed pages are A4 portrait.
const (
	PageWidth    = 595.28
	PageHeight   = 841.89
	SideMargin   = 50.0
	TopMargin    = 50.0
	BottomMargin = 50.0
	LineHeight   = 16.0

	// ContentWidth is the usable text width between the side margins.
	ContentWidth = PageWidth - 2*SideMargin
)

// Attachment geometry.
const (
	// AttachmentScale is applied to every embedded foreign page.
	AttachmentScale = 0.8
	// WrapperHeaderHeight is kept free above the scaled first page for the label and caption.
	WrapperHeaderHeight = 80.0
	// WrapperMinY is the lowest the scaled first page may sit on its wrapper page.
	WrapperMinY = 30.0

	WrapperTextX    = 40.0
	LabelOffset     = 40.0
	CaptionOffset   = 60.0
	LabelFontSize   = 12.0
	CaptionFontSize = 10.0
)

// MIMEType is the media type of every exported report.
const MIMEType = "application/pdf"

// DrawOp is a single drawing operation on a page. It is either a TextOp or a
// PlaceOp.
type DrawOp interface {
	drawOp()
}

// TextOp draws one line of text with its baseline origin at (X, Y).
type TextOp struct {
	Text     string
	X, Y     float64
	FontSize float64
}

// PlaceOp draws an embedded foreign page with its lower-left corner at (X, Y),
// uniformly scaled by Scale.
type PlaceOp struct {
	Ref   *EmbeddedPage
	X, Y  float64
	Scale float64
}

func (TextOp) drawOp()  {}
func (PlaceOp) drawOp() {}

// Page is one sheet of the output document. Its size is fixed at creation.
type Page struct {
	Width  float64
	Height float64
	Ops    []DrawOp
}

// EmbeddedPage is a foreign page copied into the document's own object space.
// It spans (0,0)-(Width,Height) and can be drawn at any position and scale.
type EmbeddedPage struct {
	Width  float64
	Height float64

	id uint32
}

// Attachment is an externally stored PDF or image to merge into the report.
// Data is used when set; otherwise Reference is resolved through the
// composer's AttachmentSource.
type Attachment struct {
	Reference string
	Data      []byte
	Label     string
	Caption   string
}

// AttachmentSource resolves attachment references to raw bytes. It returns
// ErrAttachmentNotFound for references that do not exist. Implementations
// must be safe for concurrent use.
type AttachmentSource interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// SourceFunc adapts a function to an AttachmentSource.
type SourceFunc func(ctx context.Context, ref string) ([]byte, error)

// Fetch calls f(ctx, ref).
func (f SourceFunc) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return f(ctx, ref)
}

// Output is a serialised report ready for delivery.
type Output struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Sink delivers a finished report.
type Sink interface {
	Deliver(ctx context.Context, out Output) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, out Output) error

// Deliver calls f(ctx, out).
func (f SinkFunc) Deliver(ctx context.Context, out Output) error {
	return f(ctx, out)
}
