// Package pdfreport renders structured data into PDF reports and merges
// independently authored PDF files into them as scaled sub-pages.
//
// A report is produced by a render routine that draws onto a Composer:
//
//	func render(ctx context.Context, c *pdfreport.Composer, s Submission) error {
//	    c.Title("Travel reimbursement")
//	    c.Field("Organisation:", s.Organisation)
//	    for _, t := range s.Tickets {
//	        err := c.Attach(ctx, pdfreport.Attachment{Reference: t.File, Label: t.Route()})
//	        if err != nil {
//	            log.Printf("ticket skipped: %v", err)
//	        }
//	    }
//	    return nil
//	}
//
//	err := pdfreport.Export(ctx, exporter, render, submission, "claim.pdf", sink)
//
// Composed pages are A4 portrait and paginate automatically. Attached pages
// are copied at the object level, keeping their content streams untouched.
package pdfreport

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/digitorus/pdfreport/fonts"
	"github.com/digitorus/pdfreport/internal/pdf"
	"github.com/digitorus/pdfreport/internal/render"
)

// fontResource is the resource name of the base font on every page.
const fontResource = "F1"

// Document is an output PDF under construction. It owns its pages, the base
// font and every object copied from attachments. A Document is serialised
// exactly once; afterwards it is closed.
type Document struct {
	w      *pdf.Writer
	pages  []*Page
	font   *fonts.Font
	fontID uint32
	// scans maps the hash of an embedded image to its form.
	scans map[string]*EmbeddedPage

	title    string
	producer string
	created  time.Time
	closed   bool
}

// NewDocument creates a document with one blank A4 base page. A nil font
// selects standard Helvetica. Failing to register the font is fatal for the
// report, so it is reported here rather than at serialisation.
func NewDocument(font *fonts.Font) (*Document, error) {
	if font == nil {
		font = fonts.Standard(fonts.Helvetica)
	}

	d := &Document{
		w:        pdf.NewWriter(),
		font:     font,
		scans:    make(map[string]*EmbeddedPage),
		producer: "pdfreport",
		created:  time.Now(),
	}

	id, err := render.RegisterFont(d.w, font)
	if err != nil {
		return nil, fmt.Errorf("failed to register base font: %w", err)
	}
	d.fontID = id
	d.addPage(PageWidth, PageHeight)
	return d, nil
}

// SetCompression configures the zlib compression level for generated streams.
// Supported levels are zlib.NoCompression, zlib.BestSpeed, zlib.BestCompression, or zlib.DefaultCompression.
// Streams copied from attachments keep their original encoding.
func (d *Document) SetCompression(level int) {
	if level < zlib.HuffmanOnly || level > zlib.BestCompression {
		level = zlib.DefaultCompression
	}
	d.w.CompressLevel = level
}

// SetInfo sets the title and producer written to the document information
// dictionary.
func (d *Document) SetInfo(title, producer string) {
	d.title = title
	if producer != "" {
		d.producer = producer
	}
}

// Font returns the base font.
func (d *Document) Font() *fonts.Font {
	return d.font
}

// Pages returns the pages in output order.
func (d *Document) Pages() []*Page {
	return d.pages
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.pages)
}

// Closed reports whether the document has been serialised.
func (d *Document) Closed() bool {
	return d.closed
}

func (d *Document) addPage(width, height float64) *Page {
	p := &Page{Width: width, Height: height}
	d.pages = append(d.pages, p)
	return p
}

// Bytes serialises the document. It closes the document: a second call
// returns ErrDocumentClosed.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo serialises the document to w and closes it.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	if d.closed {
		return 0, ErrDocumentClosed
	}
	d.closed = true

	pagesID := d.w.Alloc()
	kids := make([]string, 0, len(d.pages))
	for i, p := range d.pages {
		id, err := d.writePage(p, pagesID)
		if err != nil {
			return 0, fmt.Errorf("failed to write page %d: %w", i+1, err)
		}
		kids = append(kids, pdf.Ref(id))
	}
	d.w.Set(pagesID, []byte(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))))

	catalogID := d.w.AddObject([]byte(fmt.Sprintf("<< /Type /Catalog /Pages %s >>", pdf.Ref(pagesID))))

	var info strings.Builder
	info.WriteString("<<")
	if d.title != "" {
		fmt.Fprintf(&info, " /Title %s", pdf.String(d.title))
	}
	fmt.Fprintf(&info, " /Producer %s /CreationDate %s >>", pdf.String(d.producer), pdf.DateTime(d.created))
	infoID := d.w.AddObject([]byte(info.String()))

	n, err := d.w.WriteTo(w, catalogID, infoID)
	if err != nil {
		return n, fmt.Errorf("failed to write document: %w", err)
	}
	return n, nil
}

func (d *Document) writePage(p *Page, parent uint32) (uint32, error) {
	content := render.NewContent()
	for _, op := range p.Ops {
		switch op := op.(type) {
		case TextOp:
			content.Text(fontResource, d.fontID, op.FontSize, op.X, op.Y, op.Text)
		case PlaceOp:
			if op.Ref == nil {
				continue
			}
			content.Place(fmt.Sprintf("P%d", op.Ref.id), op.Ref.id, op.Scale, op.X, op.Y)
		default:
			return 0, fmt.Errorf("unsupported draw operation %T", op)
		}
	}

	contentID, err := d.w.AddStream("", content.Bytes())
	if err != nil {
		return 0, err
	}
	return d.w.AddObject([]byte(fmt.Sprintf("<< /Type /Page /Parent %s /MediaBox [0 0 %s %s] /Resources %s /Contents %s >>",
		pdf.Ref(parent), pdf.Number(p.Width), pdf.Number(p.Height), content.Resources(), pdf.Ref(contentID)))), nil
}
