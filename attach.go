package pdfreport

import (
	"context"
	"errors"
	"fmt"

	"github.com/digitorus/pdfreport/images"
	"github.com/digitorus/pdfreport/internal/pdf"
	"github.com/digitorus/pdfreport/internal/render"
)

// Attach merges a foreign PDF, or a JPEG or PNG scan, into the document.
//
// The first page is shown on a wrapper page of the same size, scaled by
// AttachmentScale below the attachment's label and caption. Every further page
// becomes a page of its own at AttachmentScale of its original size. An N-page
// attachment therefore adds exactly N pages, and text composed afterwards
// starts on a new page after them.
//
// A missing reference, or one the source reports as ErrAttachmentNotFound, is
// skipped and nil is returned. Other failures return an *AttachmentError and
// leave the document unchanged. Attach returns ErrDocumentClosed once the
// document has been serialised.
func (c *Composer) Attach(ctx context.Context, a Attachment) error {
	if c.doc.closed {
		return ErrDocumentClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	log := c.logger.With("attachment", a.Reference)

	data := a.Data
	if len(data) == 0 {
		if a.Reference == "" || c.source == nil {
			log.Debug("attachment skipped", "reason", "no reference")
			return nil
		}
		var err error
		data, err = c.source.Fetch(ctx, a.Reference)
		if errors.Is(err, ErrAttachmentNotFound) {
			log.Debug("attachment skipped", "reason", "not found")
			return nil
		}
		if err != nil {
			return &AttachmentError{Kind: FetchFailed, Reference: a.Reference, Label: a.Label, Err: err}
		}
	}

	mark := c.doc.w.Mark()
	pages, err := c.importPages(a.Reference, data)
	if err != nil {
		c.doc.w.Rollback(mark)
		return &AttachmentError{Kind: ParseFailed, Reference: a.Reference, Label: a.Label, Err: err}
	}

	c.layout(a, pages)
	c.cursor.Detach()
	log.Debug("attachment embedded", "pages", len(pages))
	return nil
}

// importPages copies every page of data into the document's object space.
func (c *Composer) importPages(name string, data []byte) ([]*EmbeddedPage, error) {
	if images.IsImage(data) {
		p, err := c.importImage(name, data)
		if err != nil {
			return nil, err
		}
		return []*EmbeddedPage{p}, nil
	}

	src, err := pdf.Open(data)
	if err != nil {
		return nil, err
	}

	copier := pdf.NewCopier(c.doc.w, src)
	pages := make([]*EmbeddedPage, 0, src.NumPage())
	for i := 1; i <= src.NumPage(); i++ {
		form, err := copier.ImportPage(i)
		if err != nil {
			return nil, fmt.Errorf("failed to import page %d: %w", i, err)
		}
		pages = append(pages, &EmbeddedPage{Width: form.Width, Height: form.Height, id: form.ID})
	}
	return pages, nil
}

// importImage turns a scan into a single page, one point per pixel, shrunk to
// fit A4 when larger. A scan already embedded in the document is reused.
func (c *Composer) importImage(name string, data []byte) (*EmbeddedPage, error) {
	img, err := images.Load(name, data)
	if err != nil {
		return nil, err
	}
	if p, ok := c.doc.scans[img.Hash]; ok {
		return p, nil
	}
	imageID, err := render.RegisterImage(c.doc.w, img)
	if err != nil {
		return nil, err
	}

	width, height := float64(img.Width), float64(img.Height)
	if s := min(PageWidth/width, PageHeight/height); s < 1 {
		width *= s
		height *= s
	}
	id, err := render.ImageForm(c.doc.w, imageID, width, height)
	if err != nil {
		return nil, err
	}
	p := &EmbeddedPage{Width: width, Height: height, id: id}
	c.doc.scans[img.Hash] = p
	return p, nil
}

// layout appends the wrapper page and the continuation pages.
func (c *Composer) layout(a Attachment, pages []*EmbeddedPage) {
	first := pages[0]
	w, h := first.Width, first.Height

	wrapper := c.doc.addPage(w, h)
	if label := singleLine(a.Label); label != "" {
		wrapper.Ops = append(wrapper.Ops, TextOp{Text: label, X: WrapperTextX, Y: h - LabelOffset, FontSize: LabelFontSize})
	}
	if caption := singleLine(a.Caption); caption != "" {
		wrapper.Ops = append(wrapper.Ops, TextOp{Text: caption, X: WrapperTextX, Y: h - CaptionOffset, FontSize: CaptionFontSize})
	}
	x, y := WrapperPlacement(w, h)
	wrapper.Ops = append(wrapper.Ops, PlaceOp{Ref: first, X: x, Y: y, Scale: AttachmentScale})

	for _, p := range pages[1:] {
		w, h := ContinuationSize(p.Width, p.Height)
		page := c.doc.addPage(w, h)
		page.Ops = append(page.Ops, PlaceOp{Ref: p, X: 0, Y: 0, Scale: AttachmentScale})
	}
}

// WrapperPlacement returns where the scaled first page of an attachment sits
// on a wrapper page of width w and height h: centred horizontally, below the
// header, and never lower than WrapperMinY.
func WrapperPlacement(w, h float64) (x, y float64) {
	x = (w - w*AttachmentScale) / 2
	y = h - WrapperHeaderHeight - h*AttachmentScale
	if y < WrapperMinY {
		y = WrapperMinY
	}
	return x, y
}

// ContinuationSize returns the size of the page that shows a further
// attachment page of width w and height h.
func ContinuationSize(w, h float64) (float64, float64) {
	return w * AttachmentScale, h * AttachmentScale
}
