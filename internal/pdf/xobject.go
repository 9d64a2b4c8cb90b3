package pdf

import (
	"bytes"
	"fmt"
	"strings"

	pdflib "github.com/digitorus/pdf"
)

// Form is a foreign page turned into a Form XObject of the target file.
// Its matrix folds in the page's box origin and rotation, so the form always
// spans (0,0)-(Width,Height) in the space it is drawn into.
type Form struct {
	ID     uint32
	Width  float64
	Height float64
}

// ImportPage copies the 1-based page num of the copier's source into the
// target as a Form XObject. Resources and content are copied, annotations and
// the page tree are not.
func (c *Copier) ImportPage(num int) (form *Form, err error) {
	defer catch(&err)

	page, err := c.src.Page(num)
	if err != nil {
		return nil, err
	}

	box := PageBox(page)
	rotate := PageRotation(page)
	matrix, width, height := FormMatrix(box, rotate)

	resources := "<< >>"
	if res := inherited(page, "Resources"); res.Kind() == pdflib.Dict {
		if resources, err = c.Copy(res); err != nil {
			return nil, fmt.Errorf("failed to copy resources of page %d: %w", num, err)
		}
	}

	var dict strings.Builder
	fmt.Fprintf(&dict, "/Type /XObject /Subtype /Form /FormType 1 /BBox [%s %s %s %s]",
		Number(box.LLX), Number(box.LLY), Number(box.URX), Number(box.URY))
	fmt.Fprintf(&dict, " /Matrix [%s %s %s %s %s %s]",
		Number(matrix[0]), Number(matrix[1]), Number(matrix[2]),
		Number(matrix[3]), Number(matrix[4]), Number(matrix[5]))
	dict.WriteString(" /Resources ")
	dict.WriteString(resources)
	if group := page.Key("Group"); group.Kind() == pdflib.Dict {
		g, err := c.Copy(group)
		if err != nil {
			return nil, fmt.Errorf("failed to copy group of page %d: %w", num, err)
		}
		dict.WriteString(" /Group ")
		dict.WriteString(g)
	}

	id := c.w.Alloc()
	contents := page.Key("Contents")
	switch contents.Kind() {
	case pdflib.Stream:
		// A single content stream is carried over still encoded.
		raw, rawErr := c.src.rawStream(contents)
		if rawErr == nil {
			for _, key := range []string{"Filter", "DecodeParms"} {
				if v := contents.Key(key); !v.IsNull() {
					s, err := c.Copy(v)
					if err != nil {
						return nil, err
					}
					dict.WriteString(" " + Name(key) + " " + s)
				}
			}
			c.w.SetRawStream(id, dict.String(), raw)
			break
		}
		data, err := c.src.decodedStream(contents)
		if err != nil {
			return nil, fmt.Errorf("failed to read content of page %d: %w", num, err)
		}
		if err := c.w.SetStream(id, dict.String(), data); err != nil {
			return nil, err
		}
	case pdflib.Array:
		// Content arrays may split operators across streams, so they are
		// decoded and joined into one stream.
		var buf bytes.Buffer
		for i := 0; i < contents.Len(); i++ {
			data, err := c.src.decodedStream(contents.Index(i))
			if err != nil {
				return nil, fmt.Errorf("failed to read content %d of page %d: %w", i, num, err)
			}
			buf.Write(data)
			buf.WriteByte('\n')
		}
		if err := c.w.SetStream(id, dict.String(), buf.Bytes()); err != nil {
			return nil, err
		}
	default:
		if err := c.w.SetStream(id, dict.String(), nil); err != nil {
			return nil, err
		}
	}

	return &Form{ID: id, Width: width, Height: height}, nil
}

// FormMatrix returns the form matrix that maps box, displayed with the given
// clockwise rotation, onto (0,0)-(width,height).
func FormMatrix(box Box, rotate int) (matrix [6]float64, width, height float64) {
	switch rotate {
	case 90:
		return [6]float64{0, -1, 1, 0, -box.LLY, box.URX}, box.Height(), box.Width()
	case 180:
		return [6]float64{-1, 0, 0, -1, box.URX, box.URY}, box.Width(), box.Height()
	case 270:
		return [6]float64{0, 1, -1, 0, box.URY, -box.LLX}, box.Height(), box.Width()
	default:
		return [6]float64{1, 0, 0, 1, -box.LLX, -box.LLY}, box.Width(), box.Height()
	}
}
