package pdfreport

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"testing"

	pdflib "github.com/digitorus/pdf"
	"github.com/digitorus/pdfreport/internal/pdf"
	"golang.org/x/text/encoding/charmap"
)

// fixturePDF builds a foreign PDF with one page per size. Each page draws a
// diagonal so its content stream is not empty. A third size element, when
// present, is used as the page's /Rotate.
func fixturePDF(t *testing.T, sizes ...[]float64) []byte {
	t.Helper()

	w := pdf.NewWriter()
	pagesID := w.Alloc()
	var kids []string
	for i, size := range sizes {
		contentID, err := w.AddStream("", []byte(fmt.Sprintf("%% page %d\n0 0 m %s %s l S", i+1, pdf.Number(size[0]), pdf.Number(size[1]))))
		if err != nil {
			t.Fatal(err)
		}
		dict := fmt.Sprintf("<< /Type /Page /Parent %s /MediaBox [0 0 %s %s] /Resources << >> /Contents %s",
			pdf.Ref(pagesID), pdf.Number(size[0]), pdf.Number(size[1]), pdf.Ref(contentID))
		if len(size) > 2 {
			dict += fmt.Sprintf(" /Rotate %d", int(size[2]))
		}
		kids = append(kids, pdf.Ref(w.AddObject([]byte(dict+" >>"))))
	}
	w.Set(pagesID, []byte(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))))
	catalog := w.AddObject([]byte(fmt.Sprintf("<< /Type /Catalog /Pages %s >>", pdf.Ref(pagesID))))

	var out bytes.Buffer
	if _, err := w.WriteTo(&out, catalog, 0); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func a4Pages(n int) [][]float64 {
	sizes := make([][]float64, n)
	for i := range sizes {
		sizes[i] = []float64{PageWidth, PageHeight}
	}
	return sizes
}

func parse(t *testing.T, data []byte) *pdflib.Reader {
	t.Helper()
	r, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("output does not parse: %v", err)
	}
	return r
}

func mediaBox(r *pdflib.Reader, num int) [4]float64 {
	box := r.Page(num).V.Key("MediaBox")
	var b [4]float64
	for i := range b {
		b[i] = box.Index(i).Float64()
	}
	return b
}

var showText = regexp.MustCompile(`<([0-9a-f]*)> Tj`)

// pageTexts returns every string shown on a page, decoded from WinAnsi.
func pageTexts(t *testing.T, r *pdflib.Reader, num int) []string {
	t.Helper()
	rc := r.Page(num).V.Key("Contents").Reader()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("failed to read content of page %d: %v", num, err)
	}

	var texts []string
	for _, m := range showText.FindAllSubmatch(data, -1) {
		raw, err := hex.DecodeString(string(m[1]))
		if err != nil {
			t.Fatal(err)
		}
		text, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		if err != nil {
			t.Fatal(err)
		}
		texts = append(texts, string(text))
	}
	return texts
}

// allTexts joins the text of every page.
func allTexts(t *testing.T, data []byte) string {
	t.Helper()
	r := parse(t, data)
	var all []string
	for i := 1; i <= r.NumPage(); i++ {
		all = append(all, pageTexts(t, r, i)...)
	}
	return strings.Join(all, "\n")
}

func newTestComposer(t *testing.T) *Composer {
	t.Helper()
	doc, err := NewDocument(nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewComposer(doc)
}
