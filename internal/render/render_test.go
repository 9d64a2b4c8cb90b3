package render

import (
	"bytes"
	"compress/zlib"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/digitorus/pdfreport/fonts"
	"github.com/digitorus/pdfreport/images"
	"github.com/digitorus/pdfreport/internal/pdf"
)

func TestContent(t *testing.T) {
	c := NewContent()
	c.Text("F1", 3, 12, 50, 791.89, "Hi (there)")
	c.Place("P1", 7, 0.8, 59.528, 30)

	stream := string(c.Bytes())
	for _, elem := range []string{
		"BT\n/F1 12 Tf\n50 791.89 Td\n<48692028746865726529> Tj\nET\n",
		"q\n0.8 0 0 0.8 59.528 30 cm\n/P1 Do\nQ\n",
	} {
		if !strings.Contains(stream, elem) {
			t.Errorf("stream missing %q:\n%s", elem, stream)
		}
	}

	res := c.Resources()
	if !strings.Contains(res, "/Font << /F1 3 0 R >>") || !strings.Contains(res, "/XObject << /P1 7 0 R >>") {
		t.Errorf("unexpected resources %q", res)
	}
}

func TestEmptyResources(t *testing.T) {
	if got := NewContent().Resources(); strings.Contains(got, "/Font") || strings.Contains(got, "/XObject") {
		t.Errorf("empty content lists resources: %q", got)
	}
}

func TestEncodeText(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"abc", []byte("abc")},
		{"€", []byte{0x80}},
		{"• ä", []byte{0x95, ' ', 0xe4}},
		{"日本", []byte("??")},
	}
	for _, tt := range tests {
		if got := EncodeText(tt.in); !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeText(%q) = %x, want %x", tt.in, got, tt.want)
		}
	}
}

func TestRegisterFont(t *testing.T) {
	w := pdf.NewWriter()
	id, err := RegisterFont(w, fonts.Standard(fonts.Helvetica))
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 || w.Len() != 1 {
		t.Errorf("standard font should be a single object, got id %d, %d objects", id, w.Len())
	}

	// A font with data but no valid metrics still gets an embedded program.
	w = pdf.NewWriter()
	id, err = RegisterFont(w, &fonts.Font{Name: "Custom", Data: []byte("fake"), Embedded: true})
	if err != nil {
		t.Fatal(err)
	}
	if id != 3 || w.Len() != 3 {
		t.Errorf("embedded font should write three objects, got id %d, %d objects", id, w.Len())
	}
}

func TestRegisterImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.NRGBA{255, 0, 0, 255})
	src.Set(1, 1, color.NRGBA{0, 0, 255, 128})

	var jpg, pn bytes.Buffer
	if err := jpeg.Encode(&jpg, src, nil); err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(&pn, src); err != nil {
		t.Fatal(err)
	}

	t.Run("jpeg", func(t *testing.T) {
		img, err := images.Load("scan.jpg", jpg.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		w := pdf.NewWriter()
		if _, err := RegisterImage(w, img); err != nil {
			t.Fatal(err)
		}
		if w.Len() != 1 {
			t.Errorf("jpeg should be one object, got %d", w.Len())
		}
	})

	t.Run("png with alpha", func(t *testing.T) {
		img, err := images.Load("scan.png", pn.Bytes())
		if err != nil {
			t.Fatal(err)
		}
		w := pdf.NewWriter()
		w.CompressLevel = zlib.BestSpeed
		if _, err := RegisterImage(w, img); err != nil {
			t.Fatal(err)
		}
		if w.Len() != 2 {
			t.Errorf("png with alpha should write image and soft mask, got %d objects", w.Len())
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := RegisterImage(pdf.NewWriter(), &images.Image{}); err == nil {
			t.Error("expected error for empty image")
		}
	})
}
