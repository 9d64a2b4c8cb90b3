package render

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/digitorus/pdfreport/fonts"
	"github.com/digitorus/pdfreport/images"
	"github.com/digitorus/pdfreport/internal/pdf"
)

// RegisterFont writes the font dictionary for f, and for embedded fonts the
// font program and descriptor, and returns the font object number. Every font
// uses WinAnsiEncoding so text can be shown with EncodeText.
func RegisterFont(w *pdf.Writer, f *fonts.Font) (uint32, error) {
	if f != nil && len(f.Data) > 0 {
		fontStreamID, err := w.AddStream(fmt.Sprintf("/Length1 %d", len(f.Data)), f.Data)
		if err != nil {
			return 0, fmt.Errorf("failed to embed font %s: %w", f.Name, err)
		}

		descriptorID := w.AddObject([]byte(fmt.Sprintf(
			"<< /Type /FontDescriptor /FontName %s /Flags 32 /FontBBox [-500 -200 1000 900] /ItalicAngle 0 /Ascent 800 /Descent -200 /CapHeight 700 /StemV 80 /FontFile2 %s >>",
			pdf.Name(f.Name), pdf.Ref(fontStreamID))))

		var fontBuf strings.Builder
		fmt.Fprintf(&fontBuf, "<< /Type /Font /Subtype /TrueType /BaseFont %s /FontDescriptor %s /FirstChar 32 /LastChar 255 /Encoding /WinAnsiEncoding /Widths [",
			pdf.Name(f.Name), pdf.Ref(descriptorID))
		for _, width := range f.Metrics.GetWidthsArray() {
			fmt.Fprintf(&fontBuf, " %d", width)
		}
		fontBuf.WriteString(" ] >>")
		return w.AddObject([]byte(fontBuf.String())), nil
	}

	baseFont := "Helvetica"
	if f != nil && f.Name != "" {
		baseFont = f.Name
	}
	return w.AddObject([]byte(fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont %s /Encoding /WinAnsiEncoding >>", pdf.Name(baseFont)))), nil
}

// RegisterImage writes img as an image XObject and returns its object number.
// JPEG data without transparency is stored as-is; everything else is decoded
// to RGB with an optional soft mask.
func RegisterImage(w *pdf.Writer, img *images.Image) (uint32, error) {
	if img == nil || len(img.Data) == 0 {
		return 0, fmt.Errorf("invalid image data")
	}

	if img.Format == "jpeg" {
		colorSpace := "/DeviceRGB"
		switch img.Colors {
		case 1:
			colorSpace = "/DeviceGray"
		case 4:
			// Adobe CMYK JPEGs store inverted components.
			colorSpace = "/DeviceCMYK /Decode [1 0 1 0 1 0 1 0]"
		}
		id := w.Alloc()
		w.SetRawStream(id, fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace %s /BitsPerComponent 8 /Filter /DCTDecode",
			img.Width, img.Height, colorSpace), img.Data)
		return id, nil
	}

	srcImg, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := srcImg.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	rgb := make([]byte, 0, width*height*3)
	alpha := make([]byte, 0, width*height)
	hasAlpha := false
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := srcImg.At(x, y).RGBA()
			a8 := uint8(a >> 8)
			if a8 < 255 {
				hasAlpha = true
			}
			alpha = append(alpha, a8)
			rgb = append(rgb, uint8(r>>8), uint8(g>>8), uint8(b>>8))
		}
	}

	dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8", width, height)
	if hasAlpha {
		smaskID, err := w.AddStream(fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8", width, height), alpha)
		if err != nil {
			return 0, fmt.Errorf("failed to write soft mask: %w", err)
		}
		dict += " /SMask " + pdf.Ref(smaskID)
	}
	return w.AddStream(dict, rgb)
}

// ImageForm wraps the image XObject imageID in a form XObject that shows the
// image stretched over (0,0)-(width,height).
func ImageForm(w *pdf.Writer, imageID uint32, width, height float64) (uint32, error) {
	content := NewContent()
	content.Draw("Im0", imageID, width, height, 0, 0)
	return w.AddStream(fmt.Sprintf("/Type /XObject /Subtype /Form /FormType 1 /BBox [0 0 %s %s] /Resources %s",
		pdf.Number(width), pdf.Number(height), content.Resources()), content.Bytes())
}
