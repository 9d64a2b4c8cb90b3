// Package images provides raster image resources for PDF documents.
//
// Ticket scans are often delivered as JPEG or PNG files instead of PDF. They
// are loaded here and embedded as image XObjects by the attachment code.
package images

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
)

// ErrUnsupported is returned for data that is not a JPEG or PNG image.
var ErrUnsupported = errors.New("unsupported image format")

// Image represents an image resource that can be placed on a page.
type Image struct {
	Name   string // Identifier for the image
	Data   []byte // Raw image data (JPEG or PNG)
	Format string // "jpeg" or "png"
	Width  int    // Width in pixels
	Height int    // Height in pixels
	Colors int    // Colour components per pixel: 1 (gray), 3 (RGB) or 4 (CMYK)
	Hash   string // Hex SHA-256 of Data; equal scans are embedded once
}

// Load inspects data and returns the image it holds.
func Load(name string, data []byte) (*Image, error) {
	if !IsImage(data) {
		return nil, ErrUnsupported
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %q: %w", name, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image %q has no pixels", name)
	}
	sum := sha256.Sum256(data)
	return &Image{
		Name:   name,
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
		Colors: components(cfg.ColorModel),
		Hash:   hex.EncodeToString(sum[:]),
	}, nil
}

// IsImage reports whether data starts with a JPEG or PNG signature.
func IsImage(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}) ||
		bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n"))
}

func components(m color.Model) int {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.CMYKModel:
		return 4
	default:
		return 3
	}
}
