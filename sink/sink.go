// Package sink delivers finished reports to a directory, a memory buffer or
// an HTTP response.
package sink

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/digitorus/pdfreport"
)

// File writes each report into Dir under its output name.
type File struct {
	Dir string
}

// Deliver implements pdfreport.Sink. The file is written to a temporary name
// and renamed, so readers never see a partial report.
func (f File) Deliver(ctx context.Context, out pdfreport.Output) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := filepath.Base(out.Name)
	if name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("invalid output name %q", out.Name)
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(f.Dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(f.Dir, name)); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Buffer keeps delivered reports in memory.
type Buffer struct {
	mu      sync.Mutex
	outputs []pdfreport.Output
}

// Deliver implements pdfreport.Sink.
func (b *Buffer) Deliver(ctx context.Context, out pdfreport.Output) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs = append(b.outputs, out)
	return nil
}

// Outputs returns the delivered reports in delivery order.
func (b *Buffer) Outputs() []pdfreport.Output {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]pdfreport.Output(nil), b.outputs...)
}

// Get returns the report delivered under name.
func (b *Buffer) Get(name string) (pdfreport.Output, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, out := range b.outputs {
		if out.Name == name {
			return out, true
		}
	}
	return pdfreport.Output{}, false
}

// HTTP streams a report as a download. It delivers at most one report.
type HTTP struct {
	W http.ResponseWriter
}

// Deliver implements pdfreport.Sink.
func (h HTTP) Deliver(ctx context.Context, out pdfreport.Output) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mimeType := out.MIMEType
	if mimeType == "" {
		mimeType = pdfreport.MIMEType
	}
	header := h.W.Header()
	header.Set("Content-Type", mimeType)
	header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.Name}))
	header.Set("Content-Length", strconv.Itoa(len(out.Data)))
	h.W.WriteHeader(http.StatusOK)
	if _, err := h.W.Write(out.Data); err != nil {
		return fmt.Errorf("failed to send %s: %w", out.Name, err)
	}
	return nil
}
