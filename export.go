package pdfreport

import (
	"compress/zlib"
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/digitorus/pdfreport/fonts"
)

// RenderFunc lays out data on a Composer. One RenderFunc exists per report
// type. It may call Attach any number of times; attachments appear in the
// order of the calls.
type RenderFunc[T any] func(ctx context.Context, c *Composer, data T) error

// Exporter holds the configuration shared by export calls. It is read-only
// during exports and may be shared between goroutines.
type Exporter struct {
	// Source resolves attachment references. Nil skips every reference
	// without inline data.
	Source AttachmentSource
	// Logger receives one line per pipeline stage. Nil discards.
	Logger *slog.Logger
	// Font is the base font. Nil selects standard Helvetica.
	Font *fonts.Font
	// CompressLevel is the zlib level for generated streams. The zero value
	// is zlib.NoCompression.
	CompressLevel int
	// Producer is written to the document information dictionary.
	Producer string
}

// NewExporter returns an Exporter with default compression and the standard
// base font.
func NewExporter(source AttachmentSource, logger *slog.Logger) *Exporter {
	return &Exporter{
		Source:        source,
		Logger:        logger,
		CompressLevel: zlib.DefaultCompression,
		Producer:      "pdfreport",
	}
}

func (e *Exporter) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// Export renders data with fn into a new document, serialises it once and
// hands it to sink under filename. Any failure returns an *ExportError and
// nothing is delivered.
func Export[T any](ctx context.Context, e *Exporter, fn RenderFunc[T], data T, filename string, sink Sink) error {
	log := e.logger().With("report", filename)

	out, err := build(ctx, e, log, fn, data, filename)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return &ExportError{Stage: StageDeliver, Name: filename, Err: err}
	}
	if err := sink.Deliver(ctx, out); err != nil {
		log.Error("delivery failed", "stage", StageDeliver, "err", err)
		return &ExportError{Stage: StageDeliver, Name: filename, Err: err}
	}
	log.Info("report delivered", "stage", StageDeliver, "bytes", len(out.Data))
	return nil
}

// Render is Export with the bytes returned to the caller instead of a sink.
func Render[T any](ctx context.Context, e *Exporter, fn RenderFunc[T], data T) ([]byte, error) {
	out, err := build(ctx, e, e.logger(), fn, data, "")
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func build[T any](ctx context.Context, e *Exporter, log *slog.Logger, fn RenderFunc[T], data T, name string) (Output, error) {
	doc, err := NewDocument(e.Font)
	if err != nil {
		log.Error("document creation failed", "stage", StageCreate, "err", err)
		return Output{}, &ExportError{Stage: StageCreate, Name: name, Err: err}
	}
	doc.SetCompression(e.CompressLevel)
	doc.SetInfo(strings.TrimSuffix(name, ".pdf"), e.Producer)

	c := NewComposer(doc).WithSource(e.Source).WithLogger(log)
	log.Debug("rendering report", "stage", StageRender)
	if err := fn(ctx, c, data); err != nil {
		log.Error("render failed", "stage", StageRender, "err", err)
		return Output{}, &ExportError{Stage: StageRender, Name: name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return Output{}, &ExportError{Stage: StageRender, Name: name, Err: err}
	}

	b, err := doc.Bytes()
	if err != nil {
		log.Error("serialization failed", "stage", StageSerialize, "err", err)
		return Output{}, &ExportError{Stage: StageSerialize, Name: name, Err: err}
	}
	log.Debug("report serialized", "stage", StageSerialize, "pages", doc.PageCount(), "bytes", len(b))

	return Output{Name: name, MIMEType: MIMEType, Data: b}, nil
}

var whitespace = regexp.MustCompile(`\s+`)

// Filename returns the deterministic report file name for an organisation or
// submission identifier: prefix and id joined by an underscore, every run of
// whitespace replaced by an underscore, with a .pdf extension.
func Filename(prefix, id string) string {
	return whitespace.ReplaceAllString(prefix+"_"+id, "_") + ".pdf"
}
