package pdfreport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu  sync.Mutex
	out []Output
	err error
}

func (s *memorySink) Deliver(ctx context.Context, out Output) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.out = append(s.out, out)
	return nil
}

type note struct {
	Title string
	Body  string
}

func renderNote(ctx context.Context, c *Composer, n note) error {
	c.Title(n.Title)
	c.Paragraph(n.Body)
	return nil
}

func TestExport(t *testing.T) {
	var logs bytes.Buffer
	e := NewExporter(nil, slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	sink := &memorySink{}

	err := Export(context.Background(), e, renderNote, note{"Hello", "World"}, "note.pdf", sink)
	require.NoError(t, err)
	require.Len(t, sink.out, 1)

	out := sink.out[0]
	assert.Equal(t, "note.pdf", out.Name)
	assert.Equal(t, "application/pdf", out.MIMEType)
	assert.True(t, bytes.HasPrefix(out.Data, []byte("%PDF-")))
	assert.Equal(t, "Hello\nWorld", allTexts(t, out.Data))

	r := parse(t, out.Data)
	assert.Equal(t, "note", r.Trailer().Key("Info").Key("Title").Text())

	for _, stage := range []string{"stage=render", "stage=serialize", "stage=deliver", "report=note.pdf"} {
		assert.Contains(t, logs.String(), stage)
	}
}

func TestExportFailures(t *testing.T) {
	renderErr := errors.New("render failed")
	sinkErr := errors.New("disk full")

	tests := []struct {
		name  string
		fn    RenderFunc[note]
		sink  *memorySink
		ctx   func() context.Context
		stage ExportStage
		cause error
	}{
		{
			name:  "render error",
			fn:    func(context.Context, *Composer, note) error { return renderErr },
			sink:  &memorySink{},
			stage: StageRender,
			cause: renderErr,
		},
		{
			name:  "sink error",
			fn:    renderNote,
			sink:  &memorySink{err: sinkErr},
			stage: StageDeliver,
			cause: sinkErr,
		},
		{
			name: "cancelled during render",
			fn: func(ctx context.Context, c *Composer, n note) error {
				c.Title("partial")
				return nil
			},
			sink: &memorySink{},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			stage: StageRender,
			cause: context.Canceled,
		},
		{
			name: "render closes the document early",
			fn: func(ctx context.Context, c *Composer, n note) error {
				_, err := c.Document().Bytes()
				return err
			},
			sink:  &memorySink{},
			stage: StageSerialize,
			cause: ErrDocumentClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}
			err := Export(ctx, NewExporter(nil, nil), tt.fn, note{}, "x.pdf", tt.sink)

			var ee *ExportError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.stage, ee.Stage)
			assert.Equal(t, "x.pdf", ee.Name)
			assert.ErrorIs(t, err, tt.cause)
			assert.Empty(t, tt.sink.out, "nothing may be delivered on failure")
		})
	}
}

func TestExportSkippedAttachmentStillDelivers(t *testing.T) {
	source := SourceFunc(func(context.Context, string) ([]byte, error) {
		return nil, errors.New("storage unavailable")
	})
	fn := func(ctx context.Context, c *Composer, refs []string) error {
		c.Title("Tickets")
		for _, ref := range refs {
			if err := c.Attach(ctx, Attachment{Reference: ref, Label: ref}); err != nil {
				var ae *AttachmentError
				if !errors.As(err, &ae) {
					return err
				}
			}
		}
		return nil
	}

	sink := &memorySink{}
	require.NoError(t, Export(context.Background(), NewExporter(source, nil), fn, []string{"a.pdf", "b.pdf"}, "r.pdf", sink))
	require.Len(t, sink.out, 1)
	assert.Equal(t, 1, parse(t, sink.out[0].Data).NumPage())
}

func TestRender(t *testing.T) {
	e := NewExporter(nil, nil)
	e.Producer = "test suite"
	data, err := Render(context.Background(), e, renderNote, note{"T", "B"})
	require.NoError(t, err)
	r := parse(t, data)
	assert.Equal(t, 1, r.NumPage())
	assert.Equal(t, "test suite", r.Trailer().Key("Info").Key("Producer").Text())
}

func TestExportCompression(t *testing.T) {
	body := strings.Repeat("compressible text ", 200)

	plain := NewExporter(nil, nil)
	plain.CompressLevel = 0
	raw, err := Render(context.Background(), plain, renderNote, note{"T", body})
	require.NoError(t, err)

	packed, err := Render(context.Background(), NewExporter(nil, nil), renderNote, note{"T", body})
	require.NoError(t, err)

	assert.Less(t, len(packed), len(raw))
	assert.Equal(t, allTexts(t, raw), allTexts(t, packed))
}

func TestFilename(t *testing.T) {
	tests := []struct {
		prefix, id string
		want       string
	}{
		{"claim", "Youth Exchange e.V.", "claim_Youth_Exchange_e.V..pdf"},
		{"admin review", "42", "admin_review_42.pdf"},
		{"claim", "  spaced \t\n out  ", "claim__spaced_out_.pdf"},
		{"claim", "", "claim_.pdf"},
	}
	for _, tt := range tests {
		if got := Filename(tt.prefix, tt.id); got != tt.want {
			t.Errorf("Filename(%q, %q) = %q, want %q", tt.prefix, tt.id, got, tt.want)
		}
	}
}

func TestExportAll(t *testing.T) {
	var jobs []Job[note]
	for i := 0; i < 12; i++ {
		jobs = append(jobs, Job[note]{Name: fmt.Sprintf("note-%02d.pdf", i), Data: note{Title: fmt.Sprintf("Note %d", i)}})
	}
	failing := func(ctx context.Context, c *Composer, n note) error {
		if n.Title == "Note 3" || n.Title == "Note 7" {
			return errors.New("bad record")
		}
		return renderNote(ctx, c, n)
	}

	sink := &memorySink{}
	err := ExportAll(context.Background(), NewExporter(nil, nil), failing, jobs, sink, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "note-03.pdf")
	assert.Contains(t, err.Error(), "note-07.pdf")

	var ee *ExportError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, StageRender, ee.Stage)

	require.Len(t, sink.out, 10)
	for _, out := range sink.out {
		assert.NotEqual(t, "note-03.pdf", out.Name)
		var idx int
		_, _ = fmt.Sscanf(out.Name, "note-%02d.pdf", &idx)
		assert.Equal(t, fmt.Sprintf("Note %d", idx), allTexts(t, out.Data))
	}

	assert.NoError(t, ExportAll(context.Background(), NewExporter(nil, nil), renderNote, nil, sink, 0))
}
