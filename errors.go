package pdfreport

import (
	"errors"
	"fmt"
)

var (
	// ErrAttachmentNotFound is returned by an AttachmentSource when a reference
	// does not resolve. Attach treats it like a missing reference and skips the
	// attachment.
	ErrAttachmentNotFound = errors.New("attachment not found")

	// ErrAttachmentParse matches every *AttachmentError of kind ParseFailed.
	ErrAttachmentParse = errors.New("failed to parse attachment")

	// ErrAttachmentFetch matches every *AttachmentError of kind FetchFailed.
	ErrAttachmentFetch = errors.New("failed to fetch attachment")

	// ErrDocumentClosed is returned when a serialised document is attached to
	// or serialised a second time.
	ErrDocumentClosed = errors.New("document already serialized")
)

// AttachmentErrorKind classifies why an attachment could not be embedded.
type AttachmentErrorKind int

const (
	// ParseFailed means the attachment bytes are not a usable PDF or image.
	ParseFailed AttachmentErrorKind = iota + 1
	// FetchFailed means the attachment source returned an error other than
	// ErrAttachmentNotFound.
	FetchFailed
)

func (k AttachmentErrorKind) String() string {
	switch k {
	case ParseFailed:
		return "parse failed"
	case FetchFailed:
		return "fetch failed"
	default:
		return fmt.Sprintf("AttachmentErrorKind(%d)", int(k))
	}
}

// AttachmentError reports an attachment that was left out of the document.
// The document is unchanged when Attach returns it, so callers may log it and
// continue rendering.
type AttachmentError struct {
	Kind      AttachmentErrorKind
	Reference string
	Label     string
	Err       error
}

func (e *AttachmentError) Error() string {
	ref := e.Reference
	if ref == "" {
		ref = e.Label
	}
	return fmt.Sprintf("attachment %q: %s: %v", ref, e.Kind, e.Err)
}

func (e *AttachmentError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the error against ErrAttachmentParse or ErrAttachmentFetch.
func (e *AttachmentError) Is(target error) bool {
	switch e.Kind {
	case ParseFailed:
		return target == ErrAttachmentParse
	case FetchFailed:
		return target == ErrAttachmentFetch
	}
	return false
}

// ExportStage is a step of the export pipeline.
type ExportStage int

const (
	// StageCreate covers document creation and base font embedding.
	StageCreate ExportStage = iota + 1
	// StageRender covers the caller-supplied render routine.
	StageRender
	// StageSerialize covers writing the document to bytes.
	StageSerialize
	// StageDeliver covers handing the bytes to the sink.
	StageDeliver
)

func (s ExportStage) String() string {
	switch s {
	case StageCreate:
		return "create"
	case StageRender:
		return "render"
	case StageSerialize:
		return "serialize"
	case StageDeliver:
		return "deliver"
	default:
		return fmt.Sprintf("ExportStage(%d)", int(s))
	}
}

// ExportError reports the stage at which an export failed. Nothing has been
// delivered when an ExportError is returned.
type ExportError struct {
	Stage ExportStage
	Name  string
	Err   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to export %s: %s: %v", e.Name, e.Stage, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
