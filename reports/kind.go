package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/digitorus/pdfreport"
)

// Kind names a report type.
type Kind string

const (
	AdminKind Kind = "admin"
	ClaimKind Kind = "claim"
)

// ParseKind returns the kind called name.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(name); k {
	case AdminKind, ClaimKind:
		return k, nil
	}
	return "", fmt.Errorf("unknown report kind %q", name)
}

// Prefix returns the file name prefix of the kind.
func (k Kind) Prefix() string {
	if k == AdminKind {
		return AdminPrefix
	}
	return ClaimPrefix
}

// Export decodes one record of kind k from r and exports its report to sink
// under a name derived from the submission ID. It returns that name.
func Export(ctx context.Context, e *pdfreport.Exporter, k Kind, r io.Reader, format Format, sink pdfreport.Sink) (string, error) {
	switch k {
	case AdminKind:
		var rec Review
		if err := Decode(r, format, &rec); err != nil {
			return "", err
		}
		name := pdfreport.Filename(k.Prefix(), rec.Submission.ID)
		return name, pdfreport.Export(ctx, e, AdminReview, rec, name, sink)
	case ClaimKind:
		var rec Claim
		if err := Decode(r, format, &rec); err != nil {
			return "", err
		}
		name := pdfreport.Filename(k.Prefix(), rec.Submission.ID)
		return name, pdfreport.Export(ctx, e, PartnerClaim, rec, name, sink)
	}
	return "", fmt.Errorf("unknown report kind %q", k)
}

// ExportAll decodes every input as a record of kind k and exports the reports
// concurrently, at most limit at a time. An input that cannot be decoded is
// reported in the returned error and does not stop the other exports.
func ExportAll(ctx context.Context, e *pdfreport.Exporter, k Kind, inputs map[string][]byte, sink pdfreport.Sink, limit int) error {
	switch k {
	case AdminKind:
		jobs, err := decodeJobs[Review](k, inputs)
		return errors.Join(err, pdfreport.ExportAll(ctx, e, AdminReview, jobs, sink, limit))
	case ClaimKind:
		jobs, err := decodeJobs[Claim](k, inputs)
		return errors.Join(err, pdfreport.ExportAll(ctx, e, PartnerClaim, jobs, sink, limit))
	}
	return fmt.Errorf("unknown report kind %q", k)
}

// decodeJobs decodes inputs keyed by file name in name order. It returns the
// records that decoded and the joined errors of those that did not.
func decodeJobs[T interface{ submission() Submission }](k Kind, inputs map[string][]byte) ([]pdfreport.Job[T], error) {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	jobs := make([]pdfreport.Job[T], 0, len(names))
	for _, name := range names {
		var rec T
		if err := Decode(bytes.NewReader(inputs[name]), FormatOf(name), &rec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		jobs = append(jobs, pdfreport.Job[T]{
			Name: pdfreport.Filename(k.Prefix(), rec.submission().ID),
			Data: rec,
		})
	}
	return jobs, errors.Join(errs...)
}

func (c Claim) submission() Submission { return c.Submission }
