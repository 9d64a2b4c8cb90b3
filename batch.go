package pdfreport

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Job is one report of a batch.
type Job[T any] struct {
	Name string
	Data T
}

// ExportAll exports every job with at most limit exports running at once.
// Each job owns its document; a failing job is not delivered and does not
// stop the others. The returned error joins the *ExportError of every failed
// job.
func ExportAll[T any](ctx context.Context, e *Exporter, fn RenderFunc[T], jobs []Job[T], sink Sink, limit int) error {
	if limit < 1 {
		limit = 1
	}

	errs := make([]error, len(jobs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, job := range jobs {
		g.Go(func() error {
			errs[i] = Export(ctx, e, fn, job.Data, job.Name, sink)
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
