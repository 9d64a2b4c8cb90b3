package seal

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitorus/pdfreport"
)

// Sink seals each report and delivers it to Next followed by its detached
// signature named <report>.p7s.
type Sink struct {
	Sealer *Sealer
	Next   pdfreport.Sink
}

// Deliver implements pdfreport.Sink. Nothing is delivered when sealing fails.
func (s Sink) Deliver(ctx context.Context, out pdfreport.Output) error {
	sig, err := s.Sealer.Seal(ctx, out.Data)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", out.Name, err)
	}
	if err := s.Next.Deliver(ctx, out); err != nil {
		return err
	}
	return s.Next.Deliver(ctx, pdfreport.Output{
		Name:     SignatureName(out.Name),
		MIMEType: MIMEType,
		Data:     sig,
	})
}

// SignatureName returns the name of the signature delivered for a report.
func SignatureName(report string) string {
	return strings.TrimSuffix(report, ".pdf") + Extension
}
