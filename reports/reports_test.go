package reports

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	pdflib "github.com/digitorus/pdf"
	"github.com/digitorus/pdfreport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReview() Review {
	return Review{
		Claim: Claim{
			Submission: Submission{
				ID:           "2024-017",
				Organisation: "Youth Exchange e.V.",
				Project:      "Rivers without borders",
				ContactName:  "Zoë Müller",
				ContactEmail: "zoe@example.org",
				Country:      "DE",
				StartDate:    "2024-05-01",
				EndDate:      "2024-05-08",
			},
			Participants: []Participant{
				{Name: "Anna Schmidt", Role: "Group leader", Origin: "Leipzig"},
				{Name: "Ben Okafor", Origin: "Dresden"},
			},
			Tickets: []Ticket{
				{From: "Leipzig", To: "Wrocław", Amount: 45.50, Mode: "train"},
			},
		},
		Rates: Rates{Standard: 20, Green: 10},
	}
}

// multiPagePDF returns an n-page PDF produced by the engine itself.
func multiPagePDF(t *testing.T, n int) []byte {
	t.Helper()
	data, err := pdfreport.Render(context.Background(), pdfreport.NewExporter(nil, nil),
		func(ctx context.Context, c *pdfreport.Composer, n int) error {
			for i := 1; i < n; i++ {
				c.Cursor().Detach()
				c.Paragraph(fmt.Sprintf("scan page %d", i+1))
			}
			return nil
		}, n)
	require.NoError(t, err)
	return data
}

func pdfText(t *testing.T, data []byte) (int, string) {
	t.Helper()
	r, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		rc := r.Page(i).V.Key("Contents").Reader()
		content, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		sb.Write(content)
	}
	return r.NumPage(), sb.String()
}

// hexText encodes s the way it appears in a content stream.
func hexText(s string) string {
	return fmt.Sprintf("<%x> Tj", s)
}

func TestSimpleReport(t *testing.T) {
	data, err := pdfreport.Render(context.Background(), pdfreport.NewExporter(nil, nil), AdminReview, sampleReview())
	require.NoError(t, err)

	pages, text := pdfText(t, data)
	assert.Equal(t, 1, pages)
	// List items carry the WinAnsi bullet in the same run.
	assert.Contains(t, text, hexText("\x95 Anna Schmidt (Group leader, Leipzig)"))
	assert.Contains(t, text, hexText("\x95 Ben Okafor (Dresden)"))
	assert.Contains(t, text, hexText("Total claimed: 45.50 EUR"))
	assert.Contains(t, text, hexText("20.00 EUR"))
	assert.Contains(t, text, hexText("10.00 EUR"))
}

func TestAttachmentExpansion(t *testing.T) {
	base, err := pdfreport.Render(context.Background(), pdfreport.NewExporter(nil, nil), PartnerClaim, sampleReview().Claim)
	require.NoError(t, err)
	basePages, _ := pdfText(t, base)

	claim := sampleReview().Claim
	claim.Tickets[0].FileReference = "tickets/leipzig-wroclaw.pdf"
	source := pdfreport.SourceFunc(func(ctx context.Context, ref string) ([]byte, error) {
		if ref == claim.Tickets[0].FileReference {
			return multiPagePDF(t, 3), nil
		}
		return nil, pdfreport.ErrAttachmentNotFound
	})

	data, err := pdfreport.Render(context.Background(), pdfreport.NewExporter(source, nil), PartnerClaim, claim)
	require.NoError(t, err)
	pages, text := pdfText(t, data)
	assert.Equal(t, basePages+3, pages)
	assert.Contains(t, text, hexText("Ticket 1: Leipzig -> Wroc?aw"))
	assert.Contains(t, text, hexText("train, 45.50 EUR"))
}

func TestMissingFile(t *testing.T) {
	claim := sampleReview().Claim
	claim.Tickets = append(claim.Tickets,
		Ticket{From: "Dresden", To: "Prague", Amount: 12, FileReference: "gone.pdf"},
		Ticket{From: "Prague", To: "Dresden", Amount: 12, FileReference: "broken.pdf"},
	)
	source := pdfreport.SourceFunc(func(ctx context.Context, ref string) ([]byte, error) {
		if ref == "broken.pdf" {
			return []byte("%PDF-1.4 truncated"), nil
		}
		return nil, pdfreport.ErrAttachmentNotFound
	})

	sink := pdfreport.SinkFunc(func(ctx context.Context, out pdfreport.Output) error {
		pages, text := pdfText(t, out.Data)
		assert.Equal(t, 1, pages)
		assert.Contains(t, text, hexText("Total claimed: 69.50 EUR"))
		return nil
	})
	err := pdfreport.Export(context.Background(), pdfreport.NewExporter(source, nil), PartnerClaim, claim,
		pdfreport.Filename(ClaimPrefix, claim.Submission.Organisation), sink)
	require.NoError(t, err)
}

func TestTotalClaimed(t *testing.T) {
	assert.Equal(t, 0.0, TotalClaimed(nil))
	assert.InDelta(t, 70.25, TotalClaimed([]Ticket{{Amount: 45.50}, {Amount: 24.75}}), 1e-9)
}

func TestDecode(t *testing.T) {
	yamlReview := `
submission:
  id: "2024-017"
  organisation: Youth Exchange e.V.
  contact_email: zoe@example.org
  start_date: "2024-05-01"
participants:
  - name: Anna Schmidt
    role: Group leader
tickets:
  - from: Leipzig
    to: Dresden
    amount: 45.5
    file_reference: tickets/1.pdf
rates:
  standard: 20
  green: 10
`
	var r Review
	require.NoError(t, Decode(strings.NewReader(yamlReview), YAML, &r))
	assert.Equal(t, "Youth Exchange e.V.", r.Submission.Organisation)
	assert.Equal(t, "tickets/1.pdf", r.Tickets[0].FileReference)
	assert.Equal(t, 10.0, r.Rates.Green)

	jsonClaim := `{"submission":{"id":"1","organisation":"Org"},"participants":[{"name":"A"}],"tickets":[{"from":"X","to":"Y","amount":1}]}`
	var c Claim
	require.NoError(t, Decode(strings.NewReader(jsonClaim), JSON, &c))
	assert.Equal(t, "Org", c.Submission.Organisation)
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		input  string
	}{
		{"missing organisation", JSON, `{"submission":{"id":"1"}}`},
		{"bad email", JSON, `{"submission":{"id":"1","organisation":"O","contact_email":"nope"}}`},
		{"bad date", YAML, "submission: {id: '1', organisation: O, start_date: 01.05.2024}"},
		{"negative amount", JSON, `{"submission":{"id":"1","organisation":"O"},"tickets":[{"from":"A","to":"B","amount":-1}]}`},
		{"participant without name", YAML, "submission: {id: '1', organisation: O}\nparticipants: [{role: x}]"},
		{"unknown field", JSON, `{"submission":{"id":"1","organisation":"O"},"extra":true}`},
		{"malformed", YAML, "submission: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Claim
			assert.Error(t, Decode(strings.NewReader(tt.input), tt.format, &c))
		})
	}
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, YAML, FormatOf("claim.yml"))
	assert.Equal(t, YAML, FormatOf("CLAIM.YAML"))
	assert.Equal(t, YAML, FormatOf("application/yaml"))
	assert.Equal(t, JSON, FormatOf("claim.json"))
	assert.Equal(t, JSON, FormatOf("application/json"))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("admin")
	require.NoError(t, err)
	assert.Equal(t, AdminKind, k)
	assert.Equal(t, AdminPrefix, k.Prefix())
	assert.Equal(t, ClaimPrefix, ClaimKind.Prefix())

	_, err = ParseKind("invoice")
	assert.Error(t, err)
}

func TestExportKind(t *testing.T) {
	var got []pdfreport.Output
	sink := pdfreport.SinkFunc(func(ctx context.Context, out pdfreport.Output) error {
		got = append(got, out)
		return nil
	})

	input := `{"submission":{"id":"2024 017","organisation":"Org"},"tickets":[{"from":"A","to":"B","amount":3}]}`
	name, err := Export(context.Background(), pdfreport.NewExporter(nil, nil), ClaimKind, strings.NewReader(input), JSON, sink)
	require.NoError(t, err)
	assert.Equal(t, "claim_2024_017.pdf", name)
	require.Len(t, got, 1)
	assert.Equal(t, name, got[0].Name)

	_, text := pdfText(t, got[0].Data)
	assert.Contains(t, text, hexText("Travel reimbursement claim"))

	_, err = Export(context.Background(), pdfreport.NewExporter(nil, nil), AdminKind, strings.NewReader(`{}`), JSON, sink)
	assert.Error(t, err)
	assert.Len(t, got, 1)
}

func TestExportAllKind(t *testing.T) {
	var (
		mu    sync.Mutex
		names []string
	)
	sink := pdfreport.SinkFunc(func(ctx context.Context, out pdfreport.Output) error {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, out.Name)
		return nil
	})

	inputs := map[string][]byte{
		"b.yaml": []byte("submission: {id: B, organisation: Org}\nrates: {standard: 20, green: 10}"),
		"a.json": []byte(`{"submission":{"id":"A","organisation":"Org"}}`),
	}
	require.NoError(t, ExportAll(context.Background(), pdfreport.NewExporter(nil, nil), AdminKind, inputs, sink, 2))
	assert.ElementsMatch(t, []string{"admin_review_A.pdf", "admin_review_B.pdf"}, names)

	// An undecodable input fails on its own; the others are still delivered.
	names = nil
	inputs["c.json"] = []byte(`{"submission":{`)
	err := ExportAll(context.Background(), pdfreport.NewExporter(nil, nil), AdminKind, inputs, sink, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c.json")
	assert.ElementsMatch(t, []string{"admin_review_A.pdf", "admin_review_B.pdf"}, names)
}
