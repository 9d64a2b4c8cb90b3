package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/digitorus/pdfreport"
)

// File name prefixes of the two report types.
const (
	AdminPrefix = "admin_review"
	ClaimPrefix = "claim"
)

// AdminReview renders the report the programme office uses to check a
// submission, including the rate table it is assessed against.
func AdminReview(ctx context.Context, c *pdfreport.Composer, r Review) error {
	c.Title("Admin review")
	submission(c, r.Submission)
	c.Line()

	c.Subtitle("Rates")
	c.Field("Standard:", euro(r.Rates.Standard))
	c.Field("Green travel:", euro(r.Rates.Green))
	c.Line()

	participants(c, r.Participants)
	c.Line()
	tickets(c, r.Tickets)
	notes(c, r.Submission.Notes)

	return attachTickets(ctx, c, r.Tickets)
}

// PartnerClaim renders the claim a partner organisation signs and submits.
func PartnerClaim(ctx context.Context, c *pdfreport.Composer, cl Claim) error {
	c.Title("Travel reimbursement claim")
	submission(c, cl.Submission)
	c.Line()

	participants(c, cl.Participants)
	c.Line()
	tickets(c, cl.Tickets)
	notes(c, cl.Submission.Notes)

	c.Spacer(pdfreport.LineHeight)
	c.Field("Place, date:", "")
	c.Field("Signature:", "")

	return attachTickets(ctx, c, cl.Tickets)
}

// TotalClaimed returns the sum of all ticket amounts.
func TotalClaimed(tickets []Ticket) float64 {
	var total float64
	for _, t := range tickets {
		total += t.Amount
	}
	return total
}

// Route describes a ticket as "From -> To".
func (t Ticket) Route() string {
	return t.From + " -> " + t.To
}

func submission(c *pdfreport.Composer, s Submission) {
	c.Field("Submission:", s.ID)
	c.Field("Organisation:", s.Organisation)
	c.Field("Project:", s.Project)
	c.Field("Contact:", s.ContactName)
	c.Field("Email:", s.ContactEmail)
	c.Field("Country:", s.Country)
	c.Field("Period:", period(s.StartDate, s.EndDate))
}

func participants(c *pdfreport.Composer, ps []Participant) {
	c.Subtitle(fmt.Sprintf("Participants (%d)", len(ps)))
	if len(ps) == 0 {
		c.Paragraph("No participants listed.")
		return
	}
	items := make([]string, 0, len(ps))
	for _, p := range ps {
		var details []string
		for _, d := range []string{p.Role, p.Origin} {
			if strings.TrimSpace(d) != "" {
				details = append(details, d)
			}
		}
		if len(details) == 0 {
			items = append(items, p.Name)
			continue
		}
		items = append(items, fmt.Sprintf("%s (%s)", p.Name, strings.Join(details, ", ")))
	}
	c.List(items)
}

func tickets(c *pdfreport.Composer, ts []Ticket) {
	c.Subtitle(fmt.Sprintf("Tickets (%d)", len(ts)))
	for i, t := range ts {
		value := t.Route() + ", " + euro(t.Amount)
		if t.Mode != "" {
			value += " (" + t.Mode + ")"
		}
		c.Field(fmt.Sprintf("Ticket %d:", i+1), value)
	}
	c.Spacer(pdfreport.LineHeight / 2)
	c.Subtitle(fmt.Sprintf("Total claimed: %.2f EUR", TotalClaimed(ts)))
}

func notes(c *pdfreport.Composer, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.Line()
	c.Subtitle("Notes")
	c.Paragraph(text)
}

// attachTickets appends the stored scan of every ticket in ticket order.
// Tickets whose file cannot be embedded are logged and left out.
func attachTickets(ctx context.Context, c *pdfreport.Composer, ts []Ticket) error {
	for i, t := range ts {
		err := c.Attach(ctx, pdfreport.Attachment{
			Reference: t.FileReference,
			Label:     fmt.Sprintf("Ticket %d: %s", i+1, t.Route()),
			Caption:   caption(t),
		})
		var ae *pdfreport.AttachmentError
		switch {
		case err == nil:
		case errors.As(err, &ae):
			c.Logger().Warn("ticket attachment skipped", "ticket", i+1, "attachment", t.FileReference, "err", err)
		default:
			return fmt.Errorf("failed to attach ticket %d: %w", i+1, err)
		}
	}
	return nil
}

func caption(t Ticket) string {
	if t.Mode == "" {
		return euro(t.Amount)
	}
	return t.Mode + ", " + euro(t.Amount)
}

func period(start, end string) string {
	switch {
	case start == "" && end == "":
		return ""
	case end == "":
		return "from " + start
	case start == "":
		return "until " + end
	}
	return start + " - " + end
}

func euro(amount float64) string {
	return fmt.Sprintf("%.2f EUR", amount)
}
