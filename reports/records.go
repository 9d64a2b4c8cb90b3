// Package reports contains the render routines for the two report types,
// admin review and partner claim, and the records they are rendered from.
package reports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Submission is the header record of a reimbursement claim.
type Submission struct {
	ID           string `json:"id" yaml:"id" validate:"required"`
	Organisation string `json:"organisation" yaml:"organisation" validate:"required"`
	Project      string `json:"project" yaml:"project"`
	ContactName  string `json:"contact_name" yaml:"contact_name"`
	ContactEmail string `json:"contact_email" yaml:"contact_email" validate:"omitempty,email"`
	Country      string `json:"country" yaml:"country"`
	StartDate    string `json:"start_date" yaml:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate      string `json:"end_date" yaml:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Notes        string `json:"notes" yaml:"notes"`
}

// Participant is a traveller listed on a submission.
type Participant struct {
	Name   string `json:"name" yaml:"name" validate:"required"`
	Role   string `json:"role" yaml:"role"`
	Origin string `json:"origin" yaml:"origin"`
}

// Ticket is one journey. FileReference points at the stored ticket scan and
// may be empty.
type Ticket struct {
	From          string  `json:"from" yaml:"from" validate:"required"`
	To            string  `json:"to" yaml:"to" validate:"required"`
	Amount        float64 `json:"amount" yaml:"amount" validate:"gte=0"`
	Mode          string  `json:"mode" yaml:"mode"`
	FileReference string  `json:"file_reference" yaml:"file_reference"`
}

// Rates is the rate table shown on admin reviews, in EUR.
type Rates struct {
	Standard float64 `json:"standard" yaml:"standard" validate:"gte=0"`
	Green    float64 `json:"green" yaml:"green" validate:"gte=0"`
}

// Claim is the input of the partner claim report.
type Claim struct {
	Submission   Submission    `json:"submission" yaml:"submission"`
	Participants []Participant `json:"participants" yaml:"participants" validate:"dive"`
	Tickets      []Ticket      `json:"tickets" yaml:"tickets" validate:"dive"`
}

// Review is the input of the admin review report.
type Review struct {
	Claim `yaml:",inline"`
	Rates Rates `json:"rates" yaml:"rates"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a record against its struct tags.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	return nil
}

// Format selects the encoding of a record.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// FormatOf returns the format implied by a file name or media type.
// Anything that is not recognisably YAML is treated as JSON.
func FormatOf(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return YAML
	}
	if strings.Contains(name, "yaml") {
		return YAML
	}
	return JSON
}

// Decode reads one record in the given format into v and validates it.
// Unknown fields are rejected.
func Decode(r io.Reader, format Format, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}

	switch format {
	case YAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("failed to decode yaml record: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("failed to decode json record: %w", err)
		}
	}
	return Validate(v)
}
