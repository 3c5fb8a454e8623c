// Package extraction talks to the document extraction backend that turns
// uploaded invoice files into structured records.
package extraction

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is an optional extracted number. It accepts JSON numbers, numeric
// strings (with either '.' or ',' as decimal separator), null and "".
type Amount struct {
	decimal.NullDecimal
}

// NewAmount returns a present Amount.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{decimal.NullDecimal{Decimal: d, Valid: true}}
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	raw = strings.TrimSpace(strings.Trim(raw, `"`))
	if raw == "" || raw == "null" {
		*a = Amount{}
		return nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return fmt.Errorf("extraction: invalid amount %q: %w", raw, err)
	}
	*a = NewAmount(d)
	return nil
}

// Or returns the amount or fallback when absent.
func (a Amount) Or(fallback decimal.Decimal) decimal.Decimal {
	if a.Valid {
		return a.Decimal
	}
	return fallback
}

// Document is one invoice as read by the extraction backend. Any field may be
// missing; numeric fields use Amount so absence is distinguishable from zero.
type Document struct {
	Filename   string     `json:"filename,omitempty"`
	PartyName  string     `json:"party_name"`
	TaxID      string     `json:"tax_id"`
	PostalCode string     `json:"postal_code"`
	Gross      Amount     `json:"gross"`
	Net        Amount     `json:"net"`
	Tax        Amount     `json:"tax"`
	Currency   string     `json:"currency"`
	IssueDate  string     `json:"issue_date"`
	Reference  string     `json:"reference"`
	Lines      []LineItem `json:"lines"`

	// Preview is the rendered page image, base64 encoded.
	Preview string `json:"preview,omitempty"`
	// Thumbnail is a downscaled PNG of Preview, base64 encoded.
	Thumbnail string `json:"thumbnail,omitempty"`
}

// LineItem is one extracted invoice line.
type LineItem struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Quantity    Amount `json:"quantity"`
	UnitPrice   Amount `json:"unit_price"`
}

// Label identifies a document in notices and logs.
func (d Document) Label() string {
	switch {
	case d.Reference != "" && d.Filename != "":
		return d.Filename + " (" + d.Reference + ")"
	case d.Reference != "":
		return d.Reference
	case d.Filename != "":
		return d.Filename
	default:
		return "unnamed document"
	}
}

// WithoutPreview drops the full-size preview and keeps the thumbnail.
func (d Document) WithoutPreview() Document {
	d.Preview = ""
	return d
}
