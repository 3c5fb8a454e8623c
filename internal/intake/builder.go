package intake

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/invoices"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

const (
	// DefaultDueAfterDays is the payment term applied to extracted invoices.
	DefaultDueAfterDays = 60
	// DefaultCurrency is used when a document shows no currency.
	DefaultCurrency = "MAD"
	// DefaultProjectID is the project extracted invoices are booked to.
	DefaultProjectID int64 = 1
	// MissingReference stands in for an unreadable invoice reference or part code.
	MissingReference = "N/A"
)

// ErrBuild wraps documents that cannot be turned into a create request.
var ErrBuild = errors.New("build invoice")

// BuildDefaults supplies values documents do not carry.
type BuildDefaults struct {
	ProjectID    int64
	Currency     string
	DueAfterDays int
}

// DefaultBuildDefaults returns the stock defaults.
func DefaultBuildDefaults() BuildDefaults {
	return BuildDefaults{ProjectID: DefaultProjectID, Currency: DefaultCurrency, DueAfterDays: DefaultDueAfterDays}
}

func (d BuildDefaults) normalized() BuildDefaults {
	if d.ProjectID <= 0 {
		d.ProjectID = DefaultProjectID
	}
	if strings.TrimSpace(d.Currency) == "" {
		d.Currency = DefaultCurrency
	}
	if d.DueAfterDays < 0 {
		d.DueAfterDays = DefaultDueAfterDays
	}
	return d
}

var issueDateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2006/01/02",
	"02-01-2006",
	"02.01.2006",
	time.RFC3339,
}

// ParseIssueDate reads an extracted date. ok is false when raw is empty or unreadable.
func ParseIssueDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range issueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// BuildInvoice turns a document into a create request booked against party.
// Without a readable issue date both issue and due date fall on now.
func BuildInvoice(doc extraction.Document, direction invoices.Direction, party parties.Party, defaults BuildDefaults, now time.Time) (invoices.CreateInvoiceInput, error) {
	defaults = defaults.normalized()
	if party.ID <= 0 {
		return invoices.CreateInvoiceInput{}, fmt.Errorf("%w: party has no id", ErrBuild)
	}

	issue, ok := ParseIssueDate(doc.IssueDate)
	due := issue.AddDate(0, 0, defaults.DueAfterDays)
	if !ok {
		issue = truncateDay(now.UTC())
		due = issue
	}

	gross := doc.Gross.Or(decimal.Zero)
	tax := doc.Tax.Or(decimal.Zero)
	net := doc.Net.Or(decimal.Zero)
	if !doc.Net.Valid && doc.Gross.Valid && doc.Tax.Valid {
		net = gross.Sub(tax)
	}
	for _, amount := range []struct {
		name  string
		value decimal.Decimal
	}{{"gross", gross}, {"net", net}, {"tax", tax}} {
		if amount.value.IsNegative() {
			return invoices.CreateInvoiceInput{}, fmt.Errorf("%w: negative %s amount %s", ErrBuild, amount.name, amount.value)
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(doc.Currency))
	if currency == "" {
		currency = strings.ToUpper(defaults.Currency)
	}
	reference := strings.TrimSpace(doc.Reference)
	if reference == "" {
		reference = MissingReference
	}

	return invoices.CreateInvoiceInput{
		Direction: direction,
		Reference: reference,
		IssueDate: issue,
		DueDate:   due,
		Gross:     gross.Round(2),
		Net:       net.Round(2),
		Tax:       tax.Round(2),
		Currency:  currency,
		PartyID:   party.ID,
		ProjectID: defaults.ProjectID,
	}, nil
}

// BuildPart turns an extracted line into a part on inv.
func BuildPart(line extraction.LineItem, inv invoices.Invoice) invoices.CreatePartInput {
	code := strings.TrimSpace(line.Code)
	if code == "" {
		code = MissingReference
	}
	return invoices.CreatePartInput{
		Code:        code,
		Description: strings.TrimSpace(line.Description),
		Quantity:    line.Quantity.Or(decimal.NewFromInt(1)),
		UnitPrice:   line.UnitPrice.Or(decimal.Zero),
		InvoiceID:   inv.ID,
		PartyID:     inv.PartyID,
		ProjectID:   inv.ProjectID,
	}
}
