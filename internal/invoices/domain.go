package invoices

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

// Direction tells payables from receivables.
type Direction string

const (
	// DirectionExternal is a supplier invoice (payable).
	DirectionExternal Direction = "external"
	// DirectionInternal is a customer invoice (receivable).
	DirectionInternal Direction = "internal"
)

// DirectionFor maps a counterparty kind to the invoice direction it bills under.
func DirectionFor(kind parties.Kind) Direction {
	if kind == parties.KindCustomer {
		return DirectionInternal
	}
	return DirectionExternal
}

// PartyKind is the counterparty kind an invoice of this direction references.
func (d Direction) PartyKind() parties.Kind {
	if d == DirectionInternal {
		return parties.KindCustomer
	}
	return parties.KindSupplier
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionExternal || d == DirectionInternal
}

// Invoice is a stored payable or receivable.
type Invoice struct {
	ID        int64           `json:"id"`
	Direction Direction       `json:"direction"`
	Reference string          `json:"reference"`
	IssueDate time.Time       `json:"issue_date"`
	DueDate   time.Time       `json:"due_date"`
	Gross     decimal.Decimal `json:"gross"`
	Net       decimal.Decimal `json:"net"`
	Tax       decimal.Decimal `json:"tax"`
	Currency  string          `json:"currency"`
	PartyID   int64           `json:"party_id"`
	ProjectID int64           `json:"project_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// Part is a line item booked against an external invoice.
type Part struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	InvoiceID   int64           `json:"invoice_id"`
	PartyID     int64           `json:"party_id"`
	ProjectID   int64           `json:"project_id"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Total is quantity times unit price.
func (p Part) Total() decimal.Decimal {
	return p.Quantity.Mul(p.UnitPrice)
}

// CreateInvoiceInput is the payload for creating an invoice.
type CreateInvoiceInput struct {
	Direction Direction       `json:"direction" validate:"required,oneof=external internal"`
	Reference string          `json:"reference" validate:"required,max=100"`
	IssueDate time.Time       `json:"issue_date" validate:"required"`
	DueDate   time.Time       `json:"due_date" validate:"required"`
	Gross     decimal.Decimal `json:"gross" validate:"gte=0"`
	Net       decimal.Decimal `json:"net" validate:"gte=0"`
	Tax       decimal.Decimal `json:"tax" validate:"gte=0"`
	Currency  string          `json:"currency" validate:"required,len=3,alpha"`
	PartyID   int64           `json:"party_id" validate:"required,gt=0"`
	ProjectID int64           `json:"project_id" validate:"required,gt=0"`
}

// CreatePartInput is the payload for creating a part. PartyID and ProjectID
// default to the parent invoice's values when zero.
type CreatePartInput struct {
	Code        string          `json:"code" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=500"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	InvoiceID   int64           `json:"invoice_id" validate:"required,gt=0"`
	PartyID     int64           `json:"party_id" validate:"gte=0"`
	ProjectID   int64           `json:"project_id" validate:"gte=0"`
}

// ListFilters narrows invoice listings.
type ListFilters struct {
	Direction Direction
	PartyID   int64
	Limit     int
	Offset    int
}
