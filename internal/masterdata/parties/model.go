package parties

import (
	"strings"
	"time"
)

// Kind distinguishes suppliers from customers.
type Kind string

const (
	KindSupplier Kind = "supplier"
	KindCustomer Kind = "customer"
)

// UnknownTaxID is stored when a party's tax identifier could not be read.
const UnknownTaxID = "00000"

// ParseKind accepts singular or plural forms ("suppliers").
func ParseKind(raw string) (Kind, bool) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "s") {
	case string(KindSupplier):
		return KindSupplier, true
	case string(KindCustomer):
		return KindCustomer, true
	default:
		return "", false
	}
}

// Party is a supplier or customer known to the ledger.
type Party struct {
	ID         int64     `json:"id"`
	Kind       Kind      `json:"kind"`
	Name       string    `json:"name"`
	TaxID      string    `json:"tax_id"`
	PostalCode string    `json:"postal_code"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasKnownTaxID reports whether the tax id is something other than a placeholder.
func (p Party) HasKnownTaxID() bool {
	return IsKnownTaxID(p.TaxID)
}

// IsKnownTaxID reports whether raw carries a real identifier.
func IsKnownTaxID(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", UnknownTaxID, "unknown":
		return false
	}
	return true
}

// CreatePartyRequest is the input for Service.Create.
type CreatePartyRequest struct {
	Kind       Kind   `json:"kind" validate:"required,oneof=supplier customer"`
	Name       string `json:"name" validate:"required,max=200"`
	TaxID      string `json:"tax_id" validate:"required,max=50"`
	PostalCode string `json:"postal_code" validate:"omitempty,max=20"`
}

// ListFilters narrows List results.
type ListFilters struct {
	Kind   Kind
	Search string
	Limit  int
	Offset int
}
