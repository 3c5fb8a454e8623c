package intake

import (
	"context"

	"github.com/ledgerdesk/ledgerdesk/internal/invoices"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

// Backend performs the writes a batch issues.
type Backend interface {
	PartyCreator
	CreateInvoice(ctx context.Context, input invoices.CreateInvoiceInput) (invoices.Invoice, error)
	CreatePart(ctx context.Context, input invoices.CreatePartInput) (invoices.Part, error)
}

// Directory lists the parties a batch starts from.
type Directory interface {
	ListParties(ctx context.Context, kind parties.Kind) ([]parties.Party, error)
}

// LocalBackend runs batches against in-process services.
type LocalBackend struct {
	Parties  *parties.Service
	Invoices *invoices.Service
}

var (
	_ Backend   = (*LocalBackend)(nil)
	_ Directory = (*LocalBackend)(nil)
)

// NewLocalBackend builds a LocalBackend.
func NewLocalBackend(partySvc *parties.Service, invoiceSvc *invoices.Service) *LocalBackend {
	return &LocalBackend{Parties: partySvc, Invoices: invoiceSvc}
}

func (b *LocalBackend) CreateParty(ctx context.Context, req parties.CreatePartyRequest) (parties.Party, error) {
	return b.Parties.Create(ctx, req)
}

func (b *LocalBackend) CreateInvoice(ctx context.Context, input invoices.CreateInvoiceInput) (invoices.Invoice, error) {
	return b.Invoices.CreateInvoice(ctx, input)
}

func (b *LocalBackend) CreatePart(ctx context.Context, input invoices.CreatePartInput) (invoices.Part, error) {
	return b.Invoices.CreatePart(ctx, input)
}

func (b *LocalBackend) ListParties(ctx context.Context, kind parties.Kind) ([]parties.Party, error) {
	return b.Parties.List(ctx, parties.ListFilters{Kind: kind})
}
