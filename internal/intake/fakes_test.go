package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/invoices"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

var errBackendDown = errors.New("backend unavailable")

// fakeBackend records every write in order and fails on demand.
type fakeBackend struct {
	mu          sync.Mutex
	events      []string
	parties     []parties.Party
	invoices    []invoices.Invoice
	parts       []invoices.Part
	failParty   error
	failInvoice map[string]error
	failPart    map[string]error
	onInvoice   func(input invoices.CreateInvoiceInput)

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func newFakeBackend(seed ...parties.Party) *fakeBackend {
	return &fakeBackend{
		parties:     append([]parties.Party(nil), seed...),
		failInvoice: map[string]error{},
		failPart:    map[string]error{},
	}
}

func (f *fakeBackend) enter() func() {
	n := f.inflight.Add(1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return func() { f.inflight.Add(-1) }
}

func (f *fakeBackend) log(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeBackend) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeBackend) CreateParty(ctx context.Context, req parties.CreatePartyRequest) (parties.Party, error) {
	defer f.enter()()
	f.log("party:" + req.Name)
	if f.failParty != nil {
		return parties.Party{}, f.failParty
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := parties.Party{ID: int64(100 + len(f.parties)), Kind: req.Kind, Name: req.Name, TaxID: req.TaxID, PostalCode: req.PostalCode}
	f.parties = append(f.parties, p)
	return p, nil
}

func (f *fakeBackend) CreateInvoice(ctx context.Context, input invoices.CreateInvoiceInput) (invoices.Invoice, error) {
	defer f.enter()()
	f.log("invoice:" + input.Reference)
	if f.onInvoice != nil {
		f.onInvoice(input)
	}
	if err := f.failInvoice[input.Reference]; err != nil {
		return invoices.Invoice{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	inv := invoices.Invoice{
		ID:        int64(len(f.invoices) + 1),
		Direction: input.Direction,
		Reference: input.Reference,
		IssueDate: input.IssueDate,
		DueDate:   input.DueDate,
		Gross:     input.Gross,
		Net:       input.Net,
		Tax:       input.Tax,
		Currency:  input.Currency,
		PartyID:   input.PartyID,
		ProjectID: input.ProjectID,
	}
	f.invoices = append(f.invoices, inv)
	return inv, nil
}

func (f *fakeBackend) CreatePart(ctx context.Context, input invoices.CreatePartInput) (invoices.Part, error) {
	defer f.enter()()
	f.mu.Lock()
	ref := ""
	for _, inv := range f.invoices {
		if inv.ID == input.InvoiceID {
			ref = inv.Reference
		}
	}
	f.mu.Unlock()
	f.log(fmt.Sprintf("part:%s/%s", ref, input.Code))
	if ref == "" {
		return invoices.Part{}, fmt.Errorf("invoice %d does not exist", input.InvoiceID)
	}
	if err := f.failPart[input.Code]; err != nil {
		return invoices.Part{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	part := invoices.Part{
		ID:        int64(len(f.parts) + 1),
		Code:      input.Code,
		Quantity:  input.Quantity,
		UnitPrice: input.UnitPrice,
		InvoiceID: input.InvoiceID,
		PartyID:   input.PartyID,
		ProjectID: input.ProjectID,
	}
	f.parts = append(f.parts, part)
	return part, nil
}

func (f *fakeBackend) ListParties(ctx context.Context, kind parties.Kind) ([]parties.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []parties.Party
	for _, p := range f.parties {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out, nil
}

func amount(s string) extraction.Amount {
	return extraction.NewAmount(decimal.RequireFromString(s))
}

func supplierDoc(ref, name, taxID string, lineCodes ...string) extraction.Document {
	doc := extraction.Document{
		PartyName: name,
		TaxID:     taxID,
		Reference: ref,
		IssueDate: "2024-01-01",
		Gross:     amount("120"),
		Net:       amount("100"),
		Tax:       amount("20"),
		Currency:  "MAD",
	}
	for _, code := range lineCodes {
		doc.Lines = append(doc.Lines, extraction.LineItem{Code: code, Quantity: amount("1"), UnitPrice: amount("10")})
	}
	return doc
}

func fixedClock() time.Time {
	return time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)
}
