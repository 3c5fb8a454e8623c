package intake

import (
	"context"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/invoices"
)

// Action is a reviewer's verdict on a draft.
type Action int

const (
	ActionSubmit Action = iota
	ActionSkip
	ActionAbort
)

// Decision carries the verdict and, for ActionSubmit, the possibly edited payload.
type Decision[T any] struct {
	Action  Action
	Payload T
}

// Submit accepts payload.
func Submit[T any](payload T) Decision[T] {
	return Decision[T]{Action: ActionSubmit, Payload: payload}
}

// Skip declines the draft and moves on.
func Skip[T any]() Decision[T] {
	return Decision[T]{Action: ActionSkip}
}

// Abort stops the batch.
func Abort[T any]() Decision[T] {
	return Decision[T]{Action: ActionAbort}
}

// InvoiceDraft is shown to a reviewer before an invoice is created.
type InvoiceDraft struct {
	Index      int
	Total      int
	Document   extraction.Document
	Resolution Resolution
	Input      invoices.CreateInvoiceInput
}

// PartDraft is shown to a reviewer before a part is created.
type PartDraft struct {
	Document int
	Index    int
	Total    int
	Line     extraction.LineItem
	Invoice  invoices.Invoice
	Input    invoices.CreatePartInput
}

// Reviewer makes the human decisions of an interactive batch. Returning an
// error is treated like ActionAbort.
type Reviewer interface {
	ReviewInvoice(ctx context.Context, draft InvoiceDraft) (Decision[invoices.CreateInvoiceInput], error)
	ReviewPart(ctx context.Context, draft PartDraft) (Decision[invoices.CreatePartInput], error)
}
