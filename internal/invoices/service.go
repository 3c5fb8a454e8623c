package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
	"github.com/ledgerdesk/ledgerdesk/internal/shared"
)

var (
	// ErrInvoiceNotFound is returned when an invoice id does not exist.
	ErrInvoiceNotFound = fmt.Errorf("invoice not found: %w", httpx.ErrNotFound)
	// ErrPartsOnReceivable rejects parts on customer invoices.
	ErrPartsOnReceivable = fmt.Errorf("%w: parts can only be booked on external invoices", httpx.ErrValidation)
)

// PartyLookup resolves counterparties referenced by invoices.
type PartyLookup interface {
	Get(ctx context.Context, id int64) (parties.Party, error)
}

// Service coordinates invoice and part use cases.
type Service struct {
	repo     Repository
	parties  PartyLookup
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds a Service.
func NewService(repo Repository, lookup PartyLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, parties: lookup, validate: shared.NewValidator(), logger: logger}
}

func day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateInvoice validates the payload, checks the counterparty and stores the invoice.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	input.Reference = strings.TrimSpace(input.Reference)
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	input.IssueDate = day(input.IssueDate)
	input.DueDate = day(input.DueDate)

	if err := s.validate.Struct(input); err != nil {
		return Invoice{}, fmt.Errorf("%w: %s", httpx.ErrValidation, shared.ValidationMessage(err))
	}
	if input.DueDate.Before(input.IssueDate) {
		return Invoice{}, fmt.Errorf("%w: due_date precedes issue_date", httpx.ErrValidation)
	}
	if s.parties != nil {
		party, err := s.parties.Get(ctx, input.PartyID)
		if errors.Is(err, httpx.ErrNotFound) {
			return Invoice{}, fmt.Errorf("%w: party %d does not exist", httpx.ErrValidation, input.PartyID)
		}
		if err != nil {
			return Invoice{}, err
		}
		if party.Kind != input.Direction.PartyKind() {
			return Invoice{}, fmt.Errorf("%w: %s invoice cannot reference a %s", httpx.ErrValidation, input.Direction, party.Kind)
		}
	}

	var created Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.InsertInvoice(ctx, Invoice{
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
		})
		if err != nil {
			return err
		}
		created = inv
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	s.logger.Info("invoice created",
		slog.Int64("invoice_id", created.ID),
		slog.String("direction", string(created.Direction)),
		slog.String("reference", created.Reference),
		slog.Int64("party_id", created.PartyID),
	)
	return created, nil
}

// GetInvoice loads an invoice by id.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	if id <= 0 {
		return Invoice{}, ErrInvoiceNotFound
	}
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns invoices matching filters, newest first.
func (s *Service) ListInvoices(ctx context.Context, filters ListFilters) ([]Invoice, error) {
	if filters.Direction != "" && !filters.Direction.Valid() {
		return nil, fmt.Errorf("%w: unknown direction %q", httpx.ErrValidation, filters.Direction)
	}
	return s.repo.ListInvoices(ctx, filters)
}

// CreatePart books a line item on an existing external invoice.
func (s *Service) CreatePart(ctx context.Context, input CreatePartInput) (Part, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validate.Struct(input); err != nil {
		return Part{}, fmt.Errorf("%w: %s", httpx.ErrValidation, shared.ValidationMessage(err))
	}

	var created Part
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.LockInvoice(ctx, input.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Direction != DirectionExternal {
			return ErrPartsOnReceivable
		}
		partyID, projectID := input.PartyID, input.ProjectID
		if partyID == 0 {
			partyID = inv.PartyID
		}
		if projectID == 0 {
			projectID = inv.ProjectID
		}
		if partyID != inv.PartyID {
			return fmt.Errorf("%w: part party %d differs from invoice party %d", httpx.ErrValidation, partyID, inv.PartyID)
		}
		part, err := tx.InsertPart(ctx, Part{
			Code:        input.Code,
			Description: input.Description,
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			InvoiceID:   inv.ID,
			PartyID:     partyID,
			ProjectID:   projectID,
		})
		if err != nil {
			return err
		}
		created = part
		return nil
	})
	if err != nil {
		return Part{}, err
	}
	s.logger.Debug("part created", slog.Int64("part_id", created.ID), slog.Int64("invoice_id", created.InvoiceID))
	return created, nil
}

// ListParts returns the parts of an invoice in creation order.
func (s *Service) ListParts(ctx context.Context, invoiceID int64) ([]Part, error) {
	if _, err := s.GetInvoice(ctx, invoiceID); err != nil {
		return nil, err
	}
	return s.repo.ListParts(ctx, invoiceID)
}
