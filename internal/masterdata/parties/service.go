package parties

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
	"github.com/ledgerdesk/ledgerdesk/internal/shared"
)

// Service coordinates party use cases.
type Service struct {
	repo      Repository
	directory *Directory
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService builds a Service. directory may be nil when no cache is available.
func NewService(repo Repository, directory *Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: directory, validate: shared.NewValidator(), logger: logger}
}

// List returns parties of one kind, optionally filtered by a search term.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Party, error) {
	if filters.Kind != KindSupplier && filters.Kind != KindCustomer {
		return nil, fmt.Errorf("%w: unknown party kind %q", httpx.ErrValidation, filters.Kind)
	}
	if filters.Search == "" && filters.Limit <= 0 && s.directory != nil {
		return s.directory.Snapshot(ctx, filters.Kind)
	}
	return s.repo.List(ctx, filters)
}

// Get loads a party by id.
func (s *Service) Get(ctx context.Context, id int64) (Party, error) {
	if id <= 0 {
		return Party{}, fmt.Errorf("%w: invalid party id", httpx.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// Create validates and stores a new party, then drops the cached directory for its kind.
func (s *Service) Create(ctx context.Context, req CreatePartyRequest) (Party, error) {
	req = normalizeRequest(req)
	if err := validateRequest(s.validate, req); err != nil {
		return Party{}, err
	}
	party, err := s.repo.Create(ctx, Party{
		Kind:       req.Kind,
		Name:       req.Name,
		TaxID:      req.TaxID,
		PostalCode: req.PostalCode,
	})
	if err != nil {
		return Party{}, err
	}
	if s.directory != nil {
		if err := s.directory.Invalidate(ctx, party.Kind); err != nil {
			s.logger.Warn("invalidate party directory", slog.String("kind", string(party.Kind)), slog.Any("error", err))
		}
	}
	s.logger.Info("party created",
		slog.Int64("party_id", party.ID),
		slog.String("kind", string(party.Kind)),
		slog.String("tax_id", party.TaxID),
	)
	return party, nil
}
