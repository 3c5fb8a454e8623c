package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
)

// Extractor turns uploaded files into documents.
type Extractor interface {
	Extract(ctx context.Context, files []extraction.File) ([]extraction.Document, error)
}

// Enqueuer schedules a stored batch for background processing.
type Enqueuer interface {
	EnqueueIntakeBatch(ctx context.Context, batchID string) error
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Extractor Extractor
	Store     *BatchStore
	Enqueuer  Enqueuer
	Directory Directory
	Backend   Backend
	Matcher   Matcher
	Defaults  BuildDefaults
	Metrics   *Metrics
	Logger    *slog.Logger
}

// Service accepts uploads and drives stored batches.
type Service struct {
	cfg    ServiceConfig
	logger *slog.Logger
}

// NewService builds a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, logger: logger}
}

// Submit extracts files, stores the batch and queues it. Extraction failure
// fails the whole upload and nothing is stored.
func (s *Service) Submit(ctx context.Context, kind parties.Kind, files []extraction.File) (BatchRecord, error) {
	if kind != parties.KindSupplier && kind != parties.KindCustomer {
		return BatchRecord{}, fmt.Errorf("%w: unknown party kind %q", httpx.ErrValidation, kind)
	}
	if len(files) == 0 {
		return BatchRecord{}, fmt.Errorf("%w: no files uploaded", httpx.ErrValidation)
	}
	docs, err := s.cfg.Extractor.Extract(ctx, files)
	if err != nil {
		return BatchRecord{}, fmt.Errorf("%w: %w", httpx.ErrUpstream, err)
	}
	for i := range docs {
		docs[i] = docs[i].WithoutPreview()
	}

	rec := BatchRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    BatchQueued,
		Documents: docs,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.cfg.Store.Save(ctx, rec); err != nil {
		return BatchRecord{}, err
	}
	if err := s.cfg.Enqueuer.EnqueueIntakeBatch(ctx, rec.ID); err != nil {
		return BatchRecord{}, s.fail(ctx, rec.ID, fmt.Errorf("enqueue batch %s: %w", rec.ID, err))
	}
	s.logger.Info("intake batch queued",
		slog.String("batch_id", rec.ID),
		slog.String("kind", string(kind)),
		slog.Int("files", len(files)),
		slog.Int("documents", len(docs)),
	)
	return rec, nil
}

// Batch loads a stored batch.
func (s *Service) Batch(ctx context.Context, id string) (BatchRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return BatchRecord{}, fmt.Errorf("%w: invalid batch id", httpx.ErrValidation)
	}
	return s.cfg.Store.Load(ctx, id)
}

// Run drives a stored batch silently and stores its report. A batch already
// claimed by another run is left alone.
func (s *Service) Run(ctx context.Context, batchID string) (Report, error) {
	if err := s.cfg.Store.Claim(ctx, batchID); err != nil {
		return Report{}, err
	}
	rec, err := s.cfg.Store.Load(ctx, batchID)
	if err != nil {
		return Report{}, s.fail(ctx, batchID, err)
	}
	rec.Status = BatchRunning
	if err := s.cfg.Store.Save(ctx, rec); err != nil {
		return Report{}, s.fail(ctx, batchID, err)
	}

	known, err := s.cfg.Directory.ListParties(ctx, rec.Kind)
	if err != nil {
		return Report{}, s.fail(ctx, batchID, fmt.Errorf("load %s directory: %w", rec.Kind, err))
	}

	driver := NewDriver(DriverConfig{
		Backend:  s.cfg.Backend,
		Matcher:  s.cfg.Matcher,
		Defaults: s.cfg.Defaults,
		Metrics:  s.cfg.Metrics,
		Logger:   s.logger,
	})
	report := driver.Process(ctx, rec.Batch(), NewPool(rec.Kind, known))

	// the report must be stored even when the job context is gone
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.cfg.Store.Finish(saveCtx, batchID, report); err != nil {
		return report, err
	}
	return report, nil
}

// fail marks the batch failed with cause and returns cause, joined with any
// error from recording it.
func (s *Service) fail(ctx context.Context, batchID string, cause error) error {
	if err := s.cfg.Store.Fail(ctx, batchID, cause); err != nil {
		s.logger.Error("mark intake batch failed",
			slog.String("batch_id", batchID),
			slog.Any("cause", cause),
			slog.Any("error", err),
		)
		return errors.Join(cause, err)
	}
	return cause
}
