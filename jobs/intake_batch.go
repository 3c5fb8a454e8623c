package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ledgerdesk/ledgerdesk/internal/intake"
	jobmetrics "github.com/ledgerdesk/ledgerdesk/internal/jobs"
)

// BatchRunner drives a stored batch.
type BatchRunner interface {
	Run(ctx context.Context, batchID string) (intake.Report, error)
}

// IntakeBatchJob runs queued ingestion batches.
type IntakeBatchJob struct {
	Runner  BatchRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntakeBatchJob initialises the batch handler.
func NewIntakeBatchJob(runner BatchRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntakeBatchJob {
	return &IntakeBatchJob{Runner: runner, Logger: logger, Metrics: metrics}
}

// Handle executes TaskIntakeBatch.
func (j *IntakeBatchJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Runner == nil {
		return errors.New("intake batch: handler not configured")
	}
	var payload IntakeBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.BatchID == "" {
		return fmt.Errorf("intake batch: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskIntakeBatch)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("batch_id", payload.BatchID))
	report, err := j.Runner.Run(ctx, payload.BatchID)
	switch {
	case errors.Is(err, intake.ErrBatchClaimed):
		logger.Info("intake batch already claimed")
		tracker.Skip()
		return nil
	case err != nil:
		logger.Error("intake batch failed", slog.Any("error", err))
		return fmt.Errorf("intake batch %s: %w: %w", payload.BatchID, err, asynq.SkipRetry)
	}
	logger.Info("intake batch processed",
		slog.Int("documents", report.Totals.Documents),
		slog.Int("invoices_created", report.Totals.InvoicesCreated),
		slog.Int("invoices_failed", report.Totals.InvoicesFailed),
		slog.Bool("aborted", report.Aborted),
	)
	return nil
}

func (j *IntakeBatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
