package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ledgerdesk/ledgerdesk/internal/jobs"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
)

// TaskDirectoryWarmup refreshes the cached party directories.
const TaskDirectoryWarmup = "parties:directory_warmup"

// DirectoryRefresher rebuilds a cached directory.
type DirectoryRefresher interface {
	Invalidate(ctx context.Context, kind parties.Kind) error
	Snapshot(ctx context.Context, kind parties.Kind) ([]parties.Party, error)
}

// DirectoryWarmupJob keeps the supplier and customer directories hot so the
// first batch after expiry does not pay for the reload.
type DirectoryWarmupJob struct {
	Directory DirectoryRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewDirectoryWarmupJob initialises the warmup handler.
func NewDirectoryWarmupJob(directory DirectoryRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *DirectoryWarmupJob {
	return &DirectoryWarmupJob{Directory: directory, Logger: logger, Metrics: metrics}
}

// NewDirectoryWarmupTask constructs the periodic warmup task.
func NewDirectoryWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskDirectoryWarmup, nil, asynq.MaxRetry(0), asynq.Queue(QueueDefault))
}

// Handle executes TaskDirectoryWarmup.
func (j *DirectoryWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Directory == nil {
		return errors.New("directory warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskDirectoryWarmup)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var errs []error
	for _, kind := range []parties.Kind{parties.KindSupplier, parties.KindCustomer} {
		if err := j.Directory.Invalidate(ctx, kind); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", kind, err))
			continue
		}
		list, err := j.Directory.Snapshot(ctx, kind)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", kind, err))
			continue
		}
		logger.Debug("party directory warmed", slog.String("kind", string(kind)), slog.Int("parties", len(list)))
	}
	return errors.Join(errs...)
}
