package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerdesk/ledgerdesk/internal/extraction"
	"github.com/ledgerdesk/ledgerdesk/internal/masterdata/parties"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/cache"
	"github.com/ledgerdesk/ledgerdesk/internal/platform/httpx"
)

// BatchStatus tracks a stored batch.
type BatchStatus string

const (
	BatchQueued   BatchStatus = "queued"
	BatchRunning  BatchStatus = "running"
	BatchFinished BatchStatus = "finished"
	BatchFailed   BatchStatus = "failed"
)

// ErrBatchClaimed is returned when another worker already runs a batch.
var ErrBatchClaimed = errors.New("batch already claimed")

// BatchRecord is a batch as persisted between upload and processing.
type BatchRecord struct {
	ID        string                `json:"id"`
	Kind      parties.Kind          `json:"kind"`
	Status    BatchStatus           `json:"status"`
	Documents []extraction.Document `json:"documents"`
	Report    *Report               `json:"report,omitempty"`
	Error     string                `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Batch returns the record as a driver batch.
func (r BatchRecord) Batch() Batch {
	return Batch{ID: r.ID, Kind: r.Kind, Documents: r.Documents}
}

// BatchStore keeps batch records in redis for a limited time.
type BatchStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewBatchStore builds a BatchStore.
func NewBatchStore(client redis.Cmdable, ttl time.Duration) *BatchStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &BatchStore{client: client, ttl: ttl}
}

func batchKey(id string) string     { return fmt.Sprintf("intake:batch:%s", id) }
func batchLockKey(id string) string { return fmt.Sprintf("intake:batch:%s:lock", id) }

// Save writes rec, stamping UpdatedAt.
func (s *BatchStore) Save(ctx context.Context, rec BatchRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	return cache.SetJSON(ctx, s.client, batchKey(rec.ID), rec, s.ttl)
}

// Load reads a batch record.
func (s *BatchStore) Load(ctx context.Context, id string) (BatchRecord, error) {
	var rec BatchRecord
	err := cache.GetJSON(ctx, s.client, batchKey(id), &rec)
	if errors.Is(err, cache.ErrMiss) {
		return BatchRecord{}, fmt.Errorf("batch %s: %w", id, httpx.ErrNotFound)
	}
	return rec, err
}

// Claim marks a batch as taken so it is driven at most once.
func (s *BatchStore) Claim(ctx context.Context, id string) error {
	ok, err := s.client.SetNX(ctx, batchLockKey(id), time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim batch %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("batch %s: %w", id, ErrBatchClaimed)
	}
	return nil
}

// Finish stores the report of a driven batch.
func (s *BatchStore) Finish(ctx context.Context, id string, report Report) error {
	rec, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	rec.Status = BatchFinished
	rec.Report = &report
	return s.Save(ctx, rec)
}

// Fail marks a batch as failed before it could be driven.
func (s *BatchStore) Fail(ctx context.Context, id string, cause error) error {
	rec, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	rec.Status = BatchFailed
	rec.Error = cause.Error()
	return s.Save(ctx, rec)
}
