package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntakeBatch drives one stored ingestion batch.
	TaskIntakeBatch = "intake:process_batch"
)

// IntakeBatchPayload identifies the stored batch to drive.
type IntakeBatchPayload struct {
	BatchID string `json:"batch_id"`
}

// NewIntakeBatchTask constructs an Asynq task for a stored batch. Batches are
// never retried: a partial run has already written to the backend.
func NewIntakeBatchTask(batchID string) (*asynq.Task, error) {
	if batchID == "" {
		return nil, fmt.Errorf("intake batch task: empty batch id")
	}
	data, err := json.Marshal(IntakeBatchPayload{BatchID: batchID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntakeBatch, data,
		asynq.MaxRetry(0),
		asynq.Queue(QueueDefault),
		asynq.TaskID(TaskIntakeBatch+":"+batchID),
	), nil
}
