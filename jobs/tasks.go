package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReceivablesWarmup precomputes receivables views into the cache.
	TaskReceivablesWarmup = "receivables:warmup"

	// DefaultWarmupMonths is the trailing window warmed when the payload
	// does not specify one.
	DefaultWarmupMonths = 3
)

// WarmupPayload configures one warmup run. Empty Ledgers warms every ledger.
type WarmupPayload struct {
	Months  int      `json:"months"`
	Ledgers []string `json:"ledgers,omitempty"`
}

// NewWarmupTask constructs the Asynq task for a warmup run.
func NewWarmupTask(payload WarmupPayload) (*asynq.Task, error) {
	if payload.Months <= 0 {
		payload.Months = DefaultWarmupMonths
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReceivablesWarmup, data, asynq.Queue(QueueDefault), asynq.Timeout(10*time.Minute)), nil
}
