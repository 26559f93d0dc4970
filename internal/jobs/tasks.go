package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"bell24h/internal/notify"
)

// Queue and task identifiers
const (
	QueueDefault  = "default"
	QueueRealtime = "realtime"

	TaskNotificationDeliver = "notification:deliver"
	TaskRFQExpire           = "rfq:expire"

	// RFQExpiryCron runs the expiry sweep every quarter hour
	RFQExpiryCron = "*/15 * * * *"
)

// NewNotificationDeliverTask wraps an envelope for the realtime queue. Delivery is best
// effort, so the task is never retried and expires quickly.
func NewNotificationDeliverTask(env notify.Envelope) (*asynq.Task, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDeliver, payload,
		asynq.Queue(QueueRealtime),
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Second),
	), nil
}

// NewRFQExpireTask builds the periodic expiry sweep task
func NewRFQExpireTask() *asynq.Task {
	return asynq.NewTask(TaskRFQExpire, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}
