package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeDefectAlert is the task type for build defect-rate alerts.
	TaskTypeDefectAlert = "inventory:defect_alert"
	// TaskTypeReorderDigest is the task type for the nightly low-stock scan.
	TaskTypeReorderDigest = "forecast:reorder_digest"
	// TaskTypeIdempotencyCleanup is the task type for purging stale
	// idempotency keys.
	TaskTypeIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// SendEmailPayload carries an outbound notification. Defect alerts and the
// reorder digest both fan out through this task.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask wraps the payload in an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks. A payload that does
// not decode will never decode, so it is dropped rather than retried.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode email payload: %v: %w", err, asynq.SkipRetry)
	}
	// TODO: wire the SMTP relay once provisioned; until then log-and-drop.
	fmt.Printf("[jobs] send email to=%s subject=%q\n", payload.To, payload.Subject)
	return nil
}
