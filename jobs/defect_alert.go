package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stocklot-erp/stocklot/internal/inventory"
)

// NewDefectAlertTask constructs the Asynq task for one crossed threshold.
func NewDefectAlertTask(alert inventory.DefectAlert) (*asynq.Task, error) {
	data, err := json.Marshal(alert)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDefectAlert, data), nil
}

// DefectAlertJob notifies operators when a build's defect rate crossed the
// company threshold.
type DefectAlertJob struct {
	Logger *slog.Logger
	// Mailer is optional; without it the alert is only logged.
	Mailer *Client
	// Recipient receives the alert emails.
	Recipient string
}

// Handle executes the defect alert delivery.
func (j *DefectAlertJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("defect alert: handler not configured")
	}
	var alert inventory.DefectAlert
	if err := json.Unmarshal(t.Payload(), &alert); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	logger.Warn("build defect rate over threshold",
		slog.Int64("company_id", alert.CompanyID),
		slog.String("tx", alert.TransactionCode),
		slog.String("sku", alert.SKU),
		slog.Int64("units_built", alert.UnitsBuilt),
		slog.Int64("defects", alert.DefectCount),
		slog.Float64("rate", alert.DefectRate),
		slog.Float64("threshold", alert.Threshold),
	)

	if j.Mailer == nil || j.Recipient == "" {
		return nil
	}
	_, err := j.Mailer.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      j.Recipient,
		Subject: fmt.Sprintf("Defect rate alert: %s (%s)", alert.SKU, alert.TransactionCode),
		Body: fmt.Sprintf("Build %s of %s produced %d defects out of %d units (%.1f%%, threshold %.1f%%).",
			alert.TransactionCode, alert.SKU, alert.DefectCount, alert.UnitsBuilt,
			alert.DefectRate*100, alert.Threshold*100),
	})
	return err
}

func (j *DefectAlertJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeDefectAlert))
	}
	return slog.Default().With(slog.String("job", TaskTypeDefectAlert))
}
