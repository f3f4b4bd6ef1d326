package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocklot-erp/stocklot/internal/forecast"
)

// ReorderDigestPayload scopes one digest run. CompanyID zero scans every
// active company.
type ReorderDigestPayload struct {
	CompanyID int64 `json:"company_id"`
}

// NewReorderDigestTask constructs the nightly low-stock scan task.
func NewReorderDigestTask(payload ReorderDigestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReorderDigest, data), nil
}

// ReorderDigestJob runs the forecast engine over every active component and
// emails a digest of those at or below their reorder band.
type ReorderDigestJob struct {
	Pool      *pgxpool.Pool
	Forecasts *forecast.Service
	Logger    *slog.Logger
	Mailer    *Client
	Recipient string
	clock     func() time.Time
}

// NewReorderDigestJob initialises the digest handler.
func NewReorderDigestJob(pool *pgxpool.Pool, forecasts *forecast.Service, logger *slog.Logger, mailer *Client, recipient string) *ReorderDigestJob {
	return &ReorderDigestJob{
		Pool:      pool,
		Forecasts: forecasts,
		Logger:    logger,
		Mailer:    mailer,
		Recipient: recipient,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the digest scan.
func (j *ReorderDigestJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Forecasts == nil {
		return errors.New("reorder digest: handler not configured")
	}
	var payload ReorderDigestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	logger := j.logger()
	logger.Info("starting reorder digest scan")

	companyIDs, err := j.companyIDs(ctx, payload.CompanyID)
	if err != nil {
		logger.Error("company list failed", slog.Any("error", err))
		return err
	}

	var scanned, flagged int
	for _, companyID := range companyIDs {
		forecasts, err := j.Forecasts.GetForecast(ctx, forecast.Query{CompanyID: companyID})
		if err != nil {
			logger.Error("forecast failed", slog.Int64("company_id", companyID), slog.Any("error", err))
			continue
		}
		scanned += len(forecasts)
		low := forecast.BelowReorderPoint(forecasts)
		if len(low) == 0 {
			continue
		}
		flagged += len(low)
		for _, f := range low {
			logger.Warn("component below reorder band",
				slog.Int64("company_id", companyID),
				slog.String("sku", f.ComponentSKU),
				slog.Float64("on_hand", f.QuantityOnHand),
				slog.Float64("reorder_point", f.ReorderPoint),
				slog.String("status", string(f.ReorderStatus)),
			)
		}
		if err := j.sendDigest(ctx, companyID, low); err != nil {
			logger.Error("digest email failed", slog.Int64("company_id", companyID), slog.Any("error", err))
		}
	}

	logger.Info("completed reorder digest scan",
		slog.Int("companies", len(companyIDs)),
		slog.Int("components", scanned),
		slog.Int("flagged", flagged),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ReorderDigestJob) companyIDs(ctx context.Context, companyID int64) ([]int64, error) {
	if companyID > 0 {
		return []int64{companyID}, nil
	}
	if j.Pool == nil {
		return nil, errors.New("reorder digest: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT id FROM companies WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *ReorderDigestJob) sendDigest(ctx context.Context, companyID int64, low []forecast.Forecast) error {
	if j.Mailer == nil || j.Recipient == "" {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d component(s) at or below reorder band:\n\n", len(low))
	for _, f := range low {
		fmt.Fprintf(&b, "- %s (%s): on hand %.1f, reorder point %.1f, rate %.2f/day",
			f.ComponentSKU, f.ReorderStatus, f.QuantityOnHand, f.ReorderPoint, f.AverageDailyConsumption)
		if f.DaysUntilRunout != nil {
			fmt.Fprintf(&b, ", runs out in %d day(s)", *f.DaysUntilRunout)
		}
		if f.RecommendedReorderQty > 0 {
			fmt.Fprintf(&b, ", reorder %.0f", f.RecommendedReorderQty)
		}
		b.WriteString("\n")
	}
	_, err := j.Mailer.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      j.Recipient,
		Subject: fmt.Sprintf("Reorder digest: company %d", companyID),
		Body:    b.String(),
	})
	return err
}

func (j *ReorderDigestJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeReorderDigest))
	}
	return slog.Default().With(slog.String("job", TaskTypeReorderDigest))
}

func (j *ReorderDigestJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
