package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/reports"
)

// LowStockSource lists products close to their minimum stock.
type LowStockSource interface {
	LowStock(ctx context.Context, thresholdPct int) ([]reports.LowStockItem, error)
}

// LowStockCheckJob warns about every product at or near its minimum stock and
// exports the count of critical products as a gauge.
type LowStockCheckJob struct {
	Source  LowStockSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockCheckJob wires dependencies for the check handler.
func NewLowStockCheckJob(source LowStockSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockCheckJob {
	return &LowStockCheckJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLowStockCheck tasks.
func (j *LowStockCheckJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("low stock check: handler not configured")
	}
	var payload LowStockPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.Metrics.Track(TaskLowStockCheck)
	defer func() { err = tracker.End(err) }()

	items, err := j.Source.LowStock(ctx, payload.ThresholdPercentage)
	if err != nil {
		return err
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	critical := 0
	for _, item := range items {
		if item.Status == reports.StockCritical {
			critical++
		}
		logger.Warn("low stock",
			slog.Int64("product_id", item.ProductID),
			slog.String("sku", item.SKU),
			slog.Int("stock_quantity", item.CurrentStock),
			slog.Int("min_stock_level", item.MinStockLevel),
			slog.String("status", item.Status),
		)
	}
	j.Metrics.SetLowStock(critical)
	logger.Info("low stock check finished", slog.Int("flagged", len(items)), slog.Int("critical", critical))
	return nil
}
