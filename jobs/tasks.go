package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDailySalesReport writes the previous day's sales report to disk.
	TaskDailySalesReport = "report:daily_sales"
	// TaskLowStockCheck logs products at or below their minimum stock.
	TaskLowStockCheck = "inventory:low_stock_check"
)

// DailySalesPayload optionally overrides the reported range. Dates use the
// 2006-01-02 layout; empty values mean yesterday through today.
type DailySalesPayload struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// LowStockPayload carries the check threshold in percent above minimum.
type LowStockPayload struct {
	ThresholdPercentage int `json:"threshold_percentage"`
}

// NewDailySalesReportTask constructs an Asynq task for the daily report.
func NewDailySalesReportTask(payload DailySalesPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDailySalesReport, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewLowStockCheckTask constructs an Asynq task for the low stock check.
func NewLowStockCheckTask(payload LowStockPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockCheck, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// NewTask builds a task of the given type with its default payload.
func NewTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case TaskDailySalesReport:
		return NewDailySalesReportTask(DailySalesPayload{})
	case TaskLowStockCheck:
		return NewLowStockCheckTask(LowStockPayload{})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, taskType)
	}
}
