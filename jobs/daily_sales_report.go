package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
	"github.com/odyssey-erp/odyssey-pos/internal/reports"
)

// SalesReporter produces grouped sales reports.
type SalesReporter interface {
	SalesReport(ctx context.Context, rng reports.Range, groupBy reports.GroupBy) ([]reports.SalesPeriod, error)
}

// ReportWriter stores a report file.
type ReportWriter interface {
	Write(filename string, data any) (reports.Exported, error)
}

// DailySalesReportJob writes auto_sales_report_<from>_<to>.json.
type DailySalesReportJob struct {
	Reports SalesReporter
	Writer  ReportWriter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewDailySalesReportJob wires dependencies for the report handler.
func NewDailySalesReportJob(reporter SalesReporter, writer ReportWriter, logger *slog.Logger, metrics *jobmetrics.Metrics) *DailySalesReportJob {
	return &DailySalesReportJob{Reports: reporter, Writer: writer, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle processes TaskDailySalesReport tasks.
func (j *DailySalesReportJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reports == nil || j.Writer == nil {
		return errors.New("daily sales report: handler not configured")
	}
	var payload DailySalesPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}
	rng, err := j.reportRange(payload)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskDailySalesReport)
	defer func() { err = tracker.End(err) }()

	rows, err := j.Reports.SalesReport(ctx, rng, reports.GroupDay)
	if err != nil {
		return err
	}
	filename := fmt.Sprintf("auto_sales_report_%s_%s.json", rng.From.Format("2006-01-02"), rng.To.Format("2006-01-02"))
	exported, err := j.Writer.Write(filename, rows)
	if err != nil {
		return err
	}
	j.Metrics.AddReportRows("daily_sales", len(rows))
	j.logger().Info("daily sales report written",
		slog.String("file", exported.Filename),
		slog.String("summary", exported.Summary),
		slog.Int("rows", len(rows)),
	)
	return nil
}

func (j *DailySalesReportJob) reportRange(payload DailySalesPayload) (reports.Range, error) {
	today := j.clock()
	rng := reports.Range{From: today.AddDate(0, 0, -1), To: today}
	if payload.From != "" {
		from, err := time.Parse("2006-01-02", payload.From)
		if err != nil {
			return reports.Range{}, fmt.Errorf("daily sales report: from: %w", err)
		}
		rng.From = from
	}
	if payload.To != "" {
		to, err := time.Parse("2006-01-02", payload.To)
		if err != nil {
			return reports.Range{}, fmt.Errorf("daily sales report: to: %w", err)
		}
		rng.To = to
	}
	return rng, nil
}

func (j *DailySalesReportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
