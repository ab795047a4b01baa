package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-scm/meridian/internal/jobs"
	"github.com/meridian-scm/meridian/internal/ledger"
)

// LedgerRefreshJob keeps the reconciliation summary cache warm so the
// portal never pays the full nine-source fan-out on an interactive request.
type LedgerRefreshJob struct {
	Ledger  *ledger.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerRefreshJob wires dependencies for the refresh handler.
func NewLedgerRefreshJob(svc *ledger.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerRefreshJob {
	return &LedgerRefreshJob{Ledger: svc, Logger: logger, Metrics: metrics}
}

// Handle processes summary refresh tasks.
func (j *LedgerRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger refresh: handler not configured")
	}
	var payload LedgerRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeLedgerRefresh)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if payload.Bump {
		if resultErr = j.Ledger.Invalidate(ctx); resultErr != nil {
			j.logger().Error("ledger refresh: bump failed", slog.Any("error", resultErr))
			return resultErr
		}
	}
	if _, resultErr = j.Ledger.Summary(ctx, nil); resultErr != nil {
		j.logger().Error("ledger refresh: warm failed", slog.Any("error", resultErr))
		return resultErr
	}
	j.logger().Info("ledger summary cache warmed", slog.Bool("bumped", payload.Bump))
	return resultErr
}

func (j *LedgerRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *LedgerRefreshJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
