package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/meridian-scm/meridian/internal/forecast"
	jobmetrics "github.com/meridian-scm/meridian/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// MilestoneNotifyJob renders milestone-change notifications for portal
// users. Delivery is handled by the downstream notification gateway; the
// job formats the message and hands it off through the log stream.
type MilestoneNotifyJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMilestoneNotifyJob wires dependencies for the notification handler.
func NewMilestoneNotifyJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *MilestoneNotifyJob {
	return &MilestoneNotifyJob{Logger: logger, Metrics: metrics}
}

// Handle processes milestone notification tasks.
func (j *MilestoneNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("milestone notify: handler not configured")
	}
	var evt forecast.MilestoneUpdatedEvent
	if err := json.Unmarshal(t.Payload(), &evt); err != nil {
		return asynq.SkipRetry
	}
	if evt.ShipmentRef == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeMilestoneNotify)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	j.logger().Info("milestone notification",
		slog.String("shipment_ref", evt.ShipmentRef),
		slog.String("milestone", string(evt.Milestone)),
		slog.String("status", evt.Status),
		slog.String("message", renderMilestoneMessage(evt)),
	)
	return resultErr
}

func (j *MilestoneNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *MilestoneNotifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// renderMilestoneMessage builds the plain-text alert body.
func renderMilestoneMessage(evt forecast.MilestoneUpdatedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Shipment %s: %s milestone is now %q.", evt.ShipmentRef, evt.Milestone, evt.Status)

	fields := make([]string, 0, len(evt.Changes))
	for field := range evt.Changes {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		change := evt.Changes[field]
		fmt.Fprintf(&b, " %s: %s -> %s.", field, formatChangeValue(change.Was), formatChangeValue(change.Is))
	}
	if evt.Reason != "" {
		fmt.Fprintf(&b, " Reason: %s.", evt.Reason)
	}
	return b.String()
}

func formatChangeValue(v any) string {
	if v == nil {
		return "unset"
	}
	return fmt.Sprintf("%v", v)
}
