package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-scm/meridian/internal/shared"
)

// Repository abstracts timeline persistence used by the service.
type Repository interface {
	CreateTimeline(ctx context.Context, in CreateInput) (Timeline, error)
	GetTimeline(ctx context.Context, id int64) (Timeline, error)
	ListChangeEntries(ctx context.Context, timelineID int64, limit int) ([]ChangeEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the transactional operations of a milestone update.
type TxRepository interface {
	UpdateTimeline(ctx context.Context, t Timeline, expectedUpdatedAt time.Time) error
	InsertChangeEntry(ctx context.Context, entry ChangeEntry) error
	SyncDependentOrders(ctx context.Context, timelineID int64, deliveryDate *time.Time) (int64, error)
}

// Notifier hands a milestone event to the notification side-channel.
type Notifier interface {
	EnqueueMilestoneUpdate(ctx context.Context, evt MilestoneUpdatedEvent) error
}

// Service coordinates timeline reads, cascade computation and persistence.
type Service struct {
	repo     Repository
	notifier Notifier
	audit    *shared.AuditLogger
	cfg      CascadeConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the service. Notifier and audit may be nil; the update
// path then skips the corresponding side effect.
func NewService(repo Repository, notifier Notifier, audit *shared.AuditLogger, cfg CascadeConfig, logger *slog.Logger) *Service {
	if cfg == (CascadeConfig{}) {
		cfg = DefaultCascadeConfig()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// UpdateResult is returned to the HTTP layer after a milestone update.
type UpdateResult struct {
	Timeline         Timeline
	Entry            *ChangeEntry
	Warning          string
	DependentsSynced int64
}

// UpdateMilestone applies a milestone update end to end: load, cascade,
// persist, then notify. Persisting and notifying are deliberately not one
// transaction; a crash after commit loses only the notification while the
// change log stays correct.
func (s *Service) UpdateMilestone(ctx context.Context, id int64, input UpdateMilestoneInput) (UpdateResult, error) {
	if err := input.Validate(); err != nil {
		return UpdateResult{}, err
	}

	current, err := s.repo.GetTimeline(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}

	res := ApplyDateChanges(current, input.Changes, input.Milestone, input.Reason, s.cfg, s.now())
	if res.Warning != "" && s.logger != nil {
		s.logger.Warn("cascade skipped",
			slog.Int64("timeline_id", id),
			slog.String("warning", res.Warning))
	}

	next := res.Timeline
	statusChanged := next.Status != input.Status
	next.Status = input.Status
	if input.Notes != nil {
		next.Notes = input.Notes
	}
	next.UpdatedAt = s.now()

	var synced int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateTimeline(ctx, next, current.UpdatedAt); err != nil {
			return err
		}
		if res.Entry != nil {
			if err := tx.InsertChangeEntry(ctx, *res.Entry); err != nil {
				return err
			}
		}
		if _, moved := deliveryMoved(res); moved {
			n, err := tx.SyncDependentOrders(ctx, id, next.DeliveryDate)
			if err != nil {
				return err
			}
			synced = n
		}
		return nil
	})
	if err != nil {
		return UpdateResult{}, err
	}

	s.recordAudit(ctx, input.ActorID, next, res.Entry, statusChanged)

	if res.Entry != nil && s.notifier != nil {
		evt := MilestoneUpdatedEvent{
			TimelineID:  next.ID,
			ShipmentRef: next.ShipmentRef,
			Milestone:   input.Milestone,
			Status:      input.Status,
			Reason:      res.Entry.Reason,
			Changes:     res.Entry.Changes,
			OccurredAt:  res.Entry.Timestamp,
		}
		if err := s.notifier.EnqueueMilestoneUpdate(ctx, evt); err != nil && s.logger != nil {
			// Known gap kept from the original design: the update is
			// already committed, a lost notification is accepted.
			s.logger.Warn("enqueue milestone notification",
				slog.Int64("timeline_id", id),
				slog.Any("error", err))
		}
	}

	return UpdateResult{Timeline: next, Entry: res.Entry, Warning: res.Warning, DependentsSynced: synced}, nil
}

// GetTimeline returns one timeline by id.
func (s *Service) GetTimeline(ctx context.Context, id int64) (Timeline, error) {
	return s.repo.GetTimeline(ctx, id)
}

// History returns the most recent change entries for a timeline.
func (s *Service) History(ctx context.Context, id int64, limit int) ([]ChangeEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if _, err := s.repo.GetTimeline(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListChangeEntries(ctx, id, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, t Timeline, entry *ChangeEntry, statusChanged bool) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"shipment_ref":   t.ShipmentRef,
		"status":         t.Status,
		"status_changed": statusChanged,
	}
	if entry != nil {
		meta["change_entry_id"] = entry.ID.String()
		meta["fields"] = fieldNames(entry.Changes)
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "forecast.milestone.update",
		Entity:   "forecast_timeline",
		EntityID: strconv.FormatInt(t.ID, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("record audit log", slog.Any("error", err))
	}
}

func deliveryMoved(res Result) (any, bool) {
	v, ok := res.Updated[FieldDeliveryDate]
	return v, ok
}

func fieldNames(changes map[string]FieldChange) []string {
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	return names
}

// CreateInput captures timeline creation.
type CreateInput struct {
	CompanyID   int64
	ShipmentRef string
	Notes       *string
	ActorID     int64
}

// Validate ensures correctness.
func (in CreateInput) Validate() error {
	if in.CompanyID == 0 {
		return fmt.Errorf("forecast: company required")
	}
	if in.ShipmentRef == "" {
		return fmt.Errorf("forecast: shipment reference required")
	}
	return nil
}

// CreateTimeline registers a new shipment timeline with every milestone
// date still TBD.
func (s *Service) CreateTimeline(ctx context.Context, input CreateInput) (Timeline, error) {
	if err := input.Validate(); err != nil {
		return Timeline{}, err
	}
	t, err := s.repo.CreateTimeline(ctx, input)
	if err != nil {
		return Timeline{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "forecast.timeline.create",
			Entity:   "forecast_timeline",
			EntityID: strconv.FormatInt(t.ID, 10),
			Meta:     map[string]any{"shipment_ref": t.ShipmentRef},
			At:       s.now(),
		}); err != nil && s.logger != nil {
			s.logger.Warn("record audit log", slog.Any("error", err))
		}
	}
	return t, nil
}
