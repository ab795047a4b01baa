package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-scm/meridian/internal/platform/db"
)

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineColumns = `id, company_id, shipment_ref, status, notes,
	exw_date, transit_start, warehouse_arrival, delivery_date,
	original_exw_date, original_transit_start, original_warehouse_arrival, original_delivery_date,
	factory_lead_time_days, transit_time_days, warehouse_processing_days, buffer_days,
	created_at, updated_at`

func scanTimeline(row pgx.Row) (Timeline, error) {
	var t Timeline
	err := row.Scan(
		&t.ID, &t.CompanyID, &t.ShipmentRef, &t.Status, &t.Notes,
		&t.EXWDate, &t.TransitStart, &t.WarehouseArrival, &t.DeliveryDate,
		&t.OriginalEXWDate, &t.OriginalTransitStart, &t.OriginalWarehouseArrival, &t.OriginalDeliveryDate,
		&t.FactoryLeadTimeDays, &t.TransitTimeDays, &t.WarehouseProcessingDays, &t.BufferDays,
		&t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// CreateTimeline inserts a timeline with all milestone dates unset.
func (r *PGRepository) CreateTimeline(ctx context.Context, in CreateInput) (Timeline, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO forecast_timelines (company_id, shipment_ref, status, notes)
		VALUES ($1, $2, 'draft', $3)
		RETURNING `+timelineColumns,
		in.CompanyID, in.ShipmentRef, in.Notes)
	t, err := scanTimeline(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Timeline{}, ErrDuplicateShipmentRef
		}
		return Timeline{}, err
	}
	return t, nil
}

// GetTimeline returns one timeline by id.
func (r *PGRepository) GetTimeline(ctx context.Context, id int64) (Timeline, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+timelineColumns+` FROM forecast_timelines WHERE id = $1`, id)
	t, err := scanTimeline(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Timeline{}, ErrTimelineNotFound
		}
		return Timeline{}, err
	}
	return t, nil
}

// ListChangeEntries returns the most recent change entries for a timeline.
func (r *PGRepository) ListChangeEntries(ctx context.Context, timelineID int64, limit int) ([]ChangeEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, timeline_id, occurred_at, milestone, changes, reason
		FROM forecast_change_entries
		WHERE timeline_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2`, timelineID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ChangeEntry
	for rows.Next() {
		var entry ChangeEntry
		var changes []byte
		if err := rows.Scan(&entry.ID, &entry.TimelineID, &entry.Timestamp, &entry.Milestone, &changes, &entry.Reason); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(changes, &entry.Changes); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// UpdateTimeline persists the full timeline row guarded by the previous
// updated_at value. A zero-row update means another writer got there first.
func (tx *txRepo) UpdateTimeline(ctx context.Context, t Timeline, expectedUpdatedAt time.Time) error {
	tag, err := tx.tx.Exec(ctx, `
		UPDATE forecast_timelines SET
			status = $2, notes = $3,
			exw_date = $4, transit_start = $5, warehouse_arrival = $6, delivery_date = $7,
			original_exw_date = $8, original_transit_start = $9,
			original_warehouse_arrival = $10, original_delivery_date = $11,
			factory_lead_time_days = $12, transit_time_days = $13,
			warehouse_processing_days = $14, buffer_days = $15,
			updated_at = $16
		WHERE id = $1 AND updated_at = $17`,
		t.ID, t.Status, t.Notes,
		t.EXWDate, t.TransitStart, t.WarehouseArrival, t.DeliveryDate,
		t.OriginalEXWDate, t.OriginalTransitStart, t.OriginalWarehouseArrival, t.OriginalDeliveryDate,
		t.FactoryLeadTimeDays, t.TransitTimeDays, t.WarehouseProcessingDays, t.BufferDays,
		t.UpdatedAt, expectedUpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleTimeline
	}
	return nil
}

// InsertChangeEntry appends one audit record.
func (tx *txRepo) InsertChangeEntry(ctx context.Context, entry ChangeEntry) error {
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return err
	}
	_, err = tx.tx.Exec(ctx, `
		INSERT INTO forecast_change_entries (id, timeline_id, occurred_at, milestone, changes, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.TimelineID, entry.Timestamp, entry.Milestone, changes, entry.Reason)
	return err
}

// SyncDependentOrders mirrors a moved delivery date onto open customer
// order lines referencing the timeline, returning how many were touched.
func (tx *txRepo) SyncDependentOrders(ctx context.Context, timelineID int64, deliveryDate *time.Time) (int64, error) {
	tag, err := tx.tx.Exec(ctx, `
		UPDATE customer_order_lines
		SET promised_date = $2, updated_at = NOW()
		WHERE timeline_id = $1 AND status NOT IN ('delivered', 'cancelled')`,
		timelineID, deliveryDate)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
