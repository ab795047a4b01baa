package forecast

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateISO is the wire format for milestone dates. Timelines carry calendar
// dates only; time-of-day is never meaningful in CPFR scheduling.
const DateISO = "2006-01-02"

// Milestone identifies which stage of the supply chain issued an update.
type Milestone string

const (
	MilestoneSales     Milestone = "sales"
	MilestoneFactory   Milestone = "factory"
	MilestoneTransit   Milestone = "transit"
	MilestoneWarehouse Milestone = "warehouse"
)

// IsValid checks if the milestone is valid.
func (m Milestone) IsValid() bool {
	switch m {
	case MilestoneSales, MilestoneFactory, MilestoneTransit, MilestoneWarehouse:
		return true
	default:
		return false
	}
}

// Field names used in change entries and update payloads.
const (
	FieldEXWDate                 = "exwDate"
	FieldTransitStart            = "transitStart"
	FieldWarehouseArrival        = "warehouseArrival"
	FieldDeliveryDate            = "deliveryDate"
	FieldFactoryLeadTimeDays     = "factoryLeadTimeDays"
	FieldTransitTimeDays         = "transitTimeDays"
	FieldWarehouseProcessingDays = "warehouseProcessingDays"
	FieldBufferDays              = "bufferDays"
)

// Timeline represents one shipment's milestone schedule.
type Timeline struct {
	ID          int64      `json:"id" db:"id"`
	CompanyID   int64      `json:"company_id" db:"company_id"`
	ShipmentRef string     `json:"shipment_ref" db:"shipment_ref"`
	Status      string     `json:"status" db:"status"`
	Notes       *string    `json:"notes,omitempty" db:"notes"`

	EXWDate          *time.Time `json:"exw_date" db:"exw_date"`
	TransitStart     *time.Time `json:"transit_start" db:"transit_start"`
	WarehouseArrival *time.Time `json:"warehouse_arrival" db:"warehouse_arrival"`
	DeliveryDate     *time.Time `json:"delivery_date" db:"delivery_date"`

	// Original* records the first-ever value of each milestone date.
	// Written once, never updated; variance reporting compares live
	// dates against these initial commitments.
	OriginalEXWDate          *time.Time `json:"original_exw_date" db:"original_exw_date"`
	OriginalTransitStart     *time.Time `json:"original_transit_start" db:"original_transit_start"`
	OriginalWarehouseArrival *time.Time `json:"original_warehouse_arrival" db:"original_warehouse_arrival"`
	OriginalDeliveryDate     *time.Time `json:"original_delivery_date" db:"original_delivery_date"`

	// Durations are manual overrides when set; nil falls back to the
	// configured defaults during cascade computation.
	FactoryLeadTimeDays     *int `json:"factory_lead_time_days" db:"factory_lead_time_days"`
	TransitTimeDays         *int `json:"transit_time_days" db:"transit_time_days"`
	WarehouseProcessingDays *int `json:"warehouse_processing_days" db:"warehouse_processing_days"`
	BufferDays              *int `json:"buffer_days" db:"buffer_days"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FieldChange captures a before/after pair for one field.
type FieldChange struct {
	Was any `json:"was"`
	Is  any `json:"is"`
}

// ChangeEntry is one audit record appended per successful update that
// produced at least one actual value change.
type ChangeEntry struct {
	ID         uuid.UUID              `json:"id" db:"id"`
	TimelineID int64                  `json:"timeline_id" db:"timeline_id"`
	Timestamp  time.Time              `json:"timestamp" db:"occurred_at"`
	Milestone  Milestone              `json:"milestone" db:"milestone"`
	Changes    map[string]FieldChange `json:"changes" db:"changes"`
	Reason     string                 `json:"reason" db:"reason"`
}

// ChangeSet is the typed set of proposed field changes. Nil fields are
// absent from the request; supplied fields equal to the stored value are
// treated as no-ops.
type ChangeSet struct {
	EXWDate          *time.Time
	TransitStart     *time.Time
	WarehouseArrival *time.Time
	DeliveryDate     *time.Time

	FactoryLeadTimeDays     *int
	TransitTimeDays         *int
	WarehouseProcessingDays *int
	BufferDays              *int
}

// IsEmpty reports whether no field was supplied at all.
func (c ChangeSet) IsEmpty() bool {
	return c.EXWDate == nil && c.TransitStart == nil && c.WarehouseArrival == nil && c.DeliveryDate == nil &&
		c.FactoryLeadTimeDays == nil && c.TransitTimeDays == nil && c.WarehouseProcessingDays == nil && c.BufferDays == nil
}

// CascadeConfig carries the lead-time defaults used when a timeline has no
// explicit duration overrides. Injected so tenants can tune defaults without
// touching the algorithm.
type CascadeConfig struct {
	FactoryLeadTimeDays     int
	TransitTimeDays         int
	WarehouseProcessingDays int
	BufferDays              int
}

// DefaultCascadeConfig returns the stock lead times.
func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		FactoryLeadTimeDays:     30,
		TransitTimeDays:         21,
		WarehouseProcessingDays: 3,
		BufferDays:              5,
	}
}

// Result is the outcome of a cascade computation. Entry is nil when the
// batch produced no actual change. Warning surfaces degraded-but-accepted
// conditions such as a transit-time change with no EXW date to cascade from.
type Result struct {
	Timeline Timeline
	Updated  map[string]any
	Entry    *ChangeEntry
	Warning  string
}

// UpdateMilestoneInput captures a milestone update request.
type UpdateMilestoneInput struct {
	Milestone Milestone
	Status    string
	Notes     *string
	Changes   ChangeSet
	Reason    string
	ActorID   int64
}

// Validate ensures correctness of the caller-owned required fields.
func (in UpdateMilestoneInput) Validate() error {
	if !in.Milestone.IsValid() {
		return errors.New("forecast: milestone required")
	}
	if strings.TrimSpace(in.Status) == "" {
		return errors.New("forecast: status required")
	}
	return nil
}

var (
	// ErrTimelineNotFound occurs when the forecast timeline is missing.
	ErrTimelineNotFound = errors.New("forecast: timeline not found")
	// ErrStaleTimeline occurs when an update raced a concurrent writer.
	ErrStaleTimeline = errors.New("forecast: timeline modified concurrently")
	// ErrDuplicateShipmentRef occurs when a shipment reference is reused.
	ErrDuplicateShipmentRef = errors.New("forecast: duplicate shipment reference")
)
