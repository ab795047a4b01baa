package forecast

import "time"

// MilestoneUpdatedEvent is emitted after a milestone update persisted at
// least one actual change. The notification worker turns it into an alert
// for the counterparty portal users.
type MilestoneUpdatedEvent struct {
	TimelineID  int64                  `json:"timeline_id"`
	ShipmentRef string                 `json:"shipment_ref"`
	Milestone   Milestone              `json:"milestone"`
	Status      string                 `json:"status"`
	Reason      string                 `json:"reason"`
	Changes     map[string]FieldChange `json:"changes"`
	OccurredAt  time.Time              `json:"occurred_at"`
}
