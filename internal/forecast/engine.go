package forecast

import (
	"time"

	"github.com/google/uuid"
)

// fallbackReason is stored when the caller omits a change reason. Updates
// are accepted without one so a missing form field never blocks a
// supply-chain correction.
const fallbackReason = "no reason provided"

// ApplyDateChanges computes the consistent downstream state for a batch of
// proposed timeline changes. It is pure: the caller persists the returned
// timeline and change entry.
//
// Supplied values equal to the stored ones are dropped as no-ops before
// any cascade decision is made. A batch changing more than one milestone
// date is treated as an explicit full-timeline override and applied
// verbatim with no cascade. A batch changing only the EXW date cascades
// forward through transit, warehouse arrival and delivery. A batch
// changing the transit duration with no milestone date change re-cascades
// from the stored EXW date when one exists. A batch changing only the
// delivery date is an intentional downstream commitment and is applied
// as-is.
//
// Dates are not validated for chronological ordering; conflicting manual
// overrides are honoured exactly as supplied.
func ApplyDateChanges(current Timeline, proposed ChangeSet, milestone Milestone, reason string, cfg CascadeConfig, now time.Time) Result {
	next := current
	changes := make(map[string]FieldChange)
	updated := make(map[string]any)

	applyDate := func(field string, value *time.Time, target, original **time.Time) {
		if value == nil {
			return
		}
		day := normalizeDate(*value)
		if sameDate(*target, &day) {
			return
		}
		changes[field] = FieldChange{Was: fmtDate(*target), Is: fmtDate(&day)}
		if *original == nil {
			was := *target
			*original = was
		}
		*target = &day
		updated[field] = fmtDate(&day)
	}

	applyDuration := func(field string, value *int, target **int) {
		if value == nil {
			return
		}
		if *target != nil && **target == *value {
			return
		}
		var was any
		if *target != nil {
			was = **target
		}
		changes[field] = FieldChange{Was: was, Is: *value}
		v := *value
		*target = &v
		updated[field] = v
	}

	applyDate(FieldEXWDate, proposed.EXWDate, &next.EXWDate, &next.OriginalEXWDate)
	applyDate(FieldTransitStart, proposed.TransitStart, &next.TransitStart, &next.OriginalTransitStart)
	applyDate(FieldWarehouseArrival, proposed.WarehouseArrival, &next.WarehouseArrival, &next.OriginalWarehouseArrival)
	applyDate(FieldDeliveryDate, proposed.DeliveryDate, &next.DeliveryDate, &next.OriginalDeliveryDate)

	applyDuration(FieldFactoryLeadTimeDays, proposed.FactoryLeadTimeDays, &next.FactoryLeadTimeDays)
	applyDuration(FieldTransitTimeDays, proposed.TransitTimeDays, &next.TransitTimeDays)
	applyDuration(FieldWarehouseProcessingDays, proposed.WarehouseProcessingDays, &next.WarehouseProcessingDays)
	applyDuration(FieldBufferDays, proposed.BufferDays, &next.BufferDays)

	changedDates := 0
	for _, field := range []string{FieldEXWDate, FieldTransitStart, FieldWarehouseArrival, FieldDeliveryDate} {
		if _, ok := changes[field]; ok {
			changedDates++
		}
	}

	transitDays := resolveDuration(proposed.TransitTimeDays, current.TransitTimeDays, cfg.TransitTimeDays)
	processingDays := resolveDuration(proposed.WarehouseProcessingDays, current.WarehouseProcessingDays, cfg.WarehouseProcessingDays)
	bufferDays := resolveDuration(proposed.BufferDays, current.BufferDays, cfg.BufferDays)

	var warning string

	switch {
	case changedDates > 1:
		// Full-timeline override: the caller asserted the schedule by
		// hand, every changed value stands and nothing is recomputed.

	case changedDates == 1:
		if _, ok := changes[FieldEXWDate]; ok {
			cascadeFrom(&next, *next.EXWDate, transitDays, processingDays, bufferDays, proposed.TransitStart == nil, updated)
		}

	default:
		if _, ok := changes[FieldTransitTimeDays]; ok {
			if next.EXWDate != nil {
				cascadeFrom(&next, *next.EXWDate, transitDays, processingDays, bufferDays, true, updated)
			} else {
				warning = "transit time updated but EXW date is unknown; downstream dates left unset"
			}
		}
	}

	if len(changes) == 0 {
		return Result{Timeline: next, Updated: updated, Warning: warning}
	}

	if reason == "" {
		reason = fallbackReason
	}
	entry := &ChangeEntry{
		ID:         uuid.New(),
		TimelineID: current.ID,
		Timestamp:  now,
		Milestone:  milestone,
		Changes:    changes,
		Reason:     reason,
	}
	return Result{Timeline: next, Updated: updated, Entry: entry, Warning: warning}
}

// cascadeFrom recomputes the downstream schedule starting at the EXW date.
// Transit is assumed to begin the same day the shipment leaves the factory.
func cascadeFrom(next *Timeline, exw time.Time, transitDays, processingDays, bufferDays int, setTransitStart bool, updated map[string]any) {
	if setTransitStart {
		ts := normalizeDate(exw)
		next.TransitStart = &ts
		updated[FieldTransitStart] = fmtDate(&ts)
	}
	arrival := normalizeDate(exw).AddDate(0, 0, transitDays)
	next.WarehouseArrival = &arrival
	updated[FieldWarehouseArrival] = fmtDate(&arrival)

	delivery := arrival.AddDate(0, 0, processingDays+bufferDays)
	next.DeliveryDate = &delivery
	updated[FieldDeliveryDate] = fmtDate(&delivery)
}

func resolveDuration(batch *int, stored *int, fallback int) int {
	if batch != nil {
		return *batch
	}
	if stored != nil {
		return *stored
	}
	return fallback
}

func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func fmtDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(DateISO)
}
