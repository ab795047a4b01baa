package ledger

import (
	"math"
	"strconv"
	"time"
)

// reconcileTolerance is one currency unit: deltas smaller than this are
// rounding noise, not miscategorisation.
const reconcileTolerance = 1.0

// ComputeSummary aggregates every transaction source into per-category
// totals and cross-checks the trusted payment tables against the
// manually-tagged view. The computation is stateless: every call rescans
// the supplied sources in full.
func ComputeSummary(src SourceSet, rng *DateRange, today time.Time) Summary {
	overrides := make(map[string]Category, len(src.Overrides))
	for _, o := range src.Overrides {
		if o.Category.IsValid() {
			overrides[o.Key()] = o.Category
		}
	}

	categorized := make(map[Category]float64)
	labor := make(map[string]float64)
	revenue := make(map[string]float64)

	addLines := func(txns []Transaction, defaultCategory Category, negate bool) {
		for _, txn := range txns {
			if !rng.Contains(txn.Date) {
				continue
			}
			for _, line := range expandLines(txn) {
				category := resolveCategory(overrides, txn, line, defaultCategory)
				amount := sanitizeAmount(line.Amount)
				if negate {
					amount = -amount
				}
				categorized[category] += amount
				if category == CategoryRevenue {
					revenue[txn.SourceType] += math.Abs(amount)
				}
			}
		}
	}

	addLines(src.Expenses, CategoryUnassigned, false)
	addLines(src.Bills, CategoryUnassigned, false)
	addLines(src.Deposits, CategoryRevenue, true)
	addLines(src.Payments, CategoryRevenue, true)
	addLines(src.BillPayments, CategoryUnassigned, false)

	rules := DefaultBankRules()
	for _, line := range src.BankLines {
		if line.Matched {
			continue
		}
		if !rng.Contains(line.Date) {
			continue
		}
		category, subcategory, amount := classifyBankLine(line, rules)
		amount = sanitizeAmount(amount)
		categorized[category] += amount
		if category == CategoryLabor && subcategory != "" {
			labor[subcategory] += amount
		}
	}

	internal := make(map[Category]float64)
	breakdown := make(map[Category]PaymentStatusBreakdown)
	internal[CategoryNRE], breakdown[CategoryNRE] = aggregateTrusted(src.NREPayments, today)
	internal[CategoryInventory], breakdown[CategoryInventory] = aggregateTrusted(src.InventoryPayments, today)

	reconciliation := make(map[Category]ReconciliationRow, len(TrustedCategories))
	for _, category := range TrustedCategories {
		delta := round2(internal[category] - categorized[category])
		reconciliation[category] = ReconciliationRow{
			InternalDB:   round2(internal[category]),
			Categorized:  round2(categorized[category]),
			Delta:        delta,
			IsReconciled: math.Abs(delta) < reconcileTolerance,
		}
	}

	final := make(map[Category]float64, len(AllCategories))
	for _, category := range AllCategories {
		final[category] = round2(categorized[category])
	}
	for _, category := range TrustedCategories {
		// trusted source wins over manual tagging
		final[category] = round2(internal[category])
	}

	var totalOutflows float64
	for category, amount := range final {
		if category != CategoryRevenue {
			totalOutflows += amount
		}
	}
	totalInflows := math.Abs(final[CategoryRevenue])

	return Summary{
		Summary:           final,
		CategorizedTotals: roundMap(categorized),
		InternalDBTotals:  roundMap(internal),
		Reconciliation:    reconciliation,
		Breakdown:         breakdown,
		LaborBreakdown:    roundStringMap(labor),
		RevenueBreakdown:  roundStringMap(revenue),
		TotalOutflows:     round2(totalOutflows),
		TotalInflows:      round2(totalInflows),
		NetCashFlow:       round2(totalInflows - totalOutflows),
		DateRange:         rng,
	}
}

// expandLines returns a transaction's line items, or the transaction itself
// as a single synthetic line when it has no breakdown.
func expandLines(txn Transaction) []TransactionLine {
	if len(txn.Lines) > 0 {
		return txn.Lines
	}
	return []TransactionLine{{Index: -1, Amount: txn.Amount, Category: txn.Category}}
}

func resolveCategory(overrides map[string]Category, txn Transaction, line TransactionLine, fallback Category) Category {
	index := ""
	if line.Index >= 0 {
		index = strconv.Itoa(line.Index)
	}
	if override, ok := overrides[overrideKey(txn.SourceType, txn.SourceID, index)]; ok {
		return override
	}
	if line.Category.IsValid() {
		return line.Category
	}
	if txn.Category.IsValid() {
		return txn.Category
	}
	return fallback
}

// aggregateTrusted sums one internal payment table and buckets each row by
// settlement state against today's date (date-only comparison).
func aggregateTrusted(items []PaymentLineItem, today time.Time) (float64, PaymentStatusBreakdown) {
	var total float64
	var buckets PaymentStatusBreakdown
	day := normalizeDay(today)
	for _, item := range items {
		amount := sanitizeAmount(item.Amount)
		total += amount
		switch {
		case item.IsPaid:
			buckets.Paid += amount
		case item.PaymentDate != nil && normalizeDay(*item.PaymentDate).Before(day):
			buckets.Overdue += amount
		default:
			buckets.ToBePaid += amount
		}
	}
	buckets.Paid = round2(buckets.Paid)
	buckets.Overdue = round2(buckets.Overdue)
	buckets.ToBePaid = round2(buckets.ToBePaid)
	return total, buckets
}

// sanitizeAmount coerces malformed numeric input to zero so one bad record
// cannot abort the whole report.
func sanitizeAmount(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundMap(m map[Category]float64) map[Category]float64 {
	out := make(map[Category]float64, len(m))
	for k, v := range m {
		out[k] = round2(v)
	}
	return out
}

func roundStringMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = round2(v)
	}
	return out
}
