package ledger

import (
	"encoding/csv"
	"io"
	"sort"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// WriteSummaryCSV serialises the reconciliation summary to CSV. Amounts
// carry thousands separators for spreadsheet readers.
func WriteSummaryCSV(w io.Writer, summary Summary) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	printer := message.NewPrinter(language.English)
	amount := func(v float64) string {
		return printer.Sprintf("%.2f", v)
	}

	if err := writer.Write([]string{"Category", "Final", "Categorized", "Internal DB", "Delta", "Reconciled"}); err != nil {
		return err
	}
	for _, category := range AllCategories {
		row := []string{
			string(category),
			amount(summary.Summary[category]),
			amount(summary.CategorizedTotals[category]),
			"", "", "",
		}
		if rec, ok := summary.Reconciliation[category]; ok {
			row[3] = amount(rec.InternalDB)
			row[4] = amount(rec.Delta)
			if rec.IsReconciled {
				row[5] = "yes"
			} else {
				row[5] = "no"
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	if err := writer.Write([]string{""}); err != nil {
		return err
	}
	if err := writer.Write([]string{"Payment Status", "Paid", "Overdue", "To Be Paid"}); err != nil {
		return err
	}
	for _, category := range TrustedCategories {
		breakdown := summary.Breakdown[category]
		if err := writer.Write([]string{
			string(category),
			amount(breakdown.Paid),
			amount(breakdown.Overdue),
			amount(breakdown.ToBePaid),
		}); err != nil {
			return err
		}
	}

	if err := writer.Write([]string{""}); err != nil {
		return err
	}
	if err := writer.Write([]string{"Labor Bucket", "Amount"}); err != nil {
		return err
	}
	for _, bucket := range sortedKeys(summary.LaborBreakdown) {
		if err := writer.Write([]string{bucket, amount(summary.LaborBreakdown[bucket])}); err != nil {
			return err
		}
	}

	if err := writer.Write([]string{""}); err != nil {
		return err
	}
	if err := writer.Write([]string{"Revenue Source", "Amount"}); err != nil {
		return err
	}
	for _, source := range sortedKeys(summary.RevenueBreakdown) {
		if err := writer.Write([]string{source, amount(summary.RevenueBreakdown[source])}); err != nil {
			return err
		}
	}

	if err := writer.Write([]string{""}); err != nil {
		return err
	}
	totals := [][]string{
		{"Total Outflows", amount(summary.TotalOutflows)},
		{"Total Inflows", amount(summary.TotalInflows)},
		{"Net Cash Flow", amount(summary.NetCashFlow)},
	}
	for _, row := range totals {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
