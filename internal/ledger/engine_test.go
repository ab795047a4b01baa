package ledger

import (
	"testing"
	"time"
)

func day(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(value string) *time.Time {
	t := day(value)
	return &t
}

var testToday = day("2025-06-15")

func TestComputeSummaryReconciliationDelta(t *testing.T) {
	src := SourceSet{
		Expenses: []Transaction{
			{SourceType: SourceExpense, SourceID: "e1", Amount: 999.50, Category: CategoryNRE},
		},
		NREPayments: []PaymentLineItem{
			{ID: "p1", Amount: 1000.00, IsPaid: true},
		},
	}
	summary := ComputeSummary(src, nil, testToday)

	row := summary.Reconciliation[CategoryNRE]
	if row.Delta != 0.50 {
		t.Fatalf("delta = %v, want 0.50", row.Delta)
	}
	if !row.IsReconciled {
		t.Fatalf("|0.50| < 1.00 must reconcile")
	}

	src.Expenses[0].Amount = 990.00
	summary = ComputeSummary(src, nil, testToday)
	row = summary.Reconciliation[CategoryNRE]
	if row.Delta != 10.00 {
		t.Fatalf("delta = %v, want 10.00", row.Delta)
	}
	if row.IsReconciled {
		t.Fatalf("|10.00| >= 1.00 must not reconcile")
	}
}

func TestComputeSummaryTrustedSourceWins(t *testing.T) {
	src := SourceSet{
		Expenses: []Transaction{
			{SourceType: SourceExpense, SourceID: "e1", Amount: 990.00, Category: CategoryNRE},
			{SourceType: SourceExpense, SourceID: "e2", Amount: 40.00, Category: CategoryOpex},
		},
		NREPayments: []PaymentLineItem{
			{ID: "p1", Amount: 1000.00, IsPaid: true},
		},
	}
	summary := ComputeSummary(src, nil, testToday)

	if summary.Summary[CategoryNRE] != 1000.00 {
		t.Fatalf("nre total = %v, want trusted 1000.00", summary.Summary[CategoryNRE])
	}
	if summary.Summary[CategoryOpex] != 40.00 {
		t.Fatalf("opex total = %v, want categorized 40.00", summary.Summary[CategoryOpex])
	}
}

func TestComputeSummaryRevenueSignConvention(t *testing.T) {
	src := SourceSet{
		Deposits: []Transaction{
			{SourceType: SourceDeposit, SourceID: "d1", Amount: 500.00},
		},
	}
	summary := ComputeSummary(src, nil, testToday)

	if summary.CategorizedTotals[CategoryRevenue] != -500.00 {
		t.Fatalf("revenue = %v, want -500.00", summary.CategorizedTotals[CategoryRevenue])
	}
	if summary.TotalInflows != 500.00 {
		t.Fatalf("inflows = %v, want 500.00", summary.TotalInflows)
	}
	if summary.NetCashFlow != 500.00 {
		t.Fatalf("net = %v, want 500.00", summary.NetCashFlow)
	}
	if summary.RevenueBreakdown[SourceDeposit] != 500.00 {
		t.Fatalf("revenue breakdown = %v", summary.RevenueBreakdown)
	}
}

func TestComputeSummaryOverrideResolution(t *testing.T) {
	src := SourceSet{
		Bills: []Transaction{
			{
				SourceType: SourceBill,
				SourceID:   "b1",
				Lines: []TransactionLine{
					{Index: 0, Amount: 100.00, Category: CategoryOpex},
					{Index: 1, Amount: 200.00, Category: CategoryOpex},
				},
			},
			{SourceType: SourceBill, SourceID: "b2", Amount: 75.00},
		},
		Overrides: []CategoryOverride{
			{SourceType: SourceBill, SourceID: "b1", LineIndex: "1", Category: CategoryNRE},
			{SourceType: SourceBill, SourceID: "b2", LineIndex: "", Category: CategoryInventory},
		},
	}
	summary := ComputeSummary(src, nil, testToday)

	if summary.CategorizedTotals[CategoryOpex] != 100.00 {
		t.Fatalf("opex = %v, want 100.00 (only the un-overridden line)", summary.CategorizedTotals[CategoryOpex])
	}
	if summary.CategorizedTotals[CategoryNRE] != 200.00 {
		t.Fatalf("nre = %v, want 200.00 from line override", summary.CategorizedTotals[CategoryNRE])
	}
	if summary.CategorizedTotals[CategoryInventory] != 75.00 {
		t.Fatalf("inventory = %v, want 75.00 from headline override", summary.CategorizedTotals[CategoryInventory])
	}
}

func TestComputeSummaryUncategorisedFallsToUnassigned(t *testing.T) {
	src := SourceSet{
		Expenses:     []Transaction{{SourceType: SourceExpense, SourceID: "e1", Amount: 10.00, Category: "freight-misc"}},
		BillPayments: []Transaction{{SourceType: SourceBillPayment, SourceID: "bp1", Amount: 25.00}},
	}
	summary := ComputeSummary(src, nil, testToday)

	if summary.CategorizedTotals[CategoryUnassigned] != 35.00 {
		t.Fatalf("unassigned = %v, want 35.00", summary.CategorizedTotals[CategoryUnassigned])
	}
}

func TestComputeSummaryDateRangeFiltering(t *testing.T) {
	rng := &DateRange{Start: day("2025-01-01"), End: day("2025-01-31")}
	src := SourceSet{
		Expenses: []Transaction{
			{SourceType: SourceExpense, SourceID: "in", Date: dayPtr("2025-01-31"), Amount: 10.00, Category: CategoryOpex},
			{SourceType: SourceExpense, SourceID: "out", Date: dayPtr("2025-02-01"), Amount: 99.00, Category: CategoryOpex},
			{SourceType: SourceExpense, SourceID: "undated", Amount: 5.00, Category: CategoryOpex},
		},
	}
	summary := ComputeSummary(src, rng, testToday)

	// inclusive upper bound, dateless rows always counted
	if summary.CategorizedTotals[CategoryOpex] != 15.00 {
		t.Fatalf("opex = %v, want 15.00", summary.CategorizedTotals[CategoryOpex])
	}
}

func TestComputeSummaryMatchedBankLinesExcluded(t *testing.T) {
	src := SourceSet{
		BankLines: []BankStatementLine{
			{ID: "1", Description: "GUSTO; DES:NET PAY", Debit: 5000, Matched: true},
			{ID: "2", Description: "GUSTO; DES:NET PAY", Debit: 3000},
		},
	}
	summary := ComputeSummary(src, nil, testToday)

	if summary.CategorizedTotals[CategoryLabor] != 3000 {
		t.Fatalf("labor = %v, matched line must contribute zero", summary.CategorizedTotals[CategoryLabor])
	}
	if summary.LaborBreakdown[LaborPayroll] != 3000 {
		t.Fatalf("payroll bucket = %v", summary.LaborBreakdown)
	}
}

func TestComputeSummaryLoanTransferPair(t *testing.T) {
	src := SourceSet{
		BankLines: []BankStatementLine{
			{ID: "1", Description: "ONLINE PMT TO HARBOR CAPITAL #8841", Debit: 1200, Credit: 0},
			{ID: "2", Description: "ONLINE TRANSFER FROM HARBOR CAPITAL", Debit: 0, Credit: 50000},
		},
	}
	summary := ComputeSummary(src, nil, testToday)

	if summary.CategorizedTotals[CategoryLoanInterest] != 1200 {
		t.Fatalf("loan interest = %v, want 1200", summary.CategorizedTotals[CategoryLoanInterest])
	}
	if summary.CategorizedTotals[CategoryLoans] != -50000 {
		t.Fatalf("loans = %v, want -50000 (financing inflow)", summary.CategorizedTotals[CategoryLoans])
	}
}

func TestComputeSummaryTrustedPaymentBuckets(t *testing.T) {
	src := SourceSet{
		InventoryPayments: []PaymentLineItem{
			{ID: "1", Amount: 100, IsPaid: true, PaymentDate: dayPtr("2025-01-01")},
			{ID: "2", Amount: 200, PaymentDate: dayPtr("2025-06-01")}, // before today
			{ID: "3", Amount: 300, PaymentDate: dayPtr("2025-07-01")},
			{ID: "4", Amount: 400}, // no due date: still to be paid
		},
	}
	summary := ComputeSummary(src, nil, testToday)

	buckets := summary.Breakdown[CategoryInventory]
	if buckets.Paid != 100 {
		t.Fatalf("paid = %v", buckets.Paid)
	}
	if buckets.Overdue != 200 {
		t.Fatalf("overdue = %v", buckets.Overdue)
	}
	if buckets.ToBePaid != 700 {
		t.Fatalf("toBePaid = %v", buckets.ToBePaid)
	}
	if summary.InternalDBTotals[CategoryInventory] != 1000 {
		t.Fatalf("inventory internal total = %v", summary.InternalDBTotals[CategoryInventory])
	}
}

func TestComputeSummaryTotals(t *testing.T) {
	src := SourceSet{
		Expenses: []Transaction{
			{SourceType: SourceExpense, SourceID: "e1", Amount: 300.00, Category: CategoryOpex},
		},
		Deposits: []Transaction{
			{SourceType: SourceDeposit, SourceID: "d1", Amount: 1000.00},
		},
	}
	summary := ComputeSummary(src, nil, testToday)

	if summary.TotalOutflows != 300.00 {
		t.Fatalf("outflows = %v", summary.TotalOutflows)
	}
	if summary.TotalInflows != 1000.00 {
		t.Fatalf("inflows = %v", summary.TotalInflows)
	}
	if summary.NetCashFlow != 700.00 {
		t.Fatalf("net = %v", summary.NetCashFlow)
	}
}
