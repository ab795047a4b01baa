package ledger

import (
	"errors"
	"fmt"
	"time"
)

// ErrBankLineNotFound is returned when a bank statement row id does not exist.
var ErrBankLineNotFound = errors.New("ledger: bank statement line not found")

// ErrUnknownCategory rejects overrides that name a category outside the
// reporting buckets.
var ErrUnknownCategory = errors.New("ledger: unknown category")

// Category buckets every transaction line in the general-ledger view.
type Category string

const (
	CategoryNRE          Category = "nre"
	CategoryInventory    Category = "inventory"
	CategoryOpex         Category = "opex"
	CategoryLabor        Category = "labor"
	CategoryLoans        Category = "loans"
	CategoryLoanInterest Category = "loan_interest"
	CategoryInvestments  Category = "investments"
	CategoryRevenue      Category = "revenue"
	CategoryOther        Category = "other"
	CategoryUnassigned   Category = "unassigned"
)

// AllCategories enumerates every reporting bucket in display order.
var AllCategories = []Category{
	CategoryNRE, CategoryInventory, CategoryOpex, CategoryLabor,
	CategoryLoans, CategoryLoanInterest, CategoryInvestments,
	CategoryRevenue, CategoryOther, CategoryUnassigned,
}

// TrustedCategories are backed by the internal payment tables, whose totals
// win over the manually-tagged view.
var TrustedCategories = []Category{CategoryNRE, CategoryInventory}

// IsValid checks if the category is a known bucket.
func (c Category) IsValid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Labor sub-buckets used by the bank-line classification rules.
const (
	LaborPayroll  = "payroll"
	LaborTaxes    = "taxes"
	LaborOverhead = "overhead"
)

// Source type tags as stored on synced QuickBooks transactions.
const (
	SourceExpense     = "expense"
	SourceBill        = "bill"
	SourceDeposit     = "deposit"
	SourcePayment     = "payment"
	SourceBillPayment = "bill_payment"
	SourceBankLine    = "bank_line"
)

// TransactionLine is one categorised slice of a transaction.
type TransactionLine struct {
	Index    int      `json:"index" db:"line_index"`
	Amount   float64  `json:"amount" db:"amount"`
	Category Category `json:"category" db:"category"`
}

// Transaction is a synced accounting transaction. Lines may be empty, in
// which case the headline amount and category stand for the whole document.
type Transaction struct {
	SourceType string            `json:"source_type" db:"source_type"`
	SourceID   string            `json:"source_id" db:"source_id"`
	Date       *time.Time        `json:"date" db:"txn_date"`
	Amount     float64           `json:"amount" db:"amount"`
	Category   Category          `json:"category" db:"category"`
	Lines      []TransactionLine `json:"lines,omitempty" db:"-"`
}

// BankStatementLine is one row of an imported bank feed.
type BankStatementLine struct {
	ID          string     `json:"id" db:"id"`
	Date        *time.Time `json:"date" db:"txn_date"`
	Description string     `json:"description" db:"description"`
	Debit       float64    `json:"debit" db:"debit"`
	Credit      float64    `json:"credit" db:"credit"`
	Category    Category   `json:"category" db:"category"`
	// Matched marks lines already reconciled against a synced QuickBooks
	// transaction; counting them again would double the totals.
	Matched bool `json:"matched" db:"matched"`
}

// CategoryOverride re-tags one transaction line by composite key.
type CategoryOverride struct {
	SourceType string   `json:"source_type" db:"source_type"`
	SourceID   string   `json:"source_id" db:"source_id"`
	LineIndex  string   `json:"line_index" db:"line_index"`
	Category   Category `json:"category" db:"category"`
}

// Key joins the override coordinates. LineIndex is empty for transactions
// without a line-item breakdown.
func (o CategoryOverride) Key() string {
	return overrideKey(o.SourceType, o.SourceID, o.LineIndex)
}

func overrideKey(sourceType, sourceID, lineIndex string) string {
	return fmt.Sprintf("%s:%s:%s", sourceType, sourceID, lineIndex)
}

// PaymentLineItem is a row of the internal payment-tracking tables, the
// trusted source for NRE and inventory spend.
type PaymentLineItem struct {
	ID          string     `json:"id" db:"id"`
	Description string     `json:"description" db:"description"`
	Amount      float64    `json:"amount" db:"amount"`
	IsPaid      bool       `json:"is_paid" db:"is_paid"`
	PaymentDate *time.Time `json:"payment_date" db:"payment_date"`
}

// SourceSet is the full working set of one summary computation.
type SourceSet struct {
	Expenses     []Transaction
	Bills        []Transaction
	Deposits     []Transaction
	Payments     []Transaction
	BillPayments []Transaction
	BankLines    []BankStatementLine
	Overrides    []CategoryOverride

	NREPayments       []PaymentLineItem
	InventoryPayments []PaymentLineItem
}

// DateRange bounds a summary request, inclusive on both ends.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether the date falls inside the range. Transactions
// without a date are always in range.
func (r *DateRange) Contains(date *time.Time) bool {
	if r == nil || date == nil {
		return true
	}
	d := normalizeDay(*date)
	return !d.Before(normalizeDay(r.Start)) && !d.After(normalizeDay(r.End))
}

// ReconciliationRow cross-checks one trusted category.
type ReconciliationRow struct {
	InternalDB   float64 `json:"internalDB"`
	Categorized  float64 `json:"categorized"`
	Delta        float64 `json:"delta"`
	IsReconciled bool    `json:"isReconciled"`
}

// PaymentStatusBreakdown buckets trusted payments by settlement state.
type PaymentStatusBreakdown struct {
	Paid     float64 `json:"paid"`
	Overdue  float64 `json:"overdue"`
	ToBePaid float64 `json:"toBePaid"`
}

// Summary is the full reconciliation report returned to the caller.
type Summary struct {
	Summary           map[Category]float64               `json:"summary"`
	CategorizedTotals map[Category]float64               `json:"categorizedTotals"`
	InternalDBTotals  map[Category]float64               `json:"internalDBTotals"`
	Reconciliation    map[Category]ReconciliationRow     `json:"reconciliation"`
	Breakdown         map[Category]PaymentStatusBreakdown `json:"breakdown"`
	LaborBreakdown    map[string]float64                 `json:"laborBreakdown"`
	RevenueBreakdown  map[string]float64                 `json:"revenueBreakdown"`
	TotalOutflows     float64                            `json:"totalOutflows"`
	TotalInflows      float64                            `json:"totalInflows"`
	NetCashFlow       float64                            `json:"netCashFlow"`
	DateRange         *DateRange                         `json:"dateRange"`
}

func normalizeDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
