package ledger

import "strings"

// AmountSelector picks which side of a bank line a rule books.
type AmountSelector int

const (
	// AmountDebit books the debit column as an outflow.
	AmountDebit AmountSelector = iota
	// AmountCreditNegated books the credit column negated, the convention
	// for financing inflows in an outflow-positive ledger.
	AmountCreditNegated
	// AmountNet books debit minus credit.
	AmountNet
)

// BankRule classifies an unmatched bank statement line. Rules run in slice
// order and the first match wins.
type BankRule struct {
	Name        string
	Match       func(description string) bool
	Category    Category
	Subcategory string
	Amount      AmountSelector
}

// Select returns the amount the rule books for the line.
func (s AmountSelector) Select(line BankStatementLine) float64 {
	switch s {
	case AmountDebit:
		return line.Debit
	case AmountCreditNegated:
		return -line.Credit
	default:
		return line.Debit - line.Credit
	}
}

// Description markers for the loan-servicer transfer pair. The servicer
// books interest as an outbound transfer and principal draws as inbound.
const (
	loanServicerDebitMarker  = "ONLINE PMT TO HARBOR CAPITAL"
	loanServicerCreditMarker = "ONLINE TRANSFER FROM HARBOR CAPITAL"
)

// Payroll provider signatures as they appear on the bank feed.
const (
	payrollNetPayMarker = "GUSTO"
	payrollNetPaySuffix = "NET PAY"
	payrollTaxSuffix    = "TAX"
)

// benefitsVendors are insurance and benefits providers whose drafts count
// as labor overhead.
var benefitsVendors = []string{
	"GUARDIAN LIFE",
	"KAISER PERMANENTE",
	"PRINCIPAL LIFE INS",
}

func containsAll(description string, needles ...string) bool {
	for _, needle := range needles {
		if !strings.Contains(description, needle) {
			return false
		}
	}
	return true
}

// DefaultBankRules returns the classification table for unmatched bank
// lines in priority order.
func DefaultBankRules() []BankRule {
	return []BankRule{
		{
			Name:     "loan interest payment",
			Match:    func(d string) bool { return strings.Contains(d, loanServicerDebitMarker) },
			Category: CategoryLoanInterest,
			Amount:   AmountDebit,
		},
		{
			Name:     "loan principal draw",
			Match:    func(d string) bool { return strings.Contains(d, loanServicerCreditMarker) },
			Category: CategoryLoans,
			Amount:   AmountCreditNegated,
		},
		{
			Name:        "payroll direct deposit",
			Match:       func(d string) bool { return containsAll(d, payrollNetPayMarker, payrollNetPaySuffix) },
			Category:    CategoryLabor,
			Subcategory: LaborPayroll,
			Amount:      AmountDebit,
		},
		{
			Name:        "payroll taxes",
			Match:       func(d string) bool { return containsAll(d, payrollNetPayMarker, payrollTaxSuffix) },
			Category:    CategoryLabor,
			Subcategory: LaborTaxes,
			Amount:      AmountDebit,
		},
		{
			Name: "benefits and insurance",
			Match: func(d string) bool {
				for _, vendor := range benefitsVendors {
					if strings.Contains(d, vendor) {
						return true
					}
				}
				return false
			},
			Category:    CategoryLabor,
			Subcategory: LaborOverhead,
			Amount:      AmountDebit,
		},
	}
}

// classifyBankLine resolves a line against the rule table. When no rule
// matches it falls back to the line's stored category (or unassigned) with
// the net amount.
func classifyBankLine(line BankStatementLine, rules []BankRule) (Category, string, float64) {
	description := strings.ToUpper(line.Description)
	for _, rule := range rules {
		if rule.Match(description) {
			return rule.Category, rule.Subcategory, rule.Amount.Select(line)
		}
	}
	category := line.Category
	if category == "" || !category.IsValid() {
		category = CategoryUnassigned
	}
	return category, "", line.Debit - line.Credit
}
