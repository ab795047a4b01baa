package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	_ "github.com/meridian-scm/meridian/internal/testing/guard"
)

type memoryLedgerRepo struct {
	mu           sync.Mutex
	transactions map[string][]Transaction
	bankLines    []BankStatementLine
	overrides    map[string]CategoryOverride
	payments     map[Category][]PaymentLineItem

	loadCalls int
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		transactions: make(map[string][]Transaction),
		overrides:    make(map[string]CategoryOverride),
		payments:     make(map[Category][]PaymentLineItem),
	}
}

func (m *memoryLedgerRepo) LoadTransactions(_ context.Context, sourceType string, rng *DateRange) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	var out []Transaction
	for _, txn := range m.transactions[sourceType] {
		if rng.Contains(txn.Date) {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (m *memoryLedgerRepo) LoadBankLines(_ context.Context, rng *DateRange) ([]BankStatementLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	var out []BankStatementLine
	for _, line := range m.bankLines {
		if rng.Contains(line.Date) {
			out = append(out, line)
		}
	}
	return out, nil
}

func (m *memoryLedgerRepo) LoadOverrides(context.Context) ([]CategoryOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	var out []CategoryOverride
	for _, o := range m.overrides {
		out = append(out, o)
	}
	return out, nil
}

func (m *memoryLedgerRepo) LoadPaymentItems(_ context.Context, category Category) ([]PaymentLineItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCalls++
	return m.payments[category], nil
}

func (m *memoryLedgerRepo) UpsertOverride(_ context.Context, o CategoryOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[o.Key()] = o
	return nil
}

func (m *memoryLedgerRepo) MarkBankLineMatched(_ context.Context, id string, matched bool, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.bankLines {
		if m.bankLines[i].ID == id {
			m.bankLines[i].Matched = matched
			return nil
		}
	}
	return ErrBankLineNotFound
}

func (m *memoryLedgerRepo) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCalls
}

func newTestService(t *testing.T, repo *memoryLedgerRepo) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(repo, NewCache(client, time.Minute))
	svc.now = func() time.Time { return testToday }
	return svc
}

func TestServiceSummaryCacheHit(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.transactions[SourceExpense] = []Transaction{
		{SourceType: SourceExpense, SourceID: "e-1", Date: dayPtr("2025-05-01"), Amount: 120, Category: CategoryOpex},
	}
	svc := newTestService(t, repo)

	first, err := svc.Summary(context.Background(), nil)
	require.NoError(t, err)
	require.InDelta(t, 120, first.Summary[CategoryOpex], 0.001)
	loadsAfterFirst := repo.calls()
	require.Positive(t, loadsAfterFirst)

	second, err := svc.Summary(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, first.Summary, second.Summary)
	require.Equal(t, loadsAfterFirst, repo.calls(), "second call must come from cache")
}

func TestServiceSetOverrideInvalidatesCache(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.transactions[SourceExpense] = []Transaction{
		{SourceType: SourceExpense, SourceID: "e-1", Date: dayPtr("2025-05-01"), Amount: 120, Category: CategoryOpex},
	}
	svc := newTestService(t, repo)

	before, err := svc.Summary(context.Background(), nil)
	require.NoError(t, err)
	require.InDelta(t, 120, before.Summary[CategoryOpex], 0.001)

	err = svc.SetOverride(context.Background(), CategoryOverride{
		SourceType: SourceExpense, SourceID: "e-1", Category: CategoryLabor,
	})
	require.NoError(t, err)

	after, err := svc.Summary(context.Background(), nil)
	require.NoError(t, err)
	require.InDelta(t, 0, after.Summary[CategoryOpex], 0.001)
	require.InDelta(t, 120, after.Summary[CategoryLabor], 0.001)
}

func TestServiceSetOverrideRejectsUnknownCategory(t *testing.T) {
	svc := newTestService(t, newMemoryLedgerRepo())
	err := svc.SetOverride(context.Background(), CategoryOverride{
		SourceType: SourceExpense, SourceID: "e-1", Category: Category("freight-misc"),
	})
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestServiceMarkBankLineInvalidatesCache(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.bankLines = []BankStatementLine{
		{ID: "b-1", Date: dayPtr("2025-05-02"), Description: "ACME SUPPLIES", Debit: 80, Category: CategoryOpex},
	}
	svc := newTestService(t, repo)

	before, err := svc.Summary(context.Background(), nil)
	require.NoError(t, err)
	require.InDelta(t, 80, before.Summary[CategoryOpex], 0.001)

	require.NoError(t, svc.MarkBankLine(context.Background(), "b-1", true))

	after, err := svc.Summary(context.Background(), nil)
	require.NoError(t, err)
	require.InDelta(t, 0, after.Summary[CategoryOpex], 0.001)

	err = svc.MarkBankLine(context.Background(), "missing", true)
	require.ErrorIs(t, err, ErrBankLineNotFound)
}

func TestServiceSummaryRangesCachedSeparately(t *testing.T) {
	repo := newMemoryLedgerRepo()
	repo.transactions[SourceExpense] = []Transaction{
		{SourceType: SourceExpense, SourceID: "e-may", Date: dayPtr("2025-05-01"), Amount: 100, Category: CategoryOpex},
		{SourceType: SourceExpense, SourceID: "e-jun", Date: dayPtr("2025-06-01"), Amount: 40, Category: CategoryOpex},
	}
	svc := newTestService(t, repo)

	may := &DateRange{Start: day("2025-05-01"), End: day("2025-05-31")}
	june := &DateRange{Start: day("2025-06-01"), End: day("2025-06-30")}

	maySummary, err := svc.Summary(context.Background(), may)
	require.NoError(t, err)
	require.InDelta(t, 100, maySummary.Summary[CategoryOpex], 0.001)

	juneSummary, err := svc.Summary(context.Background(), june)
	require.NoError(t, err)
	require.InDelta(t, 40, juneSummary.Summary[CategoryOpex], 0.001)
}
