package ledger

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Repository loads the transaction sources feeding the summary and stores
// the manual corrections applied on top of them.
type Repository interface {
	LoadTransactions(ctx context.Context, sourceType string, rng *DateRange) ([]Transaction, error)
	LoadBankLines(ctx context.Context, rng *DateRange) ([]BankStatementLine, error)
	LoadOverrides(ctx context.Context) ([]CategoryOverride, error)
	LoadPaymentItems(ctx context.Context, category Category) ([]PaymentLineItem, error)
	UpsertOverride(ctx context.Context, o CategoryOverride) error
	MarkBankLineMatched(ctx context.Context, id string, matched bool, at time.Time) error
}

// Service coordinates source loading, summary computation and caching.
type Service struct {
	repo  Repository
	cache *Cache
	group singleflight.Group
	now   func() time.Time
}

// NewService wires a Repository with a Cache helper. Cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// Summary returns the reconciliation report for the requested range,
// serving from cache when possible. Concurrent callers computing the same
// range share one computation.
func (s *Service) Summary(ctx context.Context, rng *DateRange) (Summary, error) {
	loader := func(ctx context.Context) (interface{}, error) {
		return s.compute(ctx, rng)
	}

	if s.cache == nil {
		value, err, _ := s.group.Do(rangeToken(rng), func() (interface{}, error) {
			return loader(ctx)
		})
		if err != nil {
			return Summary{}, err
		}
		return value.(Summary), nil
	}

	key, err := s.cache.BuildKey(ctx, "ledger", "summary", rangeToken(rng))
	if err != nil {
		return Summary{}, err
	}
	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		var out Summary
		if err := s.cache.FetchJSON(ctx, key, &out, loader); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return value.(Summary), nil
}

// Invalidate drops every cached summary. Called after source mutations.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// SetOverride re-tags one transaction line and invalidates cached summaries.
func (s *Service) SetOverride(ctx context.Context, o CategoryOverride) error {
	if !o.Category.IsValid() {
		return ErrUnknownCategory
	}
	if err := s.repo.UpsertOverride(ctx, o); err != nil {
		return err
	}
	return s.Invalidate(ctx)
}

// MarkBankLine toggles the matched flag on a bank statement row and
// invalidates cached summaries.
func (s *Service) MarkBankLine(ctx context.Context, id string, matched bool) error {
	if err := s.repo.MarkBankLineMatched(ctx, id, matched, s.now()); err != nil {
		return err
	}
	return s.Invalidate(ctx)
}

// compute loads every source concurrently and runs the aggregation.
func (s *Service) compute(ctx context.Context, rng *DateRange) (Summary, error) {
	var src SourceSet

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		src.Expenses, err = s.repo.LoadTransactions(gctx, SourceExpense, rng)
		return err
	})
	g.Go(func() (err error) {
		src.Bills, err = s.repo.LoadTransactions(gctx, SourceBill, rng)
		return err
	})
	g.Go(func() (err error) {
		src.Deposits, err = s.repo.LoadTransactions(gctx, SourceDeposit, rng)
		return err
	})
	g.Go(func() (err error) {
		src.Payments, err = s.repo.LoadTransactions(gctx, SourcePayment, rng)
		return err
	})
	g.Go(func() (err error) {
		src.BillPayments, err = s.repo.LoadTransactions(gctx, SourceBillPayment, rng)
		return err
	})
	g.Go(func() (err error) {
		src.BankLines, err = s.repo.LoadBankLines(gctx, rng)
		return err
	})
	g.Go(func() (err error) {
		src.Overrides, err = s.repo.LoadOverrides(gctx)
		return err
	})
	g.Go(func() (err error) {
		src.NREPayments, err = s.repo.LoadPaymentItems(gctx, CategoryNRE)
		return err
	})
	g.Go(func() (err error) {
		src.InventoryPayments, err = s.repo.LoadPaymentItems(gctx, CategoryInventory)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	return ComputeSummary(src, rng, s.now()), nil
}

func rangeToken(rng *DateRange) string {
	if rng == nil {
		return "all"
	}
	return rng.Start.Format("2006-01-02") + ":" + rng.End.Format("2006-01-02")
}
