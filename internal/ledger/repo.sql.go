package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository provides PostgreSQL backed persistence for the synced
// accounting sources.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// LoadTransactions returns every synced transaction of one source type,
// with its line items attached. Undated transactions are always included;
// the range only filters rows that carry a date.
func (r *PGRepository) LoadTransactions(ctx context.Context, sourceType string, rng *DateRange) ([]Transaction, error) {
	query := `SELECT source_type, source_id, txn_date, amount, category
		FROM gl_transactions WHERE source_type=$1`
	args := []any{sourceType}
	if rng != nil {
		query += ` AND (txn_date IS NULL OR txn_date BETWEEN $2 AND $3)`
		args = append(args, rng.Start, rng.End)
	}
	query += ` ORDER BY source_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []Transaction
	index := make(map[string]int)
	for rows.Next() {
		var txn Transaction
		var category *string
		if err := rows.Scan(&txn.SourceType, &txn.SourceID, &txn.Date, &txn.Amount, &category); err != nil {
			return nil, err
		}
		if category != nil {
			txn.Category = Category(*category)
		}
		index[txn.SourceID] = len(txns)
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}

	lineRows, err := r.pool.Query(ctx, `SELECT source_id, line_index, amount, category
		FROM gl_transaction_lines WHERE source_type=$1 ORDER BY source_id, line_index`, sourceType)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var sourceID string
		var line TransactionLine
		var category *string
		if err := lineRows.Scan(&sourceID, &line.Index, &line.Amount, &category); err != nil {
			return nil, err
		}
		if category != nil {
			line.Category = Category(*category)
		}
		pos, ok := index[sourceID]
		if !ok {
			continue
		}
		txns[pos].Lines = append(txns[pos].Lines, line)
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}
	return txns, nil
}

// LoadBankLines returns the imported bank feed rows.
func (r *PGRepository) LoadBankLines(ctx context.Context, rng *DateRange) ([]BankStatementLine, error) {
	query := `SELECT id, txn_date, description, debit, credit, COALESCE(category,''), matched
		FROM bank_statement_lines`
	var args []any
	if rng != nil {
		query += ` WHERE txn_date IS NULL OR txn_date BETWEEN $1 AND $2`
		args = append(args, rng.Start, rng.End)
	}
	query += ` ORDER BY txn_date, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []BankStatementLine
	for rows.Next() {
		var line BankStatementLine
		if err := rows.Scan(&line.ID, &line.Date, &line.Description, &line.Debit, &line.Credit, &line.Category, &line.Matched); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// LoadOverrides returns every manual category override.
func (r *PGRepository) LoadOverrides(ctx context.Context) ([]CategoryOverride, error) {
	rows, err := r.pool.Query(ctx, `SELECT source_type, source_id, COALESCE(line_index,''), category
		FROM category_overrides ORDER BY source_type, source_id, line_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []CategoryOverride
	for rows.Next() {
		var o CategoryOverride
		if err := rows.Scan(&o.SourceType, &o.SourceID, &o.LineIndex, &o.Category); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// LoadPaymentItems returns the trusted payment-tracking rows for one
// category (NRE or inventory).
func (r *PGRepository) LoadPaymentItems(ctx context.Context, category Category) ([]PaymentLineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, description, amount, is_paid, payment_date
		FROM payment_line_items WHERE category=$1 ORDER BY payment_date NULLS LAST, id`, string(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PaymentLineItem
	for rows.Next() {
		var item PaymentLineItem
		if err := rows.Scan(&item.ID, &item.Description, &item.Amount, &item.IsPaid, &item.PaymentDate); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpsertOverride stores one manual re-tag, replacing any previous tag for
// the same line.
func (r *PGRepository) UpsertOverride(ctx context.Context, o CategoryOverride) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO category_overrides (source_type, source_id, line_index, category)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (source_type, source_id, line_index)
		DO UPDATE SET category=EXCLUDED.category, updated_at=now()`,
		o.SourceType, o.SourceID, o.LineIndex, string(o.Category))
	return err
}

// MarkBankLineMatched flags a bank row as reconciled against a synced
// transaction so the summary stops counting it.
func (r *PGRepository) MarkBankLineMatched(ctx context.Context, id string, matched bool, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE bank_statement_lines SET matched=$2, updated_at=$3 WHERE id=$1`, id, matched, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBankLineNotFound
	}
	return nil
}
