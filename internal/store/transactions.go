package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleximarket/reconciler/internal/domain"
)

// ErrNotFound is returned by single-record lookups when no row matches.
var ErrNotFound = errors.New("not found")

type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const txnColumns = `transaction_id, amount, currency, processor_name, status,
	transaction_date, expected_fee_rate, expected_fx_rate, country`

// BulkInsertTransactions inserts expected transactions inside one SQL
// transaction. Callers resolve the skip policy beforehand; INSERT OR
// IGNORE keeps concurrent loaders from tripping over each other.
func (s *TransactionStore) BulkInsertTransactions(ctx context.Context, txns []domain.ExpectedTransaction) (int, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO expected_transactions (`+txnColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range txns {
		t := &txns[i]
		res, err := stmt.ExecContext(ctx,
			t.TransactionID, t.Amount.String(), t.Currency, t.ProcessorName,
			string(t.Status), t.TransactionDate.UTC().Format(time.RFC3339),
			t.ExpectedFeeRate.String(), nullDecimalArg(t.ExpectedFXRate), t.Country,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// ExistingTransactionIDs reports which of the given ids are already
// loaded.
func (s *TransactionStore) ExistingTransactionIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(ids) == 0 {
		return existing, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT transaction_id FROM expected_transactions WHERE transaction_id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

func (s *TransactionStore) GetByID(ctx context.Context, id string) (*domain.ExpectedTransaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+txnColumns+" FROM expected_transactions WHERE transaction_id = ?", id,
	)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *TransactionStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM expected_transactions").Scan(&count)
	return count, err
}

type TransactionFilter struct {
	Processor string
	Status    string
	Currency  string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

func (s *TransactionStore) List(ctx context.Context, f TransactionFilter) ([]domain.ExpectedTransaction, int, error) {
	where, args := buildTransactionWhere(f)

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM expected_transactions"+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT " + txnColumns + " FROM expected_transactions" + where +
		" ORDER BY transaction_date DESC, transaction_id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	txns, err := scanTransactions(rows)
	return txns, total, err
}

// InDateRange returns expected transactions whose transaction_date falls
// in [from, to], ordered by date then id so runs see a stable sequence.
func (s *TransactionStore) InDateRange(ctx context.Context, from, to time.Time, processors []string) ([]domain.ExpectedTransaction, error) {
	q := "SELECT " + txnColumns + ` FROM expected_transactions
		WHERE transaction_date >= ? AND transaction_date <= ?`
	args := []any{from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)}

	if len(processors) > 0 {
		q += " AND processor_name IN (" + strings.TrimSuffix(strings.Repeat("?,", len(processors)), ",") + ")"
		for _, p := range processors {
			args = append(args, p)
		}
	}
	q += " ORDER BY transaction_date, transaction_id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// --- helpers ---

func buildTransactionWhere(f TransactionFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Processor != "" {
		clauses = append(clauses, "processor_name = ?")
		args = append(args, f.Processor)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Currency != "" {
		clauses = append(clauses, "currency = ?")
		args = append(args, f.Currency)
	}
	if f.From != nil {
		clauses = append(clauses, "transaction_date >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "transaction_date <= ?")
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransactionRow(row rowScanner) (*domain.ExpectedTransaction, error) {
	var t domain.ExpectedTransaction
	var amount, feeRate, status, txnDate string
	var fxRate sql.NullString

	err := row.Scan(
		&t.TransactionID, &amount, &t.Currency, &t.ProcessorName, &status,
		&txnDate, &feeRate, &fxRate, &t.Country,
	)
	if err != nil {
		return nil, err
	}

	if t.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if t.ExpectedFeeRate, err = parseDecimal(feeRate); err != nil {
		return nil, err
	}
	if t.ExpectedFXRate, err = parseNullDecimal(fxRate); err != nil {
		return nil, err
	}
	t.Status = domain.TransactionStatus(status)
	t.TransactionDate = parseTimeCol(txnDate)

	return &t, nil
}

func scanTransaction(row *sql.Row) (*domain.ExpectedTransaction, error) {
	return scanTransactionRow(row)
}

func scanTransactions(rows *sql.Rows) ([]domain.ExpectedTransaction, error) {
	var txns []domain.ExpectedTransaction
	for rows.Next() {
		t, err := scanTransactionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}
