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

type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

const discColumns = `id, type, transaction_id, processor_name, severity,
	expected_amount, actual_amount, impact_usd, currency, description, detected_in_run_id`

// SaveRun persists one run's report and discrepancy set in a single SQL
// transaction. Discrepancies are keyed by the run id, so concurrent runs
// never interleave their sets and prior reports stay untouched.
func (s *RunStore) SaveRun(ctx context.Context, report domain.ReconciliationReport, discs []domain.Discrepancy) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback()

	var completedAt any
	if report.CompletedAt != nil {
		completedAt = report.CompletedAt.UTC().Format(time.RFC3339)
	}
	if _, err := sqlTx.ExecContext(ctx,
		`INSERT INTO reconciliation_reports
		(id, date_range_start, date_range_end, status, total_transactions,
		 matched_count, discrepancy_count, missing_count, total_impact_usd,
		 unknown_impact_count, created_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		report.ID,
		report.DateRangeStart.UTC().Format(time.RFC3339),
		report.DateRangeEnd.UTC().Format(time.RFC3339),
		string(report.Status), report.TotalTransactions, report.MatchedCount,
		report.DiscrepancyCount, report.MissingCount,
		report.TotalImpactUSD.String(), report.UnknownImpactCount,
		report.CreatedAt.UTC().Format(time.RFC3339), completedAt,
	); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	stmt, err := sqlTx.PrepareContext(ctx,
		`INSERT INTO discrepancies (`+discColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range discs {
		d := &discs[i]
		if _, err := stmt.ExecContext(ctx,
			d.ID, string(d.Type), d.TransactionID, d.ProcessorName,
			string(d.Severity), d.ExpectedAmount.String(),
			nullDecimalArg(d.ActualAmount), nullDecimalArg(d.ImpactUSD),
			d.Currency, d.Description, d.DetectedInRunID,
		); err != nil {
			return fmt.Errorf("insert discrepancy %d: %w", i, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *RunStore) GetReport(ctx context.Context, id string) (*domain.ReconciliationReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, date_range_start, date_range_end, status, total_transactions,
			matched_count, discrepancy_count, missing_count, total_impact_usd,
			unknown_impact_count, created_at, completed_at
		FROM reconciliation_reports WHERE id = ?`, id,
	)

	var r domain.ReconciliationReport
	var status, start, end, createdAt, impact string
	var completedAt sql.NullString

	err := row.Scan(
		&r.ID, &start, &end, &status, &r.TotalTransactions, &r.MatchedCount,
		&r.DiscrepancyCount, &r.MissingCount, &impact, &r.UnknownImpactCount,
		&createdAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.Status = domain.ReportStatus(status)
	r.DateRangeStart = parseTimeCol(start)
	r.DateRangeEnd = parseTimeCol(end)
	r.CreatedAt = parseTimeCol(createdAt)
	if r.TotalImpactUSD, err = parseDecimal(impact); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := parseTimeCol(completedAt.String)
		r.CompletedAt = &t
	}

	return &r, nil
}

// ListReports returns reports newest first.
func (s *RunStore) ListReports(ctx context.Context, limit int) ([]domain.ReconciliationReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM reconciliation_reports ORDER BY created_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reports := make([]domain.ReconciliationReport, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetReport(ctx, id)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, nil
}

type DiscrepancyFilter struct {
	Type      string
	Severity  string
	Processor string
	RunID     string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

// ListDiscrepancies applies the status-endpoint filter: type, processor,
// severity, run, and the date range of the owning run.
func (s *RunStore) ListDiscrepancies(ctx context.Context, f DiscrepancyFilter) ([]domain.Discrepancy, int, error) {
	var clauses []string
	var args []any

	if f.Type != "" {
		clauses = append(clauses, "d.type = ?")
		args = append(args, f.Type)
	}
	if f.Severity != "" {
		clauses = append(clauses, "d.severity = ?")
		args = append(args, f.Severity)
	}
	if f.Processor != "" {
		clauses = append(clauses, "d.processor_name = ?")
		args = append(args, f.Processor)
	}
	if f.RunID != "" {
		clauses = append(clauses, "d.detected_in_run_id = ?")
		args = append(args, f.RunID)
	}
	if f.From != nil {
		clauses = append(clauses, "r.created_at >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "r.created_at <= ?")
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	from := ` FROM discrepancies d
		JOIN reconciliation_reports r ON r.id = d.detected_in_run_id`

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	// Only the leading id column is ambiguous after the join.
	cols := strings.Replace(discColumns, "id,", "d.id,", 1)
	q := "SELECT " + cols + from + where + " ORDER BY d.rowid LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	discs, err := scanDiscrepancies(rows)
	return discs, total, err
}

// ByTransactionID returns every discrepancy referencing a transaction,
// across all runs.
func (s *RunStore) ByTransactionID(ctx context.Context, txnID string) ([]domain.Discrepancy, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+discColumns+" FROM discrepancies WHERE transaction_id = ? ORDER BY rowid",
		txnID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDiscrepancies(rows)
}

// ByRunID returns the full discrepancy set one run produced.
func (s *RunStore) ByRunID(ctx context.Context, runID string) ([]domain.Discrepancy, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+discColumns+" FROM discrepancies WHERE detected_in_run_id = ? ORDER BY rowid",
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDiscrepancies(rows)
}

// DistinctProcessors lists every processor name seen across expected
// transactions and settlement entries, for zero-filled summaries.
func (s *RunStore) DistinctProcessors(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT processor_name FROM expected_transactions
		UNION
		SELECT processor_name FROM settlement_entries
		ORDER BY processor_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var processors []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		processors = append(processors, p)
	}
	return processors, rows.Err()
}

// --- helpers ---

func scanDiscrepancies(rows *sql.Rows) ([]domain.Discrepancy, error) {
	var discs []domain.Discrepancy
	for rows.Next() {
		var d domain.Discrepancy
		var dtype, sev, expected string
		var actual, impact sql.NullString

		err := rows.Scan(
			&d.ID, &dtype, &d.TransactionID, &d.ProcessorName, &sev,
			&expected, &actual, &impact, &d.Currency, &d.Description,
			&d.DetectedInRunID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		d.Type = domain.DiscrepancyType(dtype)
		d.Severity = domain.Severity(sev)
		if d.ExpectedAmount, err = parseDecimal(expected); err != nil {
			return nil, err
		}
		if d.ActualAmount, err = parseNullDecimal(actual); err != nil {
			return nil, err
		}
		if d.ImpactUSD, err = parseNullDecimal(impact); err != nil {
			return nil, err
		}

		discs = append(discs, d)
	}
	return discs, rows.Err()
}
