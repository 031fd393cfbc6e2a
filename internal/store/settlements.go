package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fleximarket/reconciler/internal/domain"
)

type SettlementStore struct {
	db *sql.DB
}

func NewSettlementStore(db *sql.DB) *SettlementStore {
	return &SettlementStore{db: db}
}

const settlementColumns = `id, transaction_id, processor_name, net_amount,
	gross_amount, fee_amount, currency, fx_rate, status, settlement_date, upload_id`

// UploadExistsByHash checks whether a file with the given content hash has
// already been ingested (idempotency check).
func (s *SettlementStore) UploadExistsByHash(ctx context.Context, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM settlement_uploads WHERE file_hash = ?", hash,
	).Scan(&count)
	return count > 0, err
}

// InsertUpload writes the upload row and its entries in one SQL
// transaction. Entries are append-only; nothing here ever updates an
// existing row.
func (s *SettlementStore) InsertUpload(ctx context.Context, up domain.SettlementUpload, entries []domain.SettlementEntry) (int, error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx,
		`INSERT INTO settlement_uploads (id, processor_name, file_hash, record_count, uploaded_at)
		VALUES (?,?,?,?,?)`,
		up.ID, up.ProcessorName, up.FileHash, up.RecordCount,
		up.UploadedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return 0, fmt.Errorf("insert upload: %w", err)
	}

	stmt, err := sqlTx.PrepareContext(ctx,
		`INSERT INTO settlement_entries (`+settlementColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range entries {
		e := &entries[i]
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.TransactionID, e.ProcessorName, e.NetAmount.String(),
			e.GrossAmount.String(), nullDecimalArg(e.FeeAmount), e.Currency,
			nullDecimalArg(e.FXRate), string(e.Status),
			e.SettlementDate.UTC().Format(time.RFC3339), e.UploadID,
		); err != nil {
			return inserted, fmt.Errorf("insert entry %d: %w", i, err)
		}
		inserted++
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// ByTransactionID returns every settlement entry referencing the
// transaction, in ingestion order.
func (s *SettlementStore) ByTransactionID(ctx context.Context, txnID string) ([]domain.SettlementEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+settlementColumns+" FROM settlement_entries WHERE transaction_id = ? ORDER BY rowid",
		txnID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSettlements(rows)
}

// All returns the full settlement set in ingestion order. Runs take this
// as their settlement snapshot: late-arriving settlements must still match
// older transactions, so no date filter applies.
func (s *SettlementStore) All(ctx context.Context, processors []string) ([]domain.SettlementEntry, error) {
	q := "SELECT " + settlementColumns + " FROM settlement_entries"
	var args []any
	if len(processors) > 0 {
		q += " WHERE processor_name IN (" + strings.TrimSuffix(strings.Repeat("?,", len(processors)), ",") + ")"
		for _, p := range processors {
			args = append(args, p)
		}
	}
	q += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSettlements(rows)
}

type SettlementFilter struct {
	Processor string
	Currency  string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

func (s *SettlementStore) List(ctx context.Context, f SettlementFilter) ([]domain.SettlementEntry, int, error) {
	var clauses []string
	var args []any

	if f.Processor != "" {
		clauses = append(clauses, "processor_name = ?")
		args = append(args, f.Processor)
	}
	if f.Currency != "" {
		clauses = append(clauses, "currency = ?")
		args = append(args, f.Currency)
	}
	if f.From != nil {
		clauses = append(clauses, "settlement_date >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "settlement_date <= ?")
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM settlement_entries"+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+settlementColumns+" FROM settlement_entries"+where+" ORDER BY rowid LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	entries, err := scanSettlements(rows)
	return entries, total, err
}

// --- helpers ---

func scanSettlements(rows *sql.Rows) ([]domain.SettlementEntry, error) {
	var entries []domain.SettlementEntry
	for rows.Next() {
		var e domain.SettlementEntry
		var net, gross, status, settDate string
		var fee, fxRate sql.NullString

		err := rows.Scan(
			&e.ID, &e.TransactionID, &e.ProcessorName, &net, &gross,
			&fee, &e.Currency, &fxRate, &status, &settDate, &e.UploadID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		if e.NetAmount, err = parseDecimal(net); err != nil {
			return nil, err
		}
		if e.GrossAmount, err = parseDecimal(gross); err != nil {
			return nil, err
		}
		if e.FeeAmount, err = parseNullDecimal(fee); err != nil {
			return nil, err
		}
		if e.FXRate, err = parseNullDecimal(fxRate); err != nil {
			return nil, err
		}
		e.Status = domain.SettlementStatus(status)
		e.SettlementDate = parseTimeCol(settDate)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
