// Package store persists the reconciler's records in SQLite and exposes
// the read-only query accessors consumed by the API. Monetary columns are
// stored as TEXT and parsed back into exact decimals — money is never
// round-tripped through floating point.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and
// ensures all required tables exist. Pass ":memory:" for an in-memory
// database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS expected_transactions (
			transaction_id TEXT PRIMARY KEY,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			processor_name TEXT NOT NULL,
			status TEXT NOT NULL,
			transaction_date DATETIME NOT NULL,
			expected_fee_rate TEXT NOT NULL,
			expected_fx_rate TEXT,
			country TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expected_processor_date
			ON expected_transactions(processor_name, transaction_date)`,
		`CREATE INDEX IF NOT EXISTS idx_expected_status ON expected_transactions(status)`,

		`CREATE TABLE IF NOT EXISTS settlement_uploads (
			id TEXT PRIMARY KEY,
			processor_name TEXT NOT NULL,
			file_hash TEXT UNIQUE NOT NULL,
			record_count INTEGER NOT NULL,
			uploaded_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS settlement_entries (
			id TEXT PRIMARY KEY,
			transaction_id TEXT NOT NULL,
			processor_name TEXT NOT NULL,
			net_amount TEXT NOT NULL,
			gross_amount TEXT NOT NULL,
			fee_amount TEXT,
			currency TEXT NOT NULL,
			fx_rate TEXT,
			status TEXT NOT NULL,
			settlement_date DATETIME NOT NULL,
			upload_id TEXT NOT NULL,
			FOREIGN KEY (upload_id) REFERENCES settlement_uploads(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_txn ON settlement_entries(transaction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_processor_date
			ON settlement_entries(processor_name, settlement_date)`,

		`CREATE TABLE IF NOT EXISTS reconciliation_reports (
			id TEXT PRIMARY KEY,
			date_range_start DATETIME NOT NULL,
			date_range_end DATETIME NOT NULL,
			status TEXT NOT NULL,
			total_transactions INTEGER NOT NULL,
			matched_count INTEGER NOT NULL,
			discrepancy_count INTEGER NOT NULL,
			missing_count INTEGER NOT NULL,
			total_impact_usd TEXT NOT NULL,
			unknown_impact_count INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS discrepancies (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			transaction_id TEXT NOT NULL,
			processor_name TEXT NOT NULL,
			severity TEXT NOT NULL,
			expected_amount TEXT NOT NULL,
			actual_amount TEXT,
			impact_usd TEXT,
			currency TEXT NOT NULL,
			description TEXT NOT NULL,
			detected_in_run_id TEXT NOT NULL,
			FOREIGN KEY (detected_in_run_id) REFERENCES reconciliation_reports(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_discrepancies_run ON discrepancies(detected_in_run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_discrepancies_type ON discrepancies(type)`,
		`CREATE INDEX IF NOT EXISTS idx_discrepancies_severity ON discrepancies(severity)`,
		`CREATE INDEX IF NOT EXISTS idx_discrepancies_txn ON discrepancies(transaction_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}

// --- decimal / time column helpers ---

func nullDecimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDecimal(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func parseTimeCol(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
