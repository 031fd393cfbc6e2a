package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusAuthorized TransactionStatus = "authorized"
	StatusCaptured   TransactionStatus = "captured"
	StatusSettled    TransactionStatus = "settled"
	StatusRefunded   TransactionStatus = "refunded"
	StatusFailed     TransactionStatus = "failed"
	StatusCancelled  TransactionStatus = "cancelled"
)

// ExpectedTransaction is a transaction as recorded by the platform — the
// source of truth that settlement entries are reconciled against. Records
// are immutable once loaded; a bulk load that repeats an existing
// transaction_id skips the row.
type ExpectedTransaction struct {
	TransactionID   string              `json:"transaction_id"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        string              `json:"currency"`
	ProcessorName   string              `json:"processor_name"`
	Status          TransactionStatus   `json:"status"`
	TransactionDate time.Time           `json:"transaction_date"`
	ExpectedFeeRate decimal.Decimal     `json:"expected_fee_rate"`
	ExpectedFXRate  decimal.NullDecimal `json:"expected_fx_rate"`
	Country         string              `json:"country,omitempty"`
}
