package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SettlementStatus string

const (
	SettlementSettled SettlementStatus = "settled"
	SettlementVoided  SettlementStatus = "voided"
	SettlementHeld    SettlementStatus = "held"
)

// SettlementEntry is one line from a processor's settlement report, already
// parsed and schema-validated by an ingestion adapter. Entries are
// append-only per upload and never mutated; several entries may share a
// transaction_id (that is a discrepancy signal, not an error).
type SettlementEntry struct {
	ID             string              `json:"id"`
	TransactionID  string              `json:"transaction_id"`
	ProcessorName  string              `json:"processor_name"`
	NetAmount      decimal.Decimal     `json:"net_amount"`
	GrossAmount    decimal.Decimal     `json:"gross_amount"`
	FeeAmount      decimal.NullDecimal `json:"fee_amount"`
	Currency       string              `json:"currency"`
	FXRate         decimal.NullDecimal `json:"fx_rate"`
	Status         SettlementStatus    `json:"status"`
	SettlementDate time.Time           `json:"settlement_date"`
	UploadID       string              `json:"upload_id,omitempty"`
}

// ActualFee returns the reported fee, falling back to gross − net when the
// processor did not report one explicitly.
func (e *SettlementEntry) ActualFee() decimal.Decimal {
	if e.FeeAmount.Valid {
		return e.FeeAmount.Decimal
	}
	return e.GrossAmount.Sub(e.NetAmount)
}

// SettlementUpload records one ingested settlement file. The file hash makes
// re-uploads of identical content idempotent.
type SettlementUpload struct {
	ID            string    `json:"id"`
	ProcessorName string    `json:"processor_name"`
	FileHash      string    `json:"file_hash"`
	RecordCount   int       `json:"record_count"`
	UploadedAt    time.Time `json:"uploaded_at"`
}
