// Package ingestion is the boundary between external data sources and the
// reconciliation core. It accepts already-normalized records — raw
// CSV/JSON/XML parsing lives in format adapters outside this repository —
// validates them, and hands them to the store.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleximarket/reconciler/internal/domain"
)

// Parser is the capability a format adapter implements: produce normalized
// settlement entries from raw report bytes. Adapters plug in without the
// core knowing about file formats.
type Parser interface {
	Parse(data []byte) ([]domain.SettlementEntry, error)
}

var (
	ErrEmptyBatch       = errors.New("batch contains no records")
	ErrMissingProcessor = errors.New("processor name is required")
)

// TransactionWriter is the slice of the store the loader needs.
type TransactionWriter interface {
	ExistingTransactionIDs(ctx context.Context, ids []string) (map[string]bool, error)
	BulkInsertTransactions(ctx context.Context, txns []domain.ExpectedTransaction) (int, error)
}

// SettlementWriter is the slice of the store the uploader needs.
type SettlementWriter interface {
	UploadExistsByHash(ctx context.Context, hash string) (bool, error)
	InsertUpload(ctx context.Context, up domain.SettlementUpload, entries []domain.SettlementEntry) (int, error)
}

// LoadResult reports the outcome of one bulk transaction load. Records
// whose transaction_id already exists are skipped, never overwritten.
type LoadResult struct {
	Loaded     int      `json:"loaded"`
	Skipped    int      `json:"skipped"`
	SkippedIDs []string `json:"skipped_ids,omitempty"`
}

// UploadResult reports the outcome of one settlement file upload.
type UploadResult struct {
	UploadID  string `json:"upload_id"`
	Processor string `json:"processor_name"`
	Received  int    `json:"received"`
	Inserted  int    `json:"inserted"`
	Duplicate bool   `json:"duplicate"`
}

type Service struct {
	txns   TransactionWriter
	setts  SettlementWriter
	logger zerolog.Logger
}

func NewService(txns TransactionWriter, setts SettlementWriter, logger zerolog.Logger) *Service {
	return &Service{
		txns:   txns,
		setts:  setts,
		logger: logger.With().Str("component", "ingestion").Logger(),
	}
}

// LoadExpected bulk-loads expected transactions. Superseding an existing
// transaction_id is not allowed: such rows are skipped and reported.
// Duplicate ids inside the batch itself collapse to the first occurrence.
func (s *Service) LoadExpected(ctx context.Context, txns []domain.ExpectedTransaction) (*LoadResult, error) {
	if len(txns) == 0 {
		return nil, ErrEmptyBatch
	}
	ids := make([]string, 0, len(txns))
	for i, t := range txns {
		if err := validateTransaction(&t); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		ids = append(ids, t.TransactionID)
	}

	existing, err := s.txns.ExistingTransactionIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("check existing ids: %w", err)
	}

	result := &LoadResult{}
	seen := make(map[string]bool, len(txns))
	fresh := make([]domain.ExpectedTransaction, 0, len(txns))
	for _, t := range txns {
		if existing[t.TransactionID] || seen[t.TransactionID] {
			result.Skipped++
			result.SkippedIDs = append(result.SkippedIDs, t.TransactionID)
			continue
		}
		seen[t.TransactionID] = true
		fresh = append(fresh, t)
	}

	inserted, err := s.txns.BulkInsertTransactions(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("bulk insert: %w", err)
	}
	result.Loaded = inserted

	s.logger.Info().
		Int("loaded", result.Loaded).
		Int("skipped", result.Skipped).
		Msg("expected transactions loaded")
	return result, nil
}

// UploadSettlements ingests one file's worth of normalized settlement
// entries for a processor. Entries are append-only and stamped with a
// fresh upload id; re-uploading identical content is a no-op detected via
// a content hash.
func (s *Service) UploadSettlements(ctx context.Context, processor string, entries []domain.SettlementEntry) (*UploadResult, error) {
	if processor == "" {
		return nil, ErrMissingProcessor
	}
	if len(entries) == 0 {
		return nil, ErrEmptyBatch
	}
	for i, e := range entries {
		if e.TransactionID == "" {
			return nil, fmt.Errorf("record %d: transaction id is required", i)
		}
		if e.Currency == "" {
			return nil, fmt.Errorf("record %d: currency is required", i)
		}
	}

	hash, err := contentHash(processor, entries)
	if err != nil {
		return nil, fmt.Errorf("hash batch: %w", err)
	}

	exists, err := s.setts.UploadExistsByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("check upload hash: %w", err)
	}
	if exists {
		s.logger.Warn().
			Str("processor", processor).
			Str("file_hash", hash).
			Msg("duplicate upload ignored")
		return &UploadResult{Processor: processor, Received: len(entries), Duplicate: true}, nil
	}

	upload := domain.SettlementUpload{
		ID:            uuid.NewString(),
		ProcessorName: processor,
		FileHash:      hash,
		RecordCount:   len(entries),
		UploadedAt:    time.Now().UTC(),
	}

	stamped := make([]domain.SettlementEntry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.ProcessorName = processor
		e.UploadID = upload.ID
		stamped[i] = e
	}

	inserted, err := s.setts.InsertUpload(ctx, upload, stamped)
	if err != nil {
		return nil, fmt.Errorf("insert upload: %w", err)
	}

	s.logger.Info().
		Str("processor", processor).
		Str("upload_id", upload.ID).
		Int("inserted", inserted).
		Msg("settlement entries ingested")
	return &UploadResult{
		UploadID:  upload.ID,
		Processor: processor,
		Received:  len(entries),
		Inserted:  inserted,
	}, nil
}

func validateTransaction(t *domain.ExpectedTransaction) error {
	if t.TransactionID == "" {
		return errors.New("transaction id is required")
	}
	if t.ProcessorName == "" {
		return ErrMissingProcessor
	}
	if t.Currency == "" {
		return errors.New("currency is required")
	}
	if t.TransactionDate.IsZero() {
		return errors.New("transaction date is required")
	}
	return nil
}

// contentHash fingerprints an upload so identical re-submissions are
// detected regardless of upload ids assigned later.
func contentHash(processor string, entries []domain.SettlementEntry) (string, error) {
	type line struct {
		TransactionID  string `json:"t"`
		NetAmount      string `json:"n"`
		GrossAmount    string `json:"g"`
		Currency       string `json:"c"`
		SettlementDate string `json:"d"`
	}
	lines := make([]line, len(entries))
	for i, e := range entries {
		lines[i] = line{
			TransactionID:  e.TransactionID,
			NetAmount:      e.NetAmount.String(),
			GrossAmount:    e.GrossAmount.String(),
			Currency:       e.Currency,
			SettlementDate: e.SettlementDate.UTC().Format(time.RFC3339),
		}
	}
	payload, err := json.Marshal(struct {
		Processor string `json:"p"`
		Lines     []line `json:"l"`
	}{processor, lines})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
