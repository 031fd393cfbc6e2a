package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleximarket/reconciler/internal/domain"
)

type fakeTxnWriter struct {
	existing map[string]bool
	inserted []domain.ExpectedTransaction
}

func (f *fakeTxnWriter) ExistingTransactionIDs(_ context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool)
	for _, id := range ids {
		if f.existing[id] {
			found[id] = true
		}
	}
	return found, nil
}

func (f *fakeTxnWriter) BulkInsertTransactions(_ context.Context, txns []domain.ExpectedTransaction) (int, error) {
	f.inserted = append(f.inserted, txns...)
	return len(txns), nil
}

type fakeSettWriter struct {
	hashes  map[string]bool
	uploads []domain.SettlementUpload
	entries []domain.SettlementEntry
}

func (f *fakeSettWriter) UploadExistsByHash(_ context.Context, hash string) (bool, error) {
	return f.hashes[hash], nil
}

func (f *fakeSettWriter) InsertUpload(_ context.Context, up domain.SettlementUpload, entries []domain.SettlementEntry) (int, error) {
	if f.hashes == nil {
		f.hashes = make(map[string]bool)
	}
	f.hashes[up.FileHash] = true
	f.uploads = append(f.uploads, up)
	f.entries = append(f.entries, entries...)
	return len(entries), nil
}

func newTestService(txns *fakeTxnWriter, setts *fakeSettWriter) *Service {
	return NewService(txns, setts, zerolog.Nop())
}

func txn(id string) domain.ExpectedTransaction {
	return domain.ExpectedTransaction{
		TransactionID:   id,
		Amount:          decimal.RequireFromString("100.00"),
		Currency:        "BRL",
		ProcessorName:   "payflow",
		Status:          domain.StatusCaptured,
		TransactionDate: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func entry(txnID string) domain.SettlementEntry {
	return domain.SettlementEntry{
		TransactionID:  txnID,
		NetAmount:      decimal.RequireFromString("97.50"),
		GrossAmount:    decimal.RequireFromString("100.00"),
		Currency:       "BRL",
		Status:         domain.SettlementSettled,
		SettlementDate: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
	}
}

func TestLoadExpected(t *testing.T) {
	txns := &fakeTxnWriter{existing: map[string]bool{"TXN-OLD": true}}
	svc := newTestService(txns, &fakeSettWriter{})

	result, err := svc.LoadExpected(context.Background(), []domain.ExpectedTransaction{
		txn("TXN-1"),
		txn("TXN-OLD"), // already in the store, must not be overwritten
		txn("TXN-2"),
		txn("TXN-1"), // in-batch duplicate collapses to the first
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Loaded)
	assert.Equal(t, 2, result.Skipped)
	assert.ElementsMatch(t, []string{"TXN-OLD", "TXN-1"}, result.SkippedIDs)
	require.Len(t, txns.inserted, 2)
	assert.Equal(t, "TXN-1", txns.inserted[0].TransactionID)
	assert.Equal(t, "TXN-2", txns.inserted[1].TransactionID)
}

func TestLoadExpected_Validation(t *testing.T) {
	svc := newTestService(&fakeTxnWriter{}, &fakeSettWriter{})
	ctx := context.Background()

	_, err := svc.LoadExpected(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	missingID := txn("")
	_, err = svc.LoadExpected(ctx, []domain.ExpectedTransaction{missingID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 0")

	noProcessor := txn("TXN-1")
	noProcessor.ProcessorName = ""
	_, err = svc.LoadExpected(ctx, []domain.ExpectedTransaction{txn("TXN-0"), noProcessor})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingProcessor)
	assert.Contains(t, err.Error(), "record 1")
}

func TestUploadSettlements(t *testing.T) {
	setts := &fakeSettWriter{}
	svc := newTestService(&fakeTxnWriter{}, setts)

	result, err := svc.UploadSettlements(context.Background(), "payflow", []domain.SettlementEntry{
		entry("TXN-1"),
		entry("TXN-2"),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.UploadID)
	assert.Equal(t, "payflow", result.Processor)
	assert.Equal(t, 2, result.Received)
	assert.Equal(t, 2, result.Inserted)
	assert.False(t, result.Duplicate)

	require.Len(t, setts.uploads, 1)
	up := setts.uploads[0]
	assert.Equal(t, result.UploadID, up.ID)
	assert.Equal(t, 2, up.RecordCount)
	assert.NotEmpty(t, up.FileHash)

	// Every entry is stamped with the upload id, the processor, and a
	// generated id.
	for _, e := range setts.entries {
		assert.Equal(t, up.ID, e.UploadID)
		assert.Equal(t, "payflow", e.ProcessorName)
		assert.NotEmpty(t, e.ID)
	}
}

func TestUploadSettlements_DuplicateContentIgnored(t *testing.T) {
	setts := &fakeSettWriter{}
	svc := newTestService(&fakeTxnWriter{}, setts)
	ctx := context.Background()
	batch := []domain.SettlementEntry{entry("TXN-1"), entry("TXN-2")}

	first, err := svc.UploadSettlements(ctx, "payflow", batch)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := svc.UploadSettlements(ctx, "payflow", batch)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Empty(t, second.UploadID)
	assert.Zero(t, second.Inserted)
	assert.Len(t, setts.entries, 2, "no rows added by the duplicate upload")
}

func TestUploadSettlements_SameContentDifferentProcessor(t *testing.T) {
	setts := &fakeSettWriter{}
	svc := newTestService(&fakeTxnWriter{}, setts)
	ctx := context.Background()
	batch := []domain.SettlementEntry{entry("TXN-1")}

	first, err := svc.UploadSettlements(ctx, "payflow", batch)
	require.NoError(t, err)
	second, err := svc.UploadSettlements(ctx, "transactmax", batch)
	require.NoError(t, err)

	// The processor participates in the content hash, so the second upload
	// is not a duplicate of the first.
	assert.False(t, second.Duplicate)
	assert.NotEqual(t, first.UploadID, second.UploadID)
}

func TestUploadSettlements_Validation(t *testing.T) {
	svc := newTestService(&fakeTxnWriter{}, &fakeSettWriter{})
	ctx := context.Background()

	_, err := svc.UploadSettlements(ctx, "", []domain.SettlementEntry{entry("TXN-1")})
	assert.ErrorIs(t, err, ErrMissingProcessor)

	_, err = svc.UploadSettlements(ctx, "payflow", nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	noID := entry("")
	_, err = svc.UploadSettlements(ctx, "payflow", []domain.SettlementEntry{noID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction id is required")

	noCurrency := entry("TXN-1")
	noCurrency.Currency = ""
	_, err = svc.UploadSettlements(ctx, "payflow", []domain.SettlementEntry{noCurrency})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "currency is required")
}
