package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleximarket/reconciler/internal/domain"
)

func TestSnapshots(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	_, err := s.Txns.BulkInsertTransactions(ctx, []domain.ExpectedTransaction{
		storeTxn("TXN-1", "payflow", "BRL", "100.00", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)),
		storeTxn("TXN-2", "payflow", "BRL", "50.00", time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	// The settlement for TXN-1 arrived after the window closed: it must
	// still be part of the snapshot.
	up := storeUpload("UP-1", "payflow", "hash-1", 1)
	late := storeEntry("E1", "TXN-1", "payflow")
	late.UploadID = up.ID
	late.SettlementDate = time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)
	_, err = s.Setts.InsertUpload(ctx, up, []domain.SettlementEntry{late})
	require.NoError(t, err)

	src := NewSnapshots(s.Txns, s.Setts)
	snap, err := src.Snapshot(ctx,
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
		nil,
	)
	require.NoError(t, err)

	require.Len(t, snap.Transactions, 1, "transactions are date-filtered")
	assert.Equal(t, "TXN-1", snap.Transactions[0].TransactionID)
	require.Len(t, snap.Settlements, 1, "settlements never are")
	assert.Equal(t, "E1", snap.Settlements[0].ID)
}

func TestSnapshots_ProcessorSubset(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()

	_, err := s.Txns.BulkInsertTransactions(ctx, []domain.ExpectedTransaction{
		storeTxn("TXN-1", "payflow", "BRL", "100.00", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)),
		storeTxn("TXN-2", "transactmax", "MXN", "50.00", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	src := NewSnapshots(s.Txns, s.Setts)
	snap, err := src.Snapshot(ctx,
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
		[]string{"transactmax"},
	)
	require.NoError(t, err)

	require.Len(t, snap.Transactions, 1)
	assert.Equal(t, "transactmax", snap.Transactions[0].ProcessorName)
}
