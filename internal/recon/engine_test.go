package recon

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleximarket/reconciler/internal/domain"
)

type fakeSource struct {
	snap *Snapshot
	err  error
}

func (f *fakeSource) Snapshot(context.Context, time.Time, time.Time, []string) (*Snapshot, error) {
	return f.snap, f.err
}

func testParams() RunParams {
	return RunParams{
		DateFrom: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC),
	}
}

func testSnapshot() *Snapshot {
	e1 := settlementEntry("E1", "TXN-2", "payflow", "BRL", "45.00", "50.00")
	e2 := settlementEntry("E2", "TXN-2", "payflow", "BRL", "45.00", "50.00")
	return &Snapshot{
		Transactions: []domain.ExpectedTransaction{
			expectedTxn("TXN-1", "payflow", "BRL", "100.00"),    // missing
			expectedTxn("TXN-2", "payflow", "BRL", "50.00"),     // duplicate + fee
			expectedTxn("TXN-3", "transactmax", "MXN", "80.00"), // clean
		},
		Settlements: []domain.SettlementEntry{
			e1, e2,
			settlementEntry("E3", "TXN-3", "transactmax", "MXN", "80.00", "82.00"),
			settlementEntry("E4", "TXN-STRAY", "globalpay", "CLP", "10.00", "10.00"),
		},
	}
}

// discKey projects a discrepancy onto the fields that define run-level
// identity: everything except the per-run id and timestamps.
func discKey(d domain.Discrepancy) string {
	impact := "null"
	if d.ImpactUSD.Valid {
		impact = d.ImpactUSD.Decimal.String()
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", d.Type, d.TransactionID, d.ProcessorName, d.Severity, impact)
}

func TestEngine_Run(t *testing.T) {
	engine := NewEngine(&fakeSource{snap: testSnapshot()}, zerolog.Nop())

	result, err := engine.Run(context.Background(), testConfig(), testParams())
	require.NoError(t, err)

	report := result.Report
	assert.Equal(t, domain.ReportCompleted, report.Status)
	assert.Equal(t, 3, report.TotalTransactions)
	assert.Equal(t, 2, report.MatchedCount)
	assert.Equal(t, 1, report.MissingCount)
	assert.Equal(t, report.TotalTransactions, report.MatchedCount+report.MissingCount,
		"matched + missing partitions the run exactly; duplicates counted separately")
	assert.NotNil(t, report.CompletedAt)

	// TXN-1 missing, TXN-2 one duplicate plus the TXN-2 fee check
	// (gross−net = 5.00 vs expected 1.25).
	types := map[domain.DiscrepancyType]int{}
	for _, d := range result.Discrepancies {
		types[d.Type]++
		assert.Equal(t, report.ID, d.DetectedInRunID)
	}
	assert.Equal(t, 1, types[domain.DiscrepancyMissingSettlement])
	assert.Equal(t, 1, types[domain.DiscrepancyDuplicate])
	assert.Equal(t, 1, types[domain.DiscrepancyExcessiveFee])
	assert.Equal(t, 1, types[domain.DiscrepancyAmountMismatch], "net 45.00 against expected 50.00")
	assert.Equal(t, 4, report.DiscrepancyCount)

	// The stray settlement is surfaced, not counted.
	require.Len(t, result.UnexpectedEntries, 1)
	assert.Equal(t, "E4", result.UnexpectedEntries[0].ID)

	// Consistency invariant: every discrepancy references a transaction in
	// the run universe.
	universe := map[string]bool{"TXN-1": true, "TXN-2": true, "TXN-3": true}
	for _, d := range result.Discrepancies {
		assert.True(t, universe[d.TransactionID], "discrepancy references %s outside the snapshot", d.TransactionID)
	}
}

func TestEngine_Idempotent(t *testing.T) {
	engine := NewEngine(&fakeSource{snap: testSnapshot()}, zerolog.Nop())
	cfg := testConfig()

	first, err := engine.Run(context.Background(), cfg, testParams())
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), cfg, testParams())
	require.NoError(t, err)

	assert.NotEqual(t, first.Report.ID, second.Report.ID, "each run gets its own id")

	keysOf := func(discs []domain.Discrepancy) []string {
		keys := make([]string, len(discs))
		for i, d := range discs {
			keys[i] = discKey(d)
		}
		sort.Strings(keys)
		return keys
	}
	assert.Equal(t, keysOf(first.Discrepancies), keysOf(second.Discrepancies),
		"re-running an unchanged snapshot yields a set-equal discrepancy set")
}

func TestEngine_SnapshotFailure(t *testing.T) {
	engine := NewEngine(&fakeSource{err: errors.New("db gone")}, zerolog.Nop())

	result, err := engine.Run(context.Background(), testConfig(), testParams())
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.ReportFailed, result.Report.Status)
	assert.Empty(t, result.Discrepancies)
}

func TestEngine_DoesNotMutateSnapshot(t *testing.T) {
	snap := testSnapshot()
	wantTxns := make([]domain.ExpectedTransaction, len(snap.Transactions))
	copy(wantTxns, snap.Transactions)
	wantSetts := make([]domain.SettlementEntry, len(snap.Settlements))
	copy(wantSetts, snap.Settlements)

	engine := NewEngine(&fakeSource{snap: snap}, zerolog.Nop())
	_, err := engine.Run(context.Background(), testConfig(), testParams())
	require.NoError(t, err)

	assert.Equal(t, wantTxns, snap.Transactions)
	assert.Equal(t, wantSetts, snap.Settlements)
}

func TestEngine_ReportTotalsMatchSummary(t *testing.T) {
	engine := NewEngine(&fakeSource{snap: testSnapshot()}, zerolog.Nop())

	result, err := engine.Run(context.Background(), testConfig(), testParams())
	require.NoError(t, err)

	assert.Equal(t, len(result.Discrepancies), result.Report.DiscrepancyCount)
	assert.Equal(t, result.Summary.TotalCount, result.Report.DiscrepancyCount)
	assert.True(t, result.Summary.TotalImpactUSD.Equal(result.Report.TotalImpactUSD))

	var manual decimal.Decimal
	for _, d := range result.Discrepancies {
		if d.ImpactUSD.Valid {
			manual = manual.Add(d.ImpactUSD.Decimal.Abs())
		}
	}
	assert.True(t, manual.Equal(result.Report.TotalImpactUSD))
}
