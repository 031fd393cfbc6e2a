// Package recon holds the reconciliation core: matching expected
// transactions to settlement entries, the discrepancy rule set, severity
// classification, and report aggregation. Everything in this package is
// pure computation over in-memory snapshots — no I/O, no mutation of
// inputs, deterministic given identical inputs.
package recon

import "github.com/fleximarket/reconciler/internal/domain"

// Pair is an expected transaction joined to its primary settlement entry.
// When a transaction_id has several entries, the first one in insertion
// order is the primary; the extras surface as duplicate discrepancies.
type Pair struct {
	Transaction domain.ExpectedTransaction
	Entry       domain.SettlementEntry
}

// MatchResult classifies every expected transaction of a run and keeps
// unclaimed settlement entries available for inspection.
type MatchResult struct {
	// Matched pairs, in expected-transaction order. Includes transactions
	// with duplicate entries (paired with the first entry).
	Matched []Pair
	// Missing transactions have no settlement entry at all.
	Missing []domain.ExpectedTransaction
	// DuplicateIDs lists transaction ids with 2+ entries, in
	// expected-transaction order.
	DuplicateIDs []string
	// Unexpected entries reference no expected transaction in the run's
	// universe. They are not counted but never dropped.
	Unexpected []domain.SettlementEntry

	// Entries indexes all settlement entries by transaction_id in stable
	// insertion order.
	Entries map[string][]domain.SettlementEntry
}

// Duplicates returns all entries for a duplicated transaction id,
// first (primary) entry included.
func (r *MatchResult) Duplicates(txnID string) []domain.SettlementEntry {
	return r.Entries[txnID]
}

// Match joins settlement entries to expected transactions by
// transaction_id. For each expected transaction: zero entries means
// missing, one means matched, two or more means matched against the first
// entry plus a duplicate signal for every extra one. Pure: input slices
// are never modified and two calls on the same snapshot classify
// identically.
func Match(txns []domain.ExpectedTransaction, entries []domain.SettlementEntry) *MatchResult {
	result := &MatchResult{
		Entries: make(map[string][]domain.SettlementEntry),
	}

	for _, e := range entries {
		result.Entries[e.TransactionID] = append(result.Entries[e.TransactionID], e)
	}

	claimed := make(map[string]bool, len(txns))
	for _, txn := range txns {
		matches := result.Entries[txn.TransactionID]
		switch len(matches) {
		case 0:
			result.Missing = append(result.Missing, txn)
		case 1:
			result.Matched = append(result.Matched, Pair{Transaction: txn, Entry: matches[0]})
			claimed[txn.TransactionID] = true
		default:
			// Duplicates do not suppress the other checks: the first entry
			// still acts as the candidate match.
			result.DuplicateIDs = append(result.DuplicateIDs, txn.TransactionID)
			result.Matched = append(result.Matched, Pair{Transaction: txn, Entry: matches[0]})
			claimed[txn.TransactionID] = true
		}
	}

	// Every entry id is either claimed by an expected transaction or
	// belongs to none of them: missing transactions by definition have no
	// entries carrying their id.
	for _, e := range entries {
		if !claimed[e.TransactionID] {
			result.Unexpected = append(result.Unexpected, e)
		}
	}

	return result
}
