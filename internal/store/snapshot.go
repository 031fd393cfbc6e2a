package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fleximarket/reconciler/internal/recon"
)

// Snapshots adapts the stores to the engine's SnapshotSource contract:
// resolve a run's inputs once, before computation starts.
type Snapshots struct {
	txns  *TransactionStore
	setts *SettlementStore
}

func NewSnapshots(txns *TransactionStore, setts *SettlementStore) *Snapshots {
	return &Snapshots{txns: txns, setts: setts}
}

// Snapshot loads expected transactions inside [from, to] and the full
// settlement set (settlements may arrive late, so they carry no date
// filter). The optional processor subset applies to both sides.
func (s *Snapshots) Snapshot(ctx context.Context, from, to time.Time, processors []string) (*recon.Snapshot, error) {
	txns, err := s.txns.InDateRange(ctx, from, to, processors)
	if err != nil {
		return nil, fmt.Errorf("load expected transactions: %w", err)
	}

	setts, err := s.setts.All(ctx, processors)
	if err != nil {
		return nil, fmt.Errorf("load settlement entries: %w", err)
	}

	return &recon.Snapshot{Transactions: txns, Settlements: setts}, nil
}
