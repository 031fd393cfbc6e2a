package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleximarket/reconciler/internal/config"
	"github.com/fleximarket/reconciler/internal/domain"
	"github.com/fleximarket/reconciler/internal/fx"
)

// Snapshot is the immutable input of one run: expected transactions inside
// the date window and the full settlement set ingested so far (settlements
// may arrive late, so they are never date-filtered).
type Snapshot struct {
	Transactions []domain.ExpectedTransaction
	Settlements  []domain.SettlementEntry
}

// SnapshotSource resolves a run's inputs once, before computation starts.
// The store implements it; tests use in-memory fakes.
type SnapshotSource interface {
	Snapshot(ctx context.Context, from, to time.Time, processors []string) (*Snapshot, error)
}

// RunParams select the date window (inclusive) and an optional processor
// subset for a run.
type RunParams struct {
	DateFrom   time.Time
	DateTo     time.Time
	Processors []string
}

// Result is everything one run produced. The caller persists Report and
// Discrepancies; Summary and UnexpectedEntries are diagnostic views.
type Result struct {
	Report            domain.ReconciliationReport
	Discrepancies     []domain.Discrepancy
	Summary           Summary
	UnexpectedEntries []domain.SettlementEntry
}

// Engine orchestrates one reconciliation run: resolve the snapshot, match,
// evaluate rules, classify severity, aggregate. The computation itself is
// synchronous and single-threaded; concurrent runs are safe because each
// works on its own snapshot and writes only records tagged with its own
// run id.
type Engine struct {
	src    SnapshotSource
	rules  *RuleEngine
	logger zerolog.Logger
}

func NewEngine(src SnapshotSource, logger zerolog.Logger) *Engine {
	return &Engine{
		src:    src,
		rules:  NewRuleEngine(),
		logger: logger.With().Str("component", "recon").Logger(),
	}
}

// Run executes a full reconciliation over the given window. Config is
// taken per call so reconfiguration needs no restart and concurrent runs
// can differ. Re-running on an unchanged snapshot yields a set-equal
// discrepancy set; only run id and timestamps change.
//
// A snapshot read failure is the only run-level failure: the returned
// result carries a failed report and no discrepancies.
func (e *Engine) Run(ctx context.Context, cfg config.Config, p RunParams) (*Result, error) {
	runID := uuid.NewString()
	createdAt := time.Now().UTC()

	report := domain.ReconciliationReport{
		ID:             runID,
		DateRangeStart: p.DateFrom,
		DateRangeEnd:   p.DateTo,
		CreatedAt:      createdAt,
	}

	snap, err := e.src.Snapshot(ctx, p.DateFrom, p.DateTo, p.Processors)
	if err != nil {
		report.Status = domain.ReportFailed
		e.logger.Error().Err(err).Str("run_id", runID).Msg("snapshot read failed")
		return &Result{Report: report}, fmt.Errorf("read snapshot: %w", err)
	}

	e.logger.Info().
		Str("run_id", runID).
		Int("transactions", len(snap.Transactions)).
		Int("settlements", len(snap.Settlements)).
		Msg("reconciliation run started")

	conv := fx.NewConverter(cfg.FXRatesToUSD)
	match := Match(snap.Transactions, snap.Settlements)

	var discs []domain.Discrepancy
	for _, txn := range snap.Transactions {
		candidates := e.rules.Evaluate(txn, match.Entries[txn.TransactionID], cfg, conv)
		for _, c := range candidates {
			discs = append(discs, domain.Discrepancy{
				ID:              uuid.NewString(),
				Type:            c.Type,
				TransactionID:   c.TransactionID,
				ProcessorName:   c.ProcessorName,
				Severity:        ClassifySeverity(c, cfg.Severity),
				ExpectedAmount:  c.ExpectedAmount,
				ActualAmount:    c.ActualAmount,
				ImpactUSD:       c.ImpactUSD,
				Currency:        c.Currency,
				Description:     c.Description,
				DetectedInRunID: runID,
			})
		}
	}

	summary := Aggregate(discs, runUniverse(snap))

	completedAt := time.Now().UTC()
	report.Status = domain.ReportCompleted
	report.TotalTransactions = len(snap.Transactions)
	report.MatchedCount = len(match.Matched)
	report.MissingCount = len(match.Missing)
	report.DiscrepancyCount = len(discs)
	report.TotalImpactUSD = summary.TotalImpactUSD
	report.UnknownImpactCount = summary.UnknownImpactCount
	report.CompletedAt = &completedAt

	e.logger.Info().
		Str("run_id", runID).
		Int("matched", report.MatchedCount).
		Int("missing", report.MissingCount).
		Int("duplicates", len(match.DuplicateIDs)).
		Int("unexpected", len(match.Unexpected)).
		Int("discrepancies", report.DiscrepancyCount).
		Str("total_impact_usd", report.TotalImpactUSD.String()).
		Msg("reconciliation run completed")

	return &Result{
		Report:            report,
		Discrepancies:     discs,
		Summary:           summary,
		UnexpectedEntries: match.Unexpected,
	}, nil
}

// runUniverse collects every processor name seen in the snapshot so the
// summary includes zero-count processors.
func runUniverse(snap *Snapshot) []string {
	seen := make(map[string]bool)
	var processors []string
	for _, t := range snap.Transactions {
		if !seen[t.ProcessorName] {
			seen[t.ProcessorName] = true
			processors = append(processors, t.ProcessorName)
		}
	}
	for _, s := range snap.Settlements {
		if !seen[s.ProcessorName] {
			seen[s.ProcessorName] = true
			processors = append(processors, s.ProcessorName)
		}
	}
	return processors
}
