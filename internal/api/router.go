package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fleximarket/reconciler/internal/config"
	"github.com/fleximarket/reconciler/internal/fees"
	"github.com/fleximarket/reconciler/internal/ingestion"
	"github.com/fleximarket/reconciler/internal/jobs"
	"github.com/fleximarket/reconciler/internal/recon"
	"github.com/fleximarket/reconciler/internal/store"
)

// NewRouter creates the chi router with all routes mounted.
func NewRouter(
	txnStore *store.TransactionStore,
	settStore *store.SettlementStore,
	runStore *store.RunStore,
	ingestionSvc *ingestion.Service,
	reconSvc *recon.Service,
	tracker *jobs.Tracker,
	analyzer *fees.Analyzer,
	loadCfg func() config.Config,
) http.Handler {
	h := &Handlers{
		txnStore:     txnStore,
		settStore:    settStore,
		runStore:     runStore,
		ingestionSvc: ingestionSvc,
		reconSvc:     reconSvc,
		tracker:      tracker,
		analyzer:     analyzer,
		loadCfg:      loadCfg,
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Ingestion boundary.
		r.Post("/transactions/bulk", h.LoadTransactions)
		r.Post("/settlements/upload", h.UploadSettlements)

		// Reconciliation runs.
		r.Post("/reconciliation/run", h.RunReconciliation)
		r.Post("/reconciliation/jobs", h.SubmitJob)
		r.Get("/reconciliation/jobs", h.ListJobs)
		r.Get("/reconciliation/jobs/{id}", h.GetJob)

		// Read-only query surface.
		r.Get("/reports", h.ListReports)
		r.Get("/reports/{id}", h.GetReport)
		r.Get("/discrepancies", h.ListDiscrepancies)
		r.Get("/transactions", h.ListTransactions)
		r.Get("/transactions/{id}/status", h.GetTransactionStatus)
		r.Get("/settlements", h.ListSettlements)
		r.Get("/fees/analysis", h.GetFeeAnalysis)
	})

	return r
}
