package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleximarket/reconciler/internal/config"
	"github.com/fleximarket/reconciler/internal/domain"
	"github.com/fleximarket/reconciler/internal/fees"
	"github.com/fleximarket/reconciler/internal/ingestion"
	"github.com/fleximarket/reconciler/internal/jobs"
	"github.com/fleximarket/reconciler/internal/recon"
	"github.com/fleximarket/reconciler/internal/store"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	txnStore     *store.TransactionStore
	settStore    *store.SettlementStore
	runStore     *store.RunStore
	ingestionSvc *ingestion.Service
	reconSvc     *recon.Service
	tracker      *jobs.Tracker
	analyzer     *fees.Analyzer
	loadCfg      func() config.Config
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// runParams reads a run request body: date-only values select whole days,
// so the end date is pushed to the last second of its day.
type runRequest struct {
	DateFrom   string   `json:"date_from"`
	DateTo     string   `json:"date_to"`
	Processors []string `json:"processors,omitempty"`
}

func (rr runRequest) params() (recon.RunParams, error) {
	from := parseTime(rr.DateFrom)
	to := parseTime(rr.DateTo)
	if from == nil || to == nil {
		return recon.RunParams{}, errors.New("date_from and date_to are required (YYYY-MM-DD or RFC3339)")
	}
	end := *to
	if len(rr.DateTo) == len("2006-01-02") {
		end = end.Add(24*time.Hour - time.Second)
	}
	if end.Before(*from) {
		return recon.RunParams{}, errors.New("date_to precedes date_from")
	}
	return recon.RunParams{DateFrom: *from, DateTo: end, Processors: rr.Processors}, nil
}

// --- health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- ingestion ---

func (h *Handlers) LoadTransactions(w http.ResponseWriter, r *http.Request) {
	var txns []domain.ExpectedTransaction
	if err := json.NewDecoder(r.Body).Decode(&txns); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	result, err := h.ingestionSvc.LoadExpected(r.Context(), txns)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) UploadSettlements(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProcessorName string                   `json:"processor_name"`
		Entries       []domain.SettlementEntry `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	result, err := h.ingestionSvc.UploadSettlements(r.Context(), body.ProcessorName, body.Entries)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- reconciliation ---

func (h *Handlers) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	params, err := body.params()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.reconSvc.Reconcile(r.Context(), params)
	if err != nil {
		body := map[string]any{"error": err.Error()}
		if result != nil {
			body["report"] = result.Report
		}
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"report":             result.Report,
		"summary":            result.Summary,
		"unexpected_entries": len(result.UnexpectedEntries),
	})
}

func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	params, err := body.params()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := h.tracker.Submit(params)
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.tracker.List()})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.tracker.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- reports ---

func (h *Handlers) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	reports, err := h.runStore.ListReports(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// GetReport returns one report together with the grouped summary of its
// discrepancy set, recomputed from the persisted records.
func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.runStore.GetReport(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	discs, err := h.runStore.ByRunID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	processors, err := h.runStore.DistinctProcessors(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"report":  report,
		"summary": recon.Aggregate(discs, processors),
	})
}

// --- discrepancies ---

func (h *Handlers) ListDiscrepancies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.DiscrepancyFilter{
		Type:      q.Get("type"),
		Severity:  q.Get("severity"),
		Processor: q.Get("processor"),
		RunID:     q.Get("run_id"),
		From:      parseTime(q.Get("from")),
		To:        parseTime(q.Get("to")),
		Page:      parseIntDefault(q.Get("page"), 1),
		Limit:     parseIntDefault(q.Get("limit"), 50),
	}

	discs, total, err := h.runStore.ListDiscrepancies(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"discrepancies": discs,
		"total":         total,
		"page":          filter.Page,
		"limit":         filter.Limit,
	})
}

// --- transactions ---

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TransactionFilter{
		Processor: q.Get("processor"),
		Status:    q.Get("status"),
		Currency:  q.Get("currency"),
		From:      parseTime(q.Get("from")),
		To:        parseTime(q.Get("to")),
		Page:      parseIntDefault(q.Get("page"), 1),
		Limit:     parseIntDefault(q.Get("limit"), 50),
	}

	txns, total, err := h.txnStore.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        total,
		"page":         filter.Page,
		"limit":        filter.Limit,
	})
}

// GetTransactionStatus is the full per-transaction view: the expected
// record, every settlement entry sharing its id (unexpected ones
// included), and every discrepancy referencing it.
func (h *Handlers) GetTransactionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	txn, err := h.txnStore.GetByID(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	settlements, err := h.settStore.ByTransactionID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	discrepancies, err := h.runStore.ByTransactionID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if txn == nil && len(settlements) == 0 {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transaction":   txn,
		"settlements":   settlements,
		"discrepancies": discrepancies,
	})
}

// --- settlements ---

func (h *Handlers) ListSettlements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SettlementFilter{
		Processor: q.Get("processor"),
		Currency:  q.Get("currency"),
		From:      parseTime(q.Get("from")),
		To:        parseTime(q.Get("to")),
		Page:      parseIntDefault(q.Get("page"), 1),
		Limit:     parseIntDefault(q.Get("limit"), 50),
	}

	entries, total, err := h.settStore.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"settlements": entries,
		"total":       total,
		"page":        filter.Page,
		"limit":       filter.Limit,
	})
}

// --- fee analysis ---

func (h *Handlers) GetFeeAnalysis(w http.ResponseWriter, r *http.Request) {
	entries, err := h.settStore.All(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cfg := h.loadCfg()
	writeJSON(w, http.StatusOK, h.analyzer.GetReport(entries, cfg.FeeStdDevThreshold))
}
