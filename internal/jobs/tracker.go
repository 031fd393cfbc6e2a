// Package jobs tracks background reconciliation runs. The tracker is a
// mutex-guarded in-memory map; runs are single-process, so no external
// queue is involved.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleximarket/reconciler/internal/recon"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one submitted reconciliation run and its outcome.
type Job struct {
	ID          string    `json:"job_id"`
	Status      Status    `json:"status"`
	DateFrom    time.Time `json:"date_from"`
	DateTo      time.Time `json:"date_to"`
	Processors  []string  `json:"processors,omitempty"`
	ReportID    string    `json:"report_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Reconciler runs one reconciliation and persists it; the recon service
// satisfies this.
type Reconciler interface {
	Reconcile(ctx context.Context, p recon.RunParams) (*recon.Result, error)
}

type Tracker struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	order  []string
	runner Reconciler
	logger zerolog.Logger
}

func NewTracker(runner Reconciler, logger zerolog.Logger) *Tracker {
	return &Tracker{
		jobs:   make(map[string]*Job),
		runner: runner,
		logger: logger.With().Str("component", "jobs").Logger(),
	}
}

// Submit registers a job and starts it on its own goroutine, returning
// immediately so the caller can poll for status.
func (t *Tracker) Submit(p recon.RunParams) Job {
	job := &Job{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		DateFrom:    p.DateFrom,
		DateTo:      p.DateTo,
		Processors:  p.Processors,
		SubmittedAt: time.Now().UTC(),
	}

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.order = append(t.order, job.ID)
	t.mu.Unlock()

	go t.execute(job.ID, p)

	return *job
}

func (t *Tracker) execute(jobID string, p recon.RunParams) {
	t.setStatus(jobID, StatusRunning, "", "")

	result, err := t.runner.Reconcile(context.Background(), p)
	if err != nil {
		t.logger.Error().Err(err).Str("job_id", jobID).Msg("job failed")
		reportID := ""
		if result != nil {
			reportID = result.Report.ID
		}
		t.setStatus(jobID, StatusFailed, reportID, err.Error())
		return
	}

	t.setStatus(jobID, StatusCompleted, result.Report.ID, "")
	t.logger.Info().
		Str("job_id", jobID).
		Str("report_id", result.Report.ID).
		Msg("job completed")
}

func (t *Tracker) setStatus(jobID string, status Status, reportID, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return
	}
	job.Status = status
	if reportID != "" {
		job.ReportID = reportID
	}
	if errMsg != "" {
		job.Error = errMsg
	}
}

// Get returns a copy of the job, so callers never see later mutations.
func (t *Tracker) Get(jobID string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns all tracked jobs, newest submission first.
func (t *Tracker) List() []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Job, 0, len(t.order))
	for i := len(t.order) - 1; i >= 0; i-- {
		out = append(out, *t.jobs[t.order[i]])
	}
	return out
}
