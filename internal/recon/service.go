package recon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fleximarket/reconciler/internal/config"
	"github.com/fleximarket/reconciler/internal/domain"
)

// RunSaver persists a finished run. The engine returns plain records; the
// saver owns storage.
type RunSaver interface {
	SaveRun(ctx context.Context, report domain.ReconciliationReport, discs []domain.Discrepancy) error
}

// Service ties the pure engine to persistence and fresh configuration.
// Each Reconcile call loads thresholds anew, so operators can retune
// tolerances between runs without a restart.
type Service struct {
	engine  *Engine
	saver   RunSaver
	loadCfg func() config.Config
	logger  zerolog.Logger
}

func NewService(engine *Engine, saver RunSaver, loadCfg func() config.Config, logger zerolog.Logger) *Service {
	return &Service{
		engine:  engine,
		saver:   saver,
		loadCfg: loadCfg,
		logger:  logger.With().Str("component", "recon.service").Logger(),
	}
}

// Reconcile runs the engine and persists the outcome. A failed run is
// recorded as a failed report with no discrepancies; prior reports are
// never touched.
func (s *Service) Reconcile(ctx context.Context, p RunParams) (*Result, error) {
	cfg := s.loadCfg()

	result, runErr := s.engine.Run(ctx, cfg, p)
	if runErr != nil {
		if saveErr := s.saver.SaveRun(ctx, result.Report, nil); saveErr != nil {
			s.logger.Error().Err(saveErr).Str("run_id", result.Report.ID).Msg("failed to record failed run")
		}
		return result, runErr
	}

	if err := s.saver.SaveRun(ctx, result.Report, result.Discrepancies); err != nil {
		return nil, fmt.Errorf("save run %s: %w", result.Report.ID, err)
	}
	return result, nil
}
