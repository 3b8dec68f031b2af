// Package lifecycle runs the periodic segment-demotion loop over the
// archive root and provides on-demand whole-archive deletion.
package lifecycle

import (
	"context"
	"time"

	"github.com/gftdcojp/logvault/internal/config"
	"github.com/gftdcojp/logvault/internal/tier"
	"go.uber.org/zap"
)

// Manager drives the tiering controller on an interval.
type Manager struct {
	ctrl   *tier.Controller
	cfg    config.TieringConfig
	logger *zap.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(ctrl *tier.Controller, cfg config.TieringConfig, logger *zap.Logger) *Manager {
	return &Manager{
		ctrl:   ctrl,
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts the periodic demotion loop.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.EvalInterval.Duration()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.ctrl.EvaluateAndDemote(ctx, time.Now()); err != nil {
				m.logger.Error("demotion cycle error", zap.Error(err))
			}
		}
	}
}
