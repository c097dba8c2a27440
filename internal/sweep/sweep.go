// Package sweep drives the engine's periodic background work: anomaly
// detection passes and trending score refreshes.
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/inkraft/sentinel/internal/anomaly"
	"github.com/inkraft/sentinel/internal/trending"
	"github.com/inkraft/sentinel/pkg/logging"
	"github.com/inkraft/sentinel/pkg/telemetry"
)

// Runner executes detection and ranking sweeps on an interval
type Runner struct {
	detector *anomaly.Detector
	trending *trending.Service
	interval time.Duration
	logger   *zap.Logger
}

// NewRunner creates a sweep runner
func NewRunner(detector *anomaly.Detector, trendingSvc *trending.Service, interval time.Duration) *Runner {
	return &Runner{
		detector: detector,
		trending: trendingSvc,
		interval: interval,
		logger:   logging.GetLogger().With(zap.String("component", "sweeper")),
	}
}

// Run executes sweeps until the context is canceled. The first sweep
// fires immediately so a fresh deployment does not wait a full
// interval for coverage.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Starting sweep loop", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Sweep loop stopped")
			return ctx.Err()
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

// sweepOnce runs one detection pass and one trending refresh. Failures
// are logged and do not stop the loop; the next tick retries.
func (r *Runner) sweepOnce(ctx context.Context) {
	sctx, span := telemetry.StartSpan(ctx, "sweep.run")
	defer span.End()

	start := time.Now()
	created := r.detector.RunSweep(sctx)

	refreshed := 0
	if r.trending != nil {
		n, err := r.trending.Refresh(sctx)
		if err != nil {
			r.logger.Error("Trending refresh failed", zap.Error(err))
		} else {
			refreshed = n
		}
	}

	r.logger.Info("Sweep complete",
		zap.Int("alerts_created", created),
		zap.Int("trending_refreshed", refreshed),
		zap.Duration("elapsed", time.Since(start)))
}
