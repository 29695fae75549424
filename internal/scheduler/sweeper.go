package scheduler

import (
	"context"
	"time"

	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/platform/logger"
)

const defaultSweepInterval = 5 * time.Minute

// PipelineLister lists the pipelines whose strategies write.
type PipelineLister interface {
	ReconcilablePipelines(ctx context.Context) ([]domain.Pipeline, error)
}

// ReconcileSweeper periodically queues a reconcile task for every front-desk,
// courier and department pipeline.
type ReconcileSweeper struct {
	lister   PipelineLister
	enqueuer ReconcileEnqueuer
	log      *logger.Logger
	interval time.Duration
}

func NewReconcileSweeper(lister PipelineLister, enqueuer ReconcileEnqueuer, log *logger.Logger, interval time.Duration) *ReconcileSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &ReconcileSweeper{
		lister:   lister,
		enqueuer: enqueuer,
		log:      log,
		interval: interval,
	}
}

func (s *ReconcileSweeper) Run(ctx context.Context) {
	if s == nil || s.lister == nil || s.enqueuer == nil {
		return
	}

	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep enqueues one pass and returns how many tasks were queued.
func (s *ReconcileSweeper) Sweep(ctx context.Context) int {
	pipelines, err := s.lister.ReconcilablePipelines(ctx)
	if err != nil {
		s.log.Warn("reconcile sweep failed to list pipelines", "error", err)
		return 0
	}

	queued := 0
	for _, p := range pipelines {
		if err := s.enqueuer.EnqueueReconcile(ctx, p.ID); err != nil {
			s.log.Warn("reconcile enqueue failed", "pipeline", p.Name, "error", err)
			continue
		}
		queued++
	}

	if queued > 0 {
		s.log.Debug("reconcile sweep queued pipelines", "queued", queued)
	}
	return queued
}
