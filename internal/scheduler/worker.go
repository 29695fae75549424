package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pipeline_routing_backend/internal/routing/service"
	"pipeline_routing_backend/internal/routing/strategy"
	"pipeline_routing_backend/platform/config"
	"pipeline_routing_backend/platform/logger"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	reconcileLockPrefix = "routing:reconcile:"
	defaultLockTTL      = 2 * time.Minute
)

// Reconciler heals the routing records of one pipeline.
type Reconciler interface {
	Reconcile(ctx context.Context, pipelineID uuid.UUID) (service.Result, error)
}

// ReconcileHandler processes routing.reconcile_pipeline tasks. At most one
// worker reconciles a given pipeline at a time.
type ReconcileHandler struct {
	reconciler Reconciler
	locker     *redislock.Client
	lockTTL    time.Duration
	log        *logger.Logger
}

// NewReconcileHandler builds the task handler. A nil locker disables the
// per-pipeline lock.
func NewReconcileHandler(reconciler Reconciler, locker *redislock.Client, log *logger.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		reconciler: reconciler,
		locker:     locker,
		lockTTL:    defaultLockTTL,
		log:        log,
	}
}

// ProcessTask implements asynq.Handler.
func (h *ReconcileHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReconcilePipelinePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	pipelineID, err := uuid.Parse(payload.PipelineID)
	if err != nil {
		return fmt.Errorf("parse pipeline id: %v: %w", err, asynq.SkipRetry)
	}

	if h.locker != nil {
		lock, err := h.locker.Obtain(ctx, reconcileLockPrefix+pipelineID.String(), h.lockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			h.log.Info("pipeline reconcile already running", "pipeline_id", pipelineID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("obtain reconcile lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				h.log.Warn("release reconcile lock failed", "pipeline_id", pipelineID, "error", err)
			}
		}()
	}

	res, err := h.reconciler.Reconcile(ctx, pipelineID)
	if err != nil {
		return err
	}
	if failed := strategy.FailedWrites(res.Outcomes); failed > 0 {
		h.log.Warn("pipeline reconcile left failed writes", "pipeline_id", pipelineID, "failed", failed)
	}
	return nil
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, reconcile *ReconcileHandler, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.Handle(TaskReconcilePipeline, reconcile)

	return &Worker{
		server: server,
		mux:    mux,
		log:    log,
	}, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
