package strategy

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/platform/apperr"
	"pipeline_routing_backend/platform/logger"
)

// reconcileConcurrency caps parallel routing writes per invocation.
const reconcileConcurrency = 8

// WriteOutcome is the settled result of one PendingWrite.
type WriteOutcome struct {
	PendingWrite
	Record *domain.RoutingRecord
	Err    error
}

func (o WriteOutcome) OK() bool { return o.Err == nil }

// Reconcile issues every write concurrently and waits for all of them.
// A failed write is logged and reported in its outcome; it never fails the batch.
func Reconcile(ctx context.Context, writer repository.RoutingWriter, writes []PendingWrite, log *logger.Logger) []WriteOutcome {
	outcomes := make([]WriteOutcome, len(writes))
	if len(writes) == 0 {
		return outcomes
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for i, w := range writes {
		g.Go(func() error {
			outcomes[i] = apply(gctx, writer, w)
			if err := outcomes[i].Err; err != nil {
				log.ReconcileWriteFailed(string(w.Kind), string(w.Placement.EntityType), w.Placement.EntityID.String(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func apply(ctx context.Context, writer repository.RoutingWriter, w PendingWrite) WriteOutcome {
	out := WriteOutcome{PendingWrite: w}
	switch w.Kind {
	case WriteCreate:
		records, err := writer.CreateRoutingRecords(ctx, []domain.Placement{w.Placement})
		if err != nil {
			out.Err = apperr.ReconcileWrite("routing.create", err)
			return out
		}
		if len(records) > 0 {
			rec := records[0]
			rec.Source = domain.SourceRepaired
			out.Record = &rec
		}
	case WriteMove:
		p := w.Placement
		if err := writer.MoveRoutingRecord(ctx, p.EntityType, p.EntityID, p.PipelineID, p.StageID); err != nil {
			out.Err = apperr.ReconcileWrite("routing.move", err)
		}
	default:
		out.Err = apperr.ReconcileWrite("routing.write", errors.New("unknown write kind "+string(w.Kind)))
	}
	return out
}

// FailedWrites counts outcomes that did not land.
func FailedWrites(outcomes []WriteOutcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}
