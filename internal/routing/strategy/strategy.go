// Package strategy implements the pipeline-specific loaders. A strategy
// reads routing records and entities, decides placements, and returns the
// work units together with the routing writes that would heal the data.
// Writes are issued separately by Reconcile.
package strategy

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"pipeline_routing_backend/internal/routing/cache"
	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/platform/apperr"
	"pipeline_routing_backend/platform/logger"
)

// Reader is the read side of the entity accessors a strategy consumes.
type Reader interface {
	repository.RoutingReader
	repository.EntityReader
	repository.CatalogReader
	repository.TagReader
}

// RoutingContext is everything a strategy knows about one invocation.
type RoutingContext struct {
	Pipeline  domain.Pipeline
	Kind      domain.PipelineKind
	Pipelines []domain.Pipeline
	Stages    []domain.Stage
	Actor     domain.Actor
	// ReadOnly plans writes without issuing them. Repairs surface as virtual records.
	ReadOnly bool
}

// NewRoutingContext classifies pipeline and bundles the metadata.
func NewRoutingContext(pipeline domain.Pipeline, pipelines []domain.Pipeline, stages []domain.Stage, actor domain.Actor) *RoutingContext {
	return &RoutingContext{
		Pipeline:  pipeline,
		Kind:      domain.ClassifyPipeline(pipeline.Name),
		Pipelines: pipelines,
		Stages:    stages,
		Actor:     actor,
	}
}

// PipelineStages returns the stages of the routed pipeline in source order.
func (rc *RoutingContext) PipelineStages() []domain.Stage {
	return domain.StagesOf(rc.Stages, rc.Pipeline.ID)
}

// Stage looks up any stage by id.
func (rc *RoutingContext) Stage(id uuid.UUID) (domain.Stage, bool) {
	for _, s := range rc.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Stage{}, false
}

// repairSource is the source a newly created record is reported with.
func (rc *RoutingContext) repairSource() domain.RecordSource {
	if rc.ReadOnly {
		return domain.SourceVirtual
	}
	return domain.SourceRepaired
}

// WriteKind names a routing write.
type WriteKind string

const (
	WriteCreate WriteKind = "create"
	WriteMove   WriteKind = "move"
)

// PendingWrite is a routing write a strategy wants issued.
type PendingWrite struct {
	Kind      WriteKind
	Placement domain.Placement
	// FromStageID is the stage a moved record currently sits on.
	FromStageID uuid.UUID
}

// Plan is a strategy's result before reconciliation.
type Plan struct {
	Units  []domain.WorkUnit
	Writes []PendingWrite
}

// Strategy loads one kind of pipeline.
type Strategy interface {
	Name() string
	CanHandle(rc *RoutingContext) bool
	Load(ctx context.Context, rc *RoutingContext) (Plan, error)
}

// Deps are the collaborators shared by every strategy.
type Deps struct {
	Reader      Reader
	Technicians *cache.TechnicianCache
	Totals      *cache.TotalsCache
	PhoneRegion string
	Log         *logger.Logger
}

// loadErr marks a failed primary fetch.
func loadErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.IsLoad(err) {
		return err
	}
	return apperr.Load(op, err)
}

// warmTechnicians preloads technician names. A failure only costs display names.
func (d Deps) warmTechnicians(ctx context.Context) {
	if err := d.Technicians.Warm(ctx); err != nil {
		d.Log.Warn("technician cache warm-up failed", slog.String("error", err.Error()))
	}
}

// technicianName resolves a display name, logging lookup failures.
func (d Deps) technicianName(ctx context.Context, id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	name, ok, err := d.Technicians.Name(ctx, *id)
	if err != nil {
		d.Log.Warn("technician lookup failed", slog.String("technician_id", id.String()), slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return nil
	}
	return &name
}
