// Package service is the routing dispatcher. It resolves the pipeline,
// picks the first strategy that can handle it, issues the planned routing
// writes and keeps the caches in step with published domain events.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pipeline_routing_backend/internal/events"
	"pipeline_routing_backend/internal/routing/cache"
	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/internal/routing/strategy"
	"pipeline_routing_backend/platform/apperr"
	"pipeline_routing_backend/platform/logger"
)

// Accessors is everything the dispatcher reads and writes.
type Accessors interface {
	repository.PipelineReader
	repository.RoutingWriter
	strategy.Reader
}

// Options tune one routing call.
type Options struct {
	// ReadOnly plans reconciliation writes without issuing them.
	ReadOnly bool
}

// Result is the full outcome of one routing call.
type Result struct {
	Pipeline domain.Pipeline
	Kind     domain.PipelineKind
	Strategy string
	Units    []domain.WorkUnit
	// Outcomes holds one entry per issued write.
	Outcomes []strategy.WriteOutcome
	// Pending holds the writes a read-only call skipped.
	Pending []strategy.PendingWrite
}

// PipelineView is a pipeline with its derived kind and ordered stages.
type PipelineView struct {
	Pipeline domain.Pipeline
	Kind     domain.PipelineKind
	Stages   []domain.Stage
}

// Scope selects what InvalidateCache drops.
type Scope string

const (
	ScopeAll         Scope = "all"
	ScopeTechnicians Scope = "technicians"
	ScopeTotals      Scope = "totals"
)

// Valid reports whether s names a cache scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeAll, ScopeTechnicians, ScopeTotals:
		return true
	}
	return false
}

// Service dispatches routing calls to strategies.
type Service struct {
	store       Accessors
	technicians *cache.TechnicianCache
	totals      *cache.TotalsCache
	bus         events.Bus
	log         *logger.Logger
	strategies  []strategy.Strategy
}

// New wires the strategies in dispatch order. Standard handles every
// pipeline and therefore goes last.
func New(store Accessors, technicians *cache.TechnicianCache, totals *cache.TotalsCache, bus events.Bus, phoneRegion string, log *logger.Logger) *Service {
	deps := strategy.Deps{
		Reader:      store,
		Technicians: technicians,
		Totals:      totals,
		PhoneRegion: phoneRegion,
		Log:         log,
	}
	return &Service{
		store:       store,
		technicians: technicians,
		totals:      totals,
		bus:         bus,
		log:         log,
		strategies: []strategy.Strategy{
			strategy.NewDepartment(deps),
			strategy.NewFrontDesk(deps),
			strategy.NewStandard(deps),
		},
	}
}

// Route returns the work units of pipelineID as seen by actor.
func (s *Service) Route(ctx context.Context, pipelineID uuid.UUID, actor domain.Actor) ([]domain.WorkUnit, error) {
	res, err := s.RouteWithOptions(ctx, pipelineID, actor, Options{})
	if err != nil {
		return nil, err
	}
	return res.Units, nil
}

// RouteWithOptions loads the pipeline, runs its strategy and, unless
// opts.ReadOnly is set, reconciles the stored routing records.
func (s *Service) RouteWithOptions(ctx context.Context, pipelineID uuid.UUID, actor domain.Actor, opts Options) (Result, error) {
	pipelines, stages, err := s.metadata(ctx)
	if err != nil {
		return Result{}, err
	}

	var (
		pipeline domain.Pipeline
		found    bool
	)
	for _, p := range pipelines {
		if p.ID == pipelineID {
			pipeline, found = p, true
			break
		}
	}
	if !found {
		return Result{}, apperr.NotFound("pipeline not found").WithOp("routing.route")
	}

	rc := strategy.NewRoutingContext(pipeline, pipelines, stages, actor)
	rc.ReadOnly = opts.ReadOnly
	st := s.pick(rc)

	plan, err := st.Load(ctx, rc)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Pipeline: pipeline,
		Kind:     rc.Kind,
		Strategy: st.Name(),
		Units:    plan.Units,
	}
	if opts.ReadOnly {
		res.Pending = plan.Writes
	} else {
		res.Outcomes = strategy.Reconcile(ctx, s.store, plan.Writes, s.log)
		s.publishOutcomes(ctx, pipeline.ID, res.Outcomes)
	}

	s.log.RoutingCompleted(pipeline.Name, st.Name(), len(res.Units), len(res.Outcomes), strategy.FailedWrites(res.Outcomes))
	return res, nil
}

// Reconcile routes pipelineID as the system actor so stored records heal
// even when nobody opens the view.
func (s *Service) Reconcile(ctx context.Context, pipelineID uuid.UUID) (Result, error) {
	return s.RouteWithOptions(ctx, pipelineID, domain.SystemActor(), Options{})
}

// ListPipelines returns every pipeline with its kind and stages.
func (s *Service) ListPipelines(ctx context.Context) ([]PipelineView, error) {
	pipelines, stages, err := s.metadata(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PipelineView, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, PipelineView{
			Pipeline: p,
			Kind:     domain.ClassifyPipeline(p.Name),
			Stages:   domain.StagesOf(stages, p.ID),
		})
	}
	return out, nil
}

// ReconcilablePipelines lists the pipelines whose strategy may write.
func (s *Service) ReconcilablePipelines(ctx context.Context) ([]domain.Pipeline, error) {
	views, err := s.ListPipelines(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Pipeline, 0, len(views))
	for _, v := range views {
		if v.Kind != domain.KindStandard {
			out = append(out, v.Pipeline)
		}
	}
	return out, nil
}

// InvalidateCache drops cached technician names, totals or both. With ids
// only those entries are dropped.
func (s *Service) InvalidateCache(ctx context.Context, scope Scope, ids ...uuid.UUID) error {
	if !scope.Valid() {
		return apperr.Validation("unknown cache scope: " + string(scope))
	}
	if scope == ScopeAll || scope == ScopeTechnicians {
		s.technicians.Invalidate(ids...)
	}
	if scope == ScopeAll || scope == ScopeTotals {
		if err := s.totals.Invalidate(ctx, ids...); err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to invalidate totals", err).WithOp("routing.invalidate_cache")
		}
	}
	s.log.Info("routing cache invalidated", slog.String("scope", string(scope)), slog.Int("ids", len(ids)))
	return nil
}

// Handle keeps the caches in step with domain events.
func (s *Service) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.RoutingRecordMoved:
		return s.totals.Invalidate(ctx, e.EntityID)
	case events.RoutingRecordsCreated:
		if len(e.EntityIDs) == 0 {
			return nil
		}
		return s.totals.Invalidate(ctx, e.EntityIDs...)
	case events.WorkUnitDataChanged:
		if len(e.EntityIDs) == 0 {
			return nil
		}
		return s.invalidateTotalsTree(ctx, domain.EntityType(e.EntityType), e.EntityIDs)
	case events.TechnicianUpdated:
		s.technicians.Invalidate(e.TechnicianID)
		return nil
	default:
		return nil
	}
}

// invalidateTotalsTree drops the totals of ids together with every cached
// total derived from them. A tray change reaches its service file and lead.
// A service file change reaches its lead and its trays, whose line values
// depend on the file's urgency. When the links cannot be resolved the whole
// totals cache is cleared.
func (s *Service) invalidateTotalsTree(ctx context.Context, entityType domain.EntityType, ids []uuid.UUID) error {
	related, err := s.relatedTotals(ctx, entityType, ids)
	if err != nil {
		s.log.Warn("totals links unresolved, clearing totals cache",
			slog.String("entity_type", string(entityType)),
			slog.String("error", err.Error()))
		return s.totals.Invalidate(ctx)
	}
	return s.totals.Invalidate(ctx, related...)
}

func (s *Service) relatedTotals(ctx context.Context, entityType domain.EntityType, ids []uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids)*3)
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range ids {
		add(id)
	}

	var fileIDs []uuid.UUID
	switch entityType {
	case domain.EntityTray:
		trays, err := s.store.GetTraysByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load trays: %w", err)
		}
		for _, t := range trays {
			fileIDs = append(fileIDs, t.ServiceFileID)
		}
	case domain.EntityServiceFile:
		fileIDs = ids
		trays, err := s.store.ListTraysByServiceFileIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load trays of service files: %w", err)
		}
		for _, t := range trays {
			add(t.ID)
		}
	default:
		return out, nil
	}

	if len(fileIDs) == 0 {
		return out, nil
	}
	files, err := s.store.GetServiceFilesByIDs(ctx, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("load service files: %w", err)
	}
	for _, sf := range files {
		add(sf.ID)
		add(sf.LeadID)
	}
	return out, nil
}

func (s *Service) pick(rc *strategy.RoutingContext) strategy.Strategy {
	for _, st := range s.strategies {
		if st.CanHandle(rc) {
			return st
		}
	}
	return s.strategies[len(s.strategies)-1]
}

func (s *Service) metadata(ctx context.Context) ([]domain.Pipeline, []domain.Stage, error) {
	var (
		pipelines []domain.Pipeline
		stages    []domain.Stage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pipelines, err = s.store.ListAllPipelines(gctx)
		if err != nil {
			return apperr.Load("routing.list_pipelines", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stages, err = s.store.ListAllStages(gctx)
		if err != nil {
			return apperr.Load("routing.list_stages", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return pipelines, stages, nil
}

// publishOutcomes announces the writes that landed.
func (s *Service) publishOutcomes(ctx context.Context, pipelineID uuid.UUID, outcomes []strategy.WriteOutcome) {
	if s.bus == nil {
		return
	}
	created := make(map[domain.EntityType][]uuid.UUID)
	var order []domain.EntityType
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		p := o.Placement
		switch o.Kind {
		case strategy.WriteMove:
			s.bus.Publish(ctx, events.RoutingRecordMoved{
				BaseEvent:   events.NewBaseEvent(),
				EntityType:  string(p.EntityType),
				EntityID:    p.EntityID,
				PipelineID:  p.PipelineID,
				FromStageID: o.FromStageID,
				ToStageID:   p.StageID,
			})
		case strategy.WriteCreate:
			if _, seen := created[p.EntityType]; !seen {
				order = append(order, p.EntityType)
			}
			created[p.EntityType] = append(created[p.EntityType], p.EntityID)
		}
	}
	for _, t := range order {
		s.bus.Publish(ctx, events.RoutingRecordsCreated{
			BaseEvent:  events.NewBaseEvent(),
			PipelineID: pipelineID,
			EntityType: string(t),
			EntityIDs:  created[t],
		})
	}
}
