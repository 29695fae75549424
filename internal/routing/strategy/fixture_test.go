package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pipeline_routing_backend/internal/routing/cache"
	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/platform/logger"
)

type fixture struct {
	t     *testing.T
	store *repository.MemoryStore
	deps  Deps
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	log := logger.Discard()
	return &fixture{
		t:     t,
		store: store,
		deps: Deps{
			Reader:      store,
			Technicians: cache.NewTechnicianCache(store),
			Totals:      cache.NewTotalsCache(cache.NewMemoryTotalsStore(), time.Minute, log),
			PhoneRegion: "RO",
			Log:         log,
		},
		clock: time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing creation time.
func (f *fixture) tick() time.Time {
	f.clock = f.clock.Add(time.Minute)
	return f.clock
}

// pipeline creates a pipeline whose stages are named in position order.
func (f *fixture) pipeline(name string, stageNames ...string) (domain.Pipeline, map[string]domain.Stage) {
	stages := make([]domain.Stage, 0, len(stageNames))
	byName := make(map[string]domain.Stage, len(stageNames))
	p := domain.Pipeline{ID: uuid.New(), Name: name}
	for i, n := range stageNames {
		st := domain.Stage{ID: uuid.New(), PipelineID: p.ID, Name: n, Position: i + 1}
		stages = append(stages, st)
		byName[n] = st
	}
	return f.store.AddPipeline(p, stages...), byName
}

func (f *fixture) context(p domain.Pipeline, actor domain.Actor) *RoutingContext {
	f.t.Helper()
	ctx := context.Background()
	pipelines, err := f.store.ListAllPipelines(ctx)
	if err != nil {
		f.t.Fatalf("list pipelines: %v", err)
	}
	stages, err := f.store.ListAllStages(ctx)
	if err != nil {
		f.t.Fatalf("list stages: %v", err)
	}
	return NewRoutingContext(p, pipelines, stages, actor)
}

// load runs the strategy and issues its writes, like the dispatcher does.
func (f *fixture) load(s Strategy, p domain.Pipeline, actor domain.Actor) (Plan, []WriteOutcome) {
	f.t.Helper()
	plan, err := s.Load(context.Background(), f.context(p, actor))
	if err != nil {
		f.t.Fatalf("load: %v", err)
	}
	return plan, Reconcile(context.Background(), f.store, plan.Writes, f.deps.Log)
}

func (f *fixture) lead(name string, tags ...string) repository.Lead {
	ts := make([]domain.Tag, 0, len(tags))
	for _, n := range tags {
		ts = append(ts, domain.Tag{Name: n})
	}
	return f.store.AddLead(repository.Lead{FullName: name, CreatedAt: f.tick()}, ts...)
}

func (f *fixture) serviceFile(lead repository.Lead, number string, mutate ...func(*repository.ServiceFile)) repository.ServiceFile {
	sf := repository.ServiceFile{LeadID: lead.ID, Number: number, CreatedAt: f.tick()}
	for _, m := range mutate {
		m(&sf)
	}
	return f.store.AddServiceFile(sf)
}

func (f *fixture) tray(sf repository.ServiceFile, number string) repository.Tray {
	return f.store.AddTray(repository.Tray{ServiceFileID: sf.ID, Number: number, CreatedAt: f.tick()})
}

// serviceItem adds a priced service line to tray.
func (f *fixture) serviceItem(tray repository.Tray, price int64, mutate ...func(*repository.TrayItem)) repository.TrayItem {
	serviceID := uuid.New()
	f.store.SetServicePrice(serviceID, decimal.NewFromInt(price))
	it := repository.TrayItem{TrayID: tray.ID, ServiceID: &serviceID, Name: "service", Quantity: 1}
	for _, m := range mutate {
		m(&it)
	}
	return f.store.AddTrayItem(it)
}

func (f *fixture) place(entityType domain.EntityType, id uuid.UUID, stage domain.Stage) domain.RoutingRecord {
	return f.store.PutRoutingRecord(domain.Placement{
		EntityType: entityType,
		EntityID:   id,
		PipelineID: stage.PipelineID,
		StageID:    stage.ID,
	})
}

func routedTo(p domain.Pipeline) func(*repository.TrayItem) {
	return func(it *repository.TrayItem) { it.PipelineID = &p.ID }
}

func assignedTo(id uuid.UUID) func(*repository.TrayItem) {
	return func(it *repository.TrayItem) { it.TechnicianID = &id }
}

func admin() domain.Actor {
	return domain.Actor{ID: uuid.New(), Roles: []string{domain.RoleAdmin}}
}

func technician(id uuid.UUID) domain.Actor {
	return domain.Actor{ID: id, Roles: []string{"technician"}}
}

func unitByID(t *testing.T, units []domain.WorkUnit, id uuid.UUID) domain.WorkUnit {
	t.Helper()
	for _, u := range units {
		if u.ID == id {
			return u
		}
	}
	t.Fatalf("no work unit for %s", id)
	return domain.WorkUnit{}
}

func tagNames(tags []domain.Tag) []string {
	out := make([]string, 0, len(tags))
	for _, tg := range tags {
		out = append(out, tg.Name)
	}
	return out
}
