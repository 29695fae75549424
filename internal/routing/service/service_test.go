package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pipeline_routing_backend/internal/events"
	"pipeline_routing_backend/internal/routing/cache"
	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/internal/routing/valuation"
	"pipeline_routing_backend/platform/apperr"
	"pipeline_routing_backend/platform/logger"
)

type harness struct {
	store  *repository.MemoryStore
	totals *cache.TotalsCache
	techs  *cache.TechnicianCache
	bus    *events.InMemoryBus
	svc    *Service

	mu       sync.Mutex
	received []events.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Discard()
	h := &harness{
		store: repository.NewMemoryStore(),
		bus:   events.NewInMemoryBus(log),
	}
	h.totals = cache.NewTotalsCache(cache.NewMemoryTotalsStore(), time.Minute, log)
	h.techs = cache.NewTechnicianCache(h.store)
	h.svc = New(h.store, h.techs, h.totals, h.bus, "RO", log)

	record := events.HandlerFunc(func(_ context.Context, e events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.received = append(h.received, e)
		return nil
	})
	for _, name := range []string{
		events.RoutingRecordMoved{}.EventName(),
		events.RoutingRecordsCreated{}.EventName(),
	} {
		h.bus.Subscribe(name, record)
		h.bus.Subscribe(name, h.svc)
	}
	return h
}

func (h *harness) published() []events.Event {
	h.bus.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Event(nil), h.received...)
}

func (h *harness) pipeline(name string, stageNames ...string) (domain.Pipeline, map[string]domain.Stage) {
	stages := make([]domain.Stage, 0, len(stageNames))
	for _, n := range stageNames {
		stages = append(stages, domain.Stage{ID: uuid.New(), Name: n})
	}
	p := h.store.AddPipeline(domain.Pipeline{ID: uuid.New(), Name: name}, stages...)
	byName := make(map[string]domain.Stage, len(stageNames))
	for _, st := range domain.StagesOf(mustStages(h.store), p.ID) {
		byName[st.Name] = st
	}
	return p, byName
}

func mustStages(store *repository.MemoryStore) []domain.Stage {
	stages, _ := store.ListAllStages(context.Background())
	return stages
}

// routedTray seeds a tray whose only service line declares pipeline p.
func (h *harness) routedTray(p domain.Pipeline, price int64) repository.Tray {
	lead := h.store.AddLead(repository.Lead{FullName: "Ana", CreatedAt: time.Now()})
	sf := h.store.AddServiceFile(repository.ServiceFile{LeadID: lead.ID, Number: "SF-1", CreatedAt: time.Now()})
	tray := h.store.AddTray(repository.Tray{ServiceFileID: sf.ID, Number: "1", CreatedAt: time.Now()})
	serviceID := uuid.New()
	h.store.SetServicePrice(serviceID, decimal.NewFromInt(price))
	h.store.AddTrayItem(repository.TrayItem{TrayID: tray.ID, ServiceID: &serviceID, Quantity: 1, PipelineID: &p.ID})
	return tray
}

// serviceLine adds a priced, assigned service line to tray.
func (h *harness) serviceLine(tray repository.Tray, price int64) {
	serviceID, techID := uuid.New(), uuid.New()
	h.store.SetServicePrice(serviceID, decimal.NewFromInt(price))
	h.store.AddTrayItem(repository.TrayItem{TrayID: tray.ID, ServiceID: &serviceID, TechnicianID: &techID, Quantity: 1})
}

// unitTotal routes pipeline p and returns the total of the unit with id.
func (h *harness) unitTotal(t *testing.T, p domain.Pipeline, id uuid.UUID) decimal.Decimal {
	t.Helper()
	units, err := h.svc.Route(context.Background(), p.ID, admin())
	if err != nil {
		t.Fatalf("route %s: %v", p.Name, err)
	}
	for _, u := range units {
		if u.ID == id {
			return u.Total
		}
	}
	t.Fatalf("no unit %s in %s", id, p.Name)
	return decimal.Zero
}

// hierarchy seeds a lead on a sales stage whose service file has one tray
// in progress in a department.
type hierarchy struct {
	sales, desk, salon domain.Pipeline
	lead               repository.Lead
	file               repository.ServiceFile
	tray               repository.Tray
}

func (h *harness) hierarchy() hierarchy {
	sales, salesStages := h.pipeline("Vanzari", "Contact")
	desk, _ := h.pipeline("Receptie", "Nou", "In lucru", "De facturat", "Colet ajuns")
	salon, salonStages := h.pipeline("Saloane", "Nou", "In lucru", "Finalizat")

	lead := h.store.AddLead(repository.Lead{FullName: "Ana", CreatedAt: time.Now()})
	h.store.PutRoutingRecord(domain.Placement{EntityType: domain.EntityLead, EntityID: lead.ID, PipelineID: sales.ID, StageID: salesStages["Contact"].ID})
	sf := h.store.AddServiceFile(repository.ServiceFile{LeadID: lead.ID, Number: "SF-1", CreatedAt: time.Now()})
	tray := h.store.AddTray(repository.Tray{ServiceFileID: sf.ID, Number: "1", CreatedAt: time.Now()})
	h.serviceLine(tray, 100)
	h.store.PutRoutingRecord(domain.Placement{EntityType: domain.EntityTray, EntityID: tray.ID, PipelineID: salon.ID, StageID: salonStages["In lucru"].ID})

	return hierarchy{sales: sales, desk: desk, salon: salon, lead: lead, file: sf, tray: tray}
}

func admin() domain.Actor {
	return domain.Actor{ID: uuid.New(), Roles: []string{domain.RoleAdmin}}
}

func TestRoute_PicksStrategyByPipelineKind(t *testing.T) {
	h := newHarness(t)
	cases := map[string]string{
		"Saloane":      "department",
		"Receptie":     "front_desk",
		"Curier":       "front_desk",
		"Vanzari 2026": "standard",
	}
	for name, want := range cases {
		p, _ := h.pipeline(name, "Nou")
		res, err := h.svc.RouteWithOptions(context.Background(), p.ID, admin(), Options{})
		if err != nil {
			t.Fatalf("%s: route: %v", name, err)
		}
		if res.Strategy != want {
			t.Fatalf("%s: expected %s strategy, got %s", name, want, res.Strategy)
		}
	}
}

func TestRoute_UnknownPipelineIsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Route(context.Background(), uuid.New(), admin())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRoute_MetadataFailureIsLoadError(t *testing.T) {
	h := newHarness(t)
	p, _ := h.pipeline("Vanzari", "Nou")
	boom := errors.New("too many connections")
	h.store.FailOn("ListAllStages", boom)

	_, err := h.svc.Route(context.Background(), p.ID, admin())
	if !apperr.IsLoad(err) || !errors.Is(err, boom) {
		t.Fatalf("expected load error wrapping cause, got %v", err)
	}
}

func TestRoute_RepairsOnceAndAnnouncesCreation(t *testing.T) {
	h := newHarness(t)
	reparatii, stages := h.pipeline("Reparatii", "Nou", "In lucru")
	tray := h.routedTray(reparatii, 40)
	ctx := context.Background()

	first, err := h.svc.RouteWithOptions(ctx, reparatii.ID, admin(), Options{})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if len(first.Units) != 1 || first.Units[0].StageID != stages["Nou"].ID {
		t.Fatalf("expected repaired tray on Nou, got %+v", first.Units)
	}
	if len(first.Outcomes) != 1 || !first.Outcomes[0].OK() {
		t.Fatalf("expected one landed write, got %+v", first.Outcomes)
	}

	got := h.published()
	if len(got) != 1 {
		t.Fatalf("expected one event, got %d", len(got))
	}
	created, ok := got[0].(events.RoutingRecordsCreated)
	if !ok {
		t.Fatalf("expected RoutingRecordsCreated, got %T", got[0])
	}
	if diff := cmp.Diff([]uuid.UUID{tray.ID}, created.EntityIDs); diff != "" {
		t.Fatalf("created ids mismatch (-want +got):\n%s", diff)
	}

	second, err := h.svc.RouteWithOptions(ctx, reparatii.ID, admin(), Options{})
	if err != nil {
		t.Fatalf("second route: %v", err)
	}
	if len(second.Outcomes) != 0 {
		t.Fatalf("expected no writes on second route, got %d", len(second.Outcomes))
	}
	if diff := cmp.Diff(first.Units[0].StageID, second.Units[0].StageID); diff != "" {
		t.Fatalf("stage changed (-first +second):\n%s", diff)
	}
}

func TestRoute_ReadOnlyNeverWrites(t *testing.T) {
	h := newHarness(t)
	reparatii, _ := h.pipeline("Reparatii", "Nou")
	h.routedTray(reparatii, 40)

	res, err := h.svc.RouteWithOptions(context.Background(), reparatii.ID, admin(), Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if h.store.Writes() != 0 {
		t.Fatalf("expected no writes, got %d", h.store.Writes())
	}
	if len(res.Pending) != 1 || len(res.Outcomes) != 0 {
		t.Fatalf("expected one pending write, got pending=%d outcomes=%d", len(res.Pending), len(res.Outcomes))
	}
	if !res.Units[0].IsReadOnly {
		t.Fatalf("expected read-only unit in dry run")
	}
	if len(h.published()) != 0 {
		t.Fatalf("dry run must not publish events")
	}
}

func TestRoute_WriteFailureKeepsUnits(t *testing.T) {
	h := newHarness(t)
	reparatii, _ := h.pipeline("Reparatii", "Nou")
	h.routedTray(reparatii, 40)
	h.store.FailOn("CreateRoutingRecords", errors.New("unique violation"))

	units, err := h.svc.Route(context.Background(), reparatii.ID, admin())
	if err != nil {
		t.Fatalf("write failures must not fail the call: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected the unit despite the failed write, got %d", len(units))
	}
	if len(h.published()) != 0 {
		t.Fatalf("failed writes must not be announced")
	}
}

func TestInvalidateCache_RejectsUnknownScope(t *testing.T) {
	h := newHarness(t)
	err := h.svc.InvalidateCache(context.Background(), Scope("prices"))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInvalidateCache_Scopes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tech := uuid.New()
	h.store.AddTechnician(tech, "Mihai")
	entity := uuid.New()

	if err := h.techs.Warm(ctx); err != nil {
		t.Fatalf("warm: %v", err)
	}
	h.totals.Store(ctx, domain.EntityTray, map[uuid.UUID]valuation.Breakdown{entity: {Services: decimal.NewFromInt(5)}})

	if err := h.svc.InvalidateCache(ctx, ScopeTotals); err != nil {
		t.Fatalf("invalidate totals: %v", err)
	}
	if len(h.totals.Lookup(ctx, domain.EntityTray, []uuid.UUID{entity})) != 0 {
		t.Fatalf("expected totals to be dropped")
	}
	if h.techs.Len() != 1 {
		t.Fatalf("totals scope must keep technician names")
	}

	if err := h.svc.InvalidateCache(ctx, ScopeAll); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if h.techs.Len() != 0 {
		t.Fatalf("expected technician names to be dropped")
	}
}

func TestHandle_DataChangeDropsTotals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	changed, untouched := uuid.New(), uuid.New()
	h.totals.Store(ctx, domain.EntityServiceFile, map[uuid.UUID]valuation.Breakdown{
		changed:   {Services: decimal.NewFromInt(1)},
		untouched: {Services: decimal.NewFromInt(2)},
	})

	err := h.svc.Handle(ctx, events.WorkUnitDataChanged{
		BaseEvent:  events.NewBaseEvent(),
		EntityType: string(domain.EntityServiceFile),
		EntityIDs:  []uuid.UUID{changed},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	left := h.totals.Lookup(ctx, domain.EntityServiceFile, []uuid.UUID{changed, untouched})
	if _, ok := left[changed]; ok {
		t.Fatalf("expected changed entry to be dropped")
	}
	if _, ok := left[untouched]; !ok {
		t.Fatalf("expected untouched entry to stay")
	}
}

func TestReconcilablePipelines_SkipsStandard(t *testing.T) {
	h := newHarness(t)
	h.pipeline("Vanzari", "Nou")
	desk, _ := h.pipeline("Receptie", "Nou")
	salon, _ := h.pipeline("Saloane", "Nou")

	got, err := h.svc.ReconcilablePipelines(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := make([]uuid.UUID, 0, len(got))
	for _, p := range got {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]uuid.UUID{desk.ID, salon.ID}, ids); diff != "" {
		t.Fatalf("pipelines mismatch (-want +got):\n%s", diff)
	}
}

func TestHandle_TrayChangeRefreshesParentTotals(t *testing.T) {
	h := newHarness(t)
	x := h.hierarchy()
	ctx := context.Background()

	if got := h.unitTotal(t, x.desk, x.file.ID); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected file total 100 before the change, got %s", got)
	}
	if got := h.unitTotal(t, x.sales, x.lead.ID); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected lead total 100 before the change, got %s", got)
	}

	h.serviceLine(x.tray, 100)
	err := h.svc.Handle(ctx, events.WorkUnitDataChanged{
		BaseEvent:  events.NewBaseEvent(),
		EntityType: string(domain.EntityTray),
		EntityIDs:  []uuid.UUID{x.tray.ID},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := h.unitTotal(t, x.desk, x.file.ID); !got.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected file total 200 after the tray change, got %s", got)
	}
	if got := h.unitTotal(t, x.sales, x.lead.ID); !got.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected lead total 200 after the tray change, got %s", got)
	}
}

func TestHandle_ServiceFileUrgencyRefreshesTrayTotals(t *testing.T) {
	h := newHarness(t)
	x := h.hierarchy()
	ctx := context.Background()

	if got := h.unitTotal(t, x.salon, x.tray.ID); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected tray total 100 before the change, got %s", got)
	}
	h.unitTotal(t, x.desk, x.file.ID)

	urgent := x.file
	urgent.Urgent = true
	h.store.UpdateServiceFile(urgent)
	err := h.svc.Handle(ctx, events.WorkUnitDataChanged{
		BaseEvent:  events.NewBaseEvent(),
		EntityType: string(domain.EntityServiceFile),
		EntityIDs:  []uuid.UUID{x.file.ID},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got := h.unitTotal(t, x.salon, x.tray.ID); !got.Equal(decimal.NewFromInt(130)) {
		t.Fatalf("expected urgent tray total 130, got %s", got)
	}
	if got := h.unitTotal(t, x.desk, x.file.ID); !got.Equal(decimal.NewFromInt(130)) {
		t.Fatalf("expected urgent file total 130, got %s", got)
	}
}

func TestHandle_UnresolvedLinksClearTotals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tray, other := uuid.New(), uuid.New()
	h.totals.Store(ctx, domain.EntityServiceFile, map[uuid.UUID]valuation.Breakdown{other: {Services: decimal.NewFromInt(3)}})
	h.store.FailOn("GetTraysByIDs", errors.New("connection reset"))

	err := h.svc.Handle(ctx, events.WorkUnitDataChanged{
		BaseEvent:  events.NewBaseEvent(),
		EntityType: string(domain.EntityTray),
		EntityIDs:  []uuid.UUID{tray},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.totals.Lookup(ctx, domain.EntityServiceFile, []uuid.UUID{other})) != 0 {
		t.Fatalf("expected the whole totals cache to be cleared")
	}
}
