package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/platform/apperr"
)

func TestStandard_OrdersLeadsNewestFirst(t *testing.T) {
	f := newFixture(t)
	sales, stages := f.pipeline("Vanzari", "Contact", "Oferta")
	first := f.lead("Ana")
	second := f.lead("Dan")
	third := f.lead("Ioana")
	for _, l := range []repository.Lead{second, first, third} {
		f.place(domain.EntityLead, l.ID, stages["Contact"])
	}

	plan, outcomes := f.load(NewStandard(f.deps), sales, admin())

	got := make([]uuid.UUID, 0, len(plan.Units))
	for _, u := range plan.Units {
		got = append(got, u.ID)
	}
	if diff := cmp.Diff([]uuid.UUID{third.ID, second.ID, first.ID}, got); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	if len(outcomes) != 0 {
		t.Fatalf("standard pipelines never write, got %d", len(outcomes))
	}
}

func TestStandard_LeadTotalSumsAdjustedServiceFiles(t *testing.T) {
	f := newFixture(t)
	sales, stages := f.pipeline("Vanzari", "Contact")
	lead := f.lead("Ana")
	f.place(domain.EntityLead, lead.ID, stages["Contact"])

	subscribed := f.serviceFile(lead, "SF-1", func(sf *repository.ServiceFile) { sf.SubscriptionMode = "both" })
	tray := f.tray(subscribed, "1")
	f.serviceItem(tray, 200)
	partPrice := decimal.NewFromInt(100)
	partID := uuid.New()
	instrumentID := uuid.New()
	f.store.AddTrayItem(repository.TrayItem{TrayID: tray.ID, PartID: &partID, Price: &partPrice, Quantity: 1})
	f.store.AddTrayItem(repository.TrayItem{TrayID: tray.ID, InstrumentID: &instrumentID, Quantity: 1})

	plain := f.serviceFile(lead, "SF-2")
	f.serviceItem(f.tray(plain, "1"), 25)

	plan, _ := f.load(NewStandard(f.deps), sales, admin())

	unit := unitByID(t, plan.Units, lead.ID)
	if !unit.Total.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected 275 + 25 = 300, got %s", unit.Total)
	}
	if unit.Metadata["serviceFileCount"] != 2 {
		t.Fatalf("expected 2 service files, got %v", unit.Metadata["serviceFileCount"])
	}
}

func TestStandard_CachedTotalsSkipTrayLoads(t *testing.T) {
	f := newFixture(t)
	sales, stages := f.pipeline("Vanzari", "Contact")
	lead := f.lead("Ana")
	f.place(domain.EntityLead, lead.ID, stages["Contact"])
	f.serviceItem(f.tray(f.serviceFile(lead, "SF-1"), "1"), 40)
	standard := NewStandard(f.deps)

	f.load(standard, sales, admin())
	f.load(standard, sales, admin())

	if calls := f.store.Calls("GetTrayItemsByTrayIDs"); calls != 1 {
		t.Fatalf("expected items to load once, got %d", calls)
	}
}

func TestStandard_CollapsesDuplicateRecords(t *testing.T) {
	f := newFixture(t)
	sales, stages := f.pipeline("Vanzari", "Contact", "Oferta")
	lead := f.lead("Ana")
	f.place(domain.EntityLead, lead.ID, stages["Contact"])
	f.place(domain.EntityLead, lead.ID, stages["Oferta"])

	plan, _ := f.load(NewStandard(f.deps), sales, admin())

	if len(plan.Units) != 1 {
		t.Fatalf("expected duplicates to collapse, got %d units", len(plan.Units))
	}
}

func TestStandard_RecordFetchFailureIsLoadError(t *testing.T) {
	f := newFixture(t)
	sales, _ := f.pipeline("Vanzari", "Contact")
	boom := errors.New("pool exhausted")
	f.store.FailOn("ListRoutingRecords", boom)

	_, err := NewStandard(f.deps).Load(context.Background(), f.context(sales, admin()))

	if !apperr.IsLoad(err) {
		t.Fatalf("expected load error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}
