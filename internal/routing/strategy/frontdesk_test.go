package strategy

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/platform/apperr"
)

var deskStageNames = []string{"Nou", "In asteptare", "In lucru", "De facturat", "Colet ajuns", "Office direct", "Curier trimis"}

type deskFixture struct {
	*fixture
	desk       domain.Pipeline
	deskStages map[string]domain.Stage
	salon      domain.Pipeline
	deptStages map[string]domain.Stage
}

func newDeskFixture(t *testing.T) *deskFixture {
	f := newFixture(t)
	desk, deskStages := f.pipeline("Receptie", deskStageNames...)
	salon, deptStages := f.pipeline("Saloane", "Nou", "In lucru", "Asteptare piese", "Finalizat")
	return &deskFixture{fixture: f, desk: desk, deskStages: deskStages, salon: salon, deptStages: deptStages}
}

// trayOn places a new tray of sf on a department stage.
func (f *deskFixture) trayOn(sf repository.ServiceFile, number, stage string, assigned bool) repository.Tray {
	tray := f.tray(sf, number)
	if assigned {
		f.serviceItem(tray, 10, assignedTo(uuid.New()))
	} else {
		f.serviceItem(tray, 10)
	}
	f.place(domain.EntityTray, tray.ID, f.deptStages[stage])
	return tray
}

func (f *deskFixture) stageName(id uuid.UUID) string {
	for name, st := range f.deskStages {
		if st.ID == id {
			return name
		}
	}
	return ""
}

func TestFrontDesk_AwaitingBeatsFinalized(t *testing.T) {
	f := newDeskFixture(t)
	sf := f.serviceFile(f.lead("Ana"), "SF-1")
	a := f.trayOn(sf, "1", "Asteptare piese", true)
	b := f.trayOn(sf, "2", "Finalizat", true)

	plan, outcomes := f.load(NewFrontDesk(f.deps), f.desk, admin())

	unit := unitByID(t, plan.Units, sf.ID)
	if got := f.stageName(unit.StageID); got != "In asteptare" {
		t.Fatalf("expected In asteptare, got %q", got)
	}
	if !unit.IsReadOnly || unit.Source != domain.SourceVirtual {
		t.Fatalf("expected read-only virtual unit, got %+v", unit)
	}
	if diff := cmp.Diff([]uuid.UUID{a.ID, b.ID}, unit.Metadata["derivedFrom"]); diff != "" {
		t.Fatalf("derivedFrom mismatch (-want +got):\n%s", diff)
	}
	if len(outcomes) != 0 {
		t.Fatalf("virtual units must not write, got %d writes", len(outcomes))
	}
}

type deptTray struct {
	stage    string
	assigned bool
}

func TestFrontDesk_TargetPriority(t *testing.T) {
	cases := []struct {
		name   string
		trays  []deptTray
		expect string
	}{
		{"in progress beats finalized", []deptTray{{"In lucru", true}, {"Finalizat", true}}, "In lucru"},
		{"all finalized", []deptTray{{"Finalizat", true}, {"Finalizat", false}}, "De facturat"},
		{"new unassigned", []deptTray{{"Nou", false}, {"Finalizat", true}}, "Colet ajuns"},
		{"new assigned falls back", []deptTray{{"Nou", true}}, "Colet ajuns"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newDeskFixture(t)
			sf := f.serviceFile(f.lead("Ana"), "SF")
			for i, tr := range tc.trays {
				f.trayOn(sf, strconv.Itoa(i+1), tr.stage, tr.assigned)
			}

			plan, _ := f.load(NewFrontDesk(f.deps), f.desk, admin())

			if got := f.stageName(unitByID(t, plan.Units, sf.ID).StageID); got != tc.expect {
				t.Fatalf("expected %q, got %q", tc.expect, got)
			}
		})
	}
}

func TestFrontDesk_MovesStoredRecordOnceThenSettles(t *testing.T) {
	f := newDeskFixture(t)
	sf := f.serviceFile(f.lead("Ana"), "SF-2")
	f.place(domain.EntityServiceFile, sf.ID, f.deskStages["Nou"])
	f.trayOn(sf, "1", "In lucru", true)
	desk := NewFrontDesk(f.deps)

	plan, outcomes := f.load(desk, f.desk, admin())

	if len(outcomes) != 1 || outcomes[0].Kind != WriteMove || !outcomes[0].OK() {
		t.Fatalf("expected one successful move, got %+v", outcomes)
	}
	if outcomes[0].FromStageID != f.deskStages["Nou"].ID {
		t.Fatalf("expected move from Nou, got %s", outcomes[0].FromStageID)
	}
	unit := unitByID(t, plan.Units, sf.ID)
	if f.stageName(unit.StageID) != "In lucru" || unit.IsReadOnly {
		t.Fatalf("expected editable unit on In lucru, got %+v", unit)
	}

	again, outcomes := f.load(desk, f.desk, admin())
	if len(outcomes) != 0 {
		t.Fatalf("expected no writes on second route, got %d", len(outcomes))
	}
	if diff := cmp.Diff(plan.Units[0].StageID, again.Units[0].StageID); diff != "" {
		t.Fatalf("stage changed between calls (-first +second):\n%s", diff)
	}
}

func TestFrontDesk_DeliveryFlagCreatesRecord(t *testing.T) {
	f := newDeskFixture(t)
	office := f.serviceFile(f.lead("Ana"), "SF-3", func(sf *repository.ServiceFile) { sf.OfficeDirect = true })
	courier := f.serviceFile(f.lead("Dan"), "SF-4", func(sf *repository.ServiceFile) { sf.CourierSent = true })
	desk := NewFrontDesk(f.deps)

	plan, outcomes := f.load(desk, f.desk, admin())

	if got := f.stageName(unitByID(t, plan.Units, office.ID).StageID); got != "Office direct" {
		t.Fatalf("expected Office direct, got %q", got)
	}
	if got := f.stageName(unitByID(t, plan.Units, courier.ID).StageID); got != "Curier trimis" {
		t.Fatalf("expected Curier trimis, got %q", got)
	}
	if len(outcomes) != 2 || FailedWrites(outcomes) != 0 {
		t.Fatalf("expected two successful creates, got %+v", outcomes)
	}

	_, outcomes = f.load(desk, f.desk, admin())
	if len(outcomes) != 0 {
		t.Fatalf("expected no writes on second route, got %d", len(outcomes))
	}
}

func TestFrontDesk_DepartmentTagIncludesWithoutSteering(t *testing.T) {
	f := newDeskFixture(t)
	sf := f.serviceFile(f.lead("Hotel", "Horeca"), "SF-5")
	f.serviceFile(f.lead("Walk-in", "vip"), "SF-6")

	plan, outcomes := f.load(NewFrontDesk(f.deps), f.desk, admin())

	if len(plan.Units) != 1 {
		t.Fatalf("expected only the tagged file, got %d units", len(plan.Units))
	}
	unit := unitByID(t, plan.Units, sf.ID)
	if f.stageName(unit.StageID) != "Nou" || !unit.IsReadOnly {
		t.Fatalf("expected read-only unit on first stage, got %+v", unit)
	}
	if len(outcomes) != 0 {
		t.Fatalf("tag inclusion must not write, got %d", len(outcomes))
	}
}

func TestFrontDesk_FailedMoveIsIsolated(t *testing.T) {
	f := newDeskFixture(t)
	first := f.serviceFile(f.lead("Ana"), "SF-7")
	second := f.serviceFile(f.lead("Dan"), "SF-8")
	f.place(domain.EntityServiceFile, first.ID, f.deskStages["Nou"])
	f.place(domain.EntityServiceFile, second.ID, f.deskStages["Nou"])
	f.trayOn(first, "1", "In lucru", true)
	f.trayOn(second, "1", "Finalizat", true)
	f.store.FailOn("MoveRoutingRecord", errors.New("deadlock detected"))

	plan, outcomes := f.load(NewFrontDesk(f.deps), f.desk, admin())

	if len(plan.Units) != 2 {
		t.Fatalf("expected both units despite failed writes, got %d", len(plan.Units))
	}
	if FailedWrites(outcomes) != 2 {
		t.Fatalf("expected two failed writes, got %d", FailedWrites(outcomes))
	}
	for _, o := range outcomes {
		if !apperr.Is(o.Err, apperr.KindReconcileWrite) {
			t.Fatalf("expected reconcile write error, got %v", o.Err)
		}
	}
}

func TestFrontDesk_MissingPatternStageSkipsMove(t *testing.T) {
	f := newFixture(t)
	desk, deskStages := f.pipeline("Receptie", "Nou", "Colet ajuns")
	_, deptStages := f.pipeline("Horeca", "Nou", "In lucru")
	sf := f.serviceFile(f.lead("Bistro"), "SF-9")
	f.place(domain.EntityServiceFile, sf.ID, deskStages["Colet ajuns"])
	tray := f.tray(sf, "1")
	f.place(domain.EntityTray, tray.ID, deptStages["In lucru"])

	plan, outcomes := f.load(NewFrontDesk(f.deps), desk, admin())

	if len(outcomes) != 0 {
		t.Fatalf("expected no move without a matching stage, got %d", len(outcomes))
	}
	if plan.Units[0].StageID != deskStages["Colet ajuns"].ID {
		t.Fatalf("expected unit to stay on its stage")
	}
}

func TestFrontDesk_LoadFailureIsLoadError(t *testing.T) {
	f := newDeskFixture(t)
	f.store.FailOn("ListServiceFilesWithDeliveryFlags", errors.New("connection reset"))

	_, err := NewFrontDesk(f.deps).Load(context.Background(), f.context(f.desk, admin()))
	if !apperr.IsLoad(err) {
		t.Fatalf("expected load error, got %v", err)
	}
}

func TestFrontDesk_CourierVariant(t *testing.T) {
	f := newFixture(t)
	courierPipeline, stages := f.pipeline("Curier", "Curier trimis", "Livrat")
	sent := f.serviceFile(f.lead("Ana"), "SF-10", func(sf *repository.ServiceFile) { sf.CourierSent = true })
	f.serviceFile(f.lead("Dan"), "SF-11", func(sf *repository.ServiceFile) { sf.OfficeDirect = true })

	plan, outcomes := f.load(NewFrontDesk(f.deps), courierPipeline, admin())

	if len(plan.Units) != 1 || plan.Units[0].ID != sent.ID {
		t.Fatalf("expected only the courier file, got %+v", plan.Units)
	}
	if plan.Units[0].StageID != stages["Curier trimis"].ID {
		t.Fatalf("expected Curier trimis stage")
	}
	if len(outcomes) != 1 || outcomes[0].Kind != WriteCreate {
		t.Fatalf("expected one create, got %+v", outcomes)
	}
}

func TestFrontDesk_ReadOnlyRepairsAreVirtual(t *testing.T) {
	f := newDeskFixture(t)
	sf := f.serviceFile(f.lead("Ana"), "SF-12", func(sf *repository.ServiceFile) { sf.OfficeDirect = true })
	rc := f.context(f.desk, admin())
	rc.ReadOnly = true

	plan, err := NewFrontDesk(f.deps).Load(context.Background(), rc)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	unit := unitByID(t, plan.Units, sf.ID)
	if !unit.IsReadOnly || unit.Source != domain.SourceVirtual {
		t.Fatalf("expected virtual unit in read-only mode, got %+v", unit)
	}
	if len(plan.Writes) != 1 {
		t.Fatalf("expected the create to stay planned, got %d", len(plan.Writes))
	}
}
