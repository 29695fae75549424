package domain

import "testing"

func TestFrontDeskTargetAwaitingBeatsFinalized(t *testing.T) {
	got, ok := FrontDeskTarget([]TrayState{
		{Phase: PhaseAwaiting},
		{Phase: PhaseFinalized},
	})
	if !ok || got != PatternAwaiting {
		t.Fatalf("expected AWAITING, got %q (ok=%v)", got, ok)
	}
}

func TestFrontDeskTargetInProgressBeatsNew(t *testing.T) {
	got, _ := FrontDeskTarget([]TrayState{
		{Phase: PhaseNew},
		{Phase: PhaseInProgress, Assigned: true},
	})
	if got != PatternInProgress {
		t.Fatalf("expected IN_PROGRESS, got %q", got)
	}
}

func TestFrontDeskTargetAllFinalized(t *testing.T) {
	got, _ := FrontDeskTarget([]TrayState{{Phase: PhaseFinalized}, {Phase: PhaseFinalized}})
	if got != PatternToInvoice {
		t.Fatalf("expected TO_INVOICE, got %q", got)
	}
}

func TestFrontDeskTargetPartiallyFinalizedFallsBack(t *testing.T) {
	got, _ := FrontDeskTarget([]TrayState{{Phase: PhaseFinalized}, {Phase: PhaseNew, Assigned: true}})
	if got != PatternPackageArrived {
		t.Fatalf("expected PACKAGE_ARRIVED fallback, got %q", got)
	}
}

func TestFrontDeskTargetNewUnassigned(t *testing.T) {
	got, _ := FrontDeskTarget([]TrayState{{Phase: PhaseNew}})
	if got != PatternPackageArrived {
		t.Fatalf("expected PACKAGE_ARRIVED, got %q", got)
	}
}

func TestFrontDeskTargetWithoutTrays(t *testing.T) {
	if _, ok := FrontDeskTarget(nil); ok {
		t.Fatalf("expected no target without trays")
	}
}

func TestClassifyDepartmentStage(t *testing.T) {
	cases := map[string]TrayPhase{
		"Asteptare piese": PhaseAwaiting,
		"In asteptare":    PhaseAwaiting,
		"In lucru":        PhaseInProgress,
		"Finalizata":      PhaseFinalized,
		"Noua":            PhaseNew,
	}
	for name, want := range cases {
		got, ok := ClassifyDepartmentStage(name)
		if !ok || got != want {
			t.Fatalf("ClassifyDepartmentStage(%q) = %q (ok=%v), want %q", name, got, ok, want)
		}
	}
	if _, ok := ClassifyDepartmentStage("Arhiva"); ok {
		t.Fatalf("expected unrelated stage to be unclassified")
	}
}
