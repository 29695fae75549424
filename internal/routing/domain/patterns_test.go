package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestMatchesPatternIgnoresCaseAndDiacritics(t *testing.T) {
	cases := []struct {
		stage string
		key   PatternKey
		want  bool
	}{
		{"În lucru", PatternInProgress, true},
		{"ASTEPTARE PIESE", PatternAwaitingParts, true},
		{"Așteptare piese", PatternAwaiting, true},
		{"Finalizată", PatternFinalized, true},
		{"De facturat", PatternToInvoice, true},
		{"Nouă", PatternNew, true},
		{"Colet ajuns", PatternPackageArrived, true},
		{"Office direct", PatternOfficeDirect, true},
		{"Curier trimis", PatternCourierSent, true},
		{"In lucru", PatternAwaiting, false},
		{"Livrat", PatternFinalized, false},
	}
	for _, tc := range cases {
		if got := MatchesPattern(tc.stage, tc.key); got != tc.want {
			t.Fatalf("MatchesPattern(%q, %s) = %v, want %v", tc.stage, tc.key, got, tc.want)
		}
	}
}

func TestFindStageByPatternKeepsInputOrder(t *testing.T) {
	first := Stage{ID: uuid.New(), Name: "Asteptare client", Position: 5}
	second := Stage{ID: uuid.New(), Name: "Asteptare piese", Position: 1}

	got, ok := FindStageByPattern([]Stage{first, second}, PatternAwaiting)
	if !ok {
		t.Fatalf("expected a match")
	}
	if got.ID != first.ID {
		t.Fatalf("expected first stage in input order, got %q", got.Name)
	}
}

func TestFindStageByPatternNoMatch(t *testing.T) {
	if _, ok := FindStageByPattern([]Stage{{Name: "Livrat"}}, PatternToInvoice); ok {
		t.Fatalf("expected no match")
	}
}

func TestClassifyPipeline(t *testing.T) {
	cases := map[string]PipelineKind{
		"Reparatii":       KindDepartment,
		"saloane":         KindDepartment,
		"Recepție":        KindFrontDesk,
		"Receptie Curier": KindFrontDesk,
		"Curier":          KindCourier,
		"Vanzari":         KindStandard,
	}
	for name, want := range cases {
		if got := ClassifyPipeline(name); got != want {
			t.Fatalf("ClassifyPipeline(%q) = %s, want %s", name, got, want)
		}
	}
}

func TestDepartmentPipelineNamesIsACopy(t *testing.T) {
	names := DepartmentPipelineNames()
	names[0] = "mutated"
	if !IsDepartment(DepartmentSaloane) {
		t.Fatalf("mutating the returned slice must not affect the registry")
	}
}

func TestFirstStageUsesPosition(t *testing.T) {
	a := Stage{Name: "b", Position: 2}
	b := Stage{Name: "a", Position: 0}
	got, ok := FirstStage([]Stage{a, b})
	if !ok || got.Name != "a" {
		t.Fatalf("expected lowest position stage, got %+v", got)
	}
	if _, ok := FirstStage(nil); ok {
		t.Fatalf("expected no stage for empty input")
	}
}
