// Package domain holds the pure routing rules: pipeline classification,
// stage-name patterns and the front-desk stage decision.
package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PatternKey names a set of stage-name substrings.
type PatternKey string

const (
	PatternInProgress     PatternKey = "IN_PROGRESS"
	PatternAwaitingParts  PatternKey = "AWAITING_PARTS"
	PatternAwaiting       PatternKey = "AWAITING"
	PatternFinalized      PatternKey = "FINALIZED"
	PatternToInvoice      PatternKey = "TO_INVOICE"
	PatternNew            PatternKey = "NEW"
	PatternPackageArrived PatternKey = "PACKAGE_ARRIVED"
	PatternOfficeDirect   PatternKey = "OFFICE_DIRECT"
	PatternCourierSent    PatternKey = "COURIER_SENT"
)

// Substrings are stored folded (lowercase, no diacritics).
var stagePatterns = map[PatternKey][]string{
	PatternInProgress:     {"in lucru", "in progress", "in work"},
	PatternAwaitingParts:  {"asteptare piese", "awaiting parts", "waiting for parts"},
	PatternAwaiting:       {"asteptare", "awaiting", "waiting"},
	PatternFinalized:      {"finalizat", "finalized", "done"},
	PatternToInvoice:      {"de facturat", "facturare", "to invoice"},
	PatternNew:            {"nou", "new"},
	PatternPackageArrived: {"colet ajuns", "colet sosit", "package arrived"},
	PatternOfficeDirect:   {"office direct"},
	PatternCourierSent:    {"curier trimis", "courier sent"},
}

const (
	DepartmentSaloane   = "Saloane"
	DepartmentHoreca    = "Horeca"
	DepartmentFrizerii  = "Frizerii"
	DepartmentReparatii = "Reparatii"
)

var departmentNames = []string{
	DepartmentSaloane,
	DepartmentHoreca,
	DepartmentFrizerii,
	DepartmentReparatii,
}

const (
	frontDeskMarker = "receptie"
	courierMarker   = "curier"
	courierMarkerEN = "courier"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips diacritics so "Așteptare" matches "asteptare".
func Fold(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// DepartmentPipelineNames returns the fixed department pipeline names.
func DepartmentPipelineNames() []string {
	out := make([]string, len(departmentNames))
	copy(out, departmentNames)
	return out
}

// IsDepartment reports whether a pipeline name is one of the departments.
func IsDepartment(name string) bool {
	folded := Fold(name)
	for _, dept := range departmentNames {
		if folded == Fold(dept) {
			return true
		}
	}
	return false
}

// IsDepartmentTag reports whether a lead tag names a department.
func IsDepartmentTag(tagName string) bool {
	return IsDepartment(tagName)
}

// IsFrontDesk reports whether a pipeline name is the reception pipeline.
func IsFrontDesk(name string) bool {
	return strings.Contains(Fold(name), frontDeskMarker)
}

// IsCourier reports whether a pipeline name is a courier pipeline.
func IsCourier(name string) bool {
	folded := Fold(name)
	return strings.Contains(folded, courierMarker) || strings.Contains(folded, courierMarkerEN)
}

// MatchesPattern reports whether stageName contains any substring of key.
func MatchesPattern(stageName string, key PatternKey) bool {
	folded := Fold(stageName)
	for _, needle := range stagePatterns[key] {
		if strings.Contains(folded, needle) {
			return true
		}
	}
	return false
}

// FindStageByPattern returns the first stage, in input order, matching key.
func FindStageByPattern(stages []Stage, key PatternKey) (Stage, bool) {
	for _, stage := range stages {
		if MatchesPattern(stage.Name, key) {
			return stage, true
		}
	}
	return Stage{}, false
}
