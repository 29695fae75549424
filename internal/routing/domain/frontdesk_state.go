package domain

import "github.com/google/uuid"

// TrayPhase is the progress a tray shows through its department stage.
type TrayPhase string

const (
	PhaseNew        TrayPhase = "new"
	PhaseInProgress TrayPhase = "in_progress"
	PhaseAwaiting   TrayPhase = "awaiting"
	PhaseFinalized  TrayPhase = "finalized"
)

// ClassifyDepartmentStage maps a department stage name to a tray phase.
// Awaiting-parts stages count as awaiting.
func ClassifyDepartmentStage(stageName string) (TrayPhase, bool) {
	switch {
	case MatchesPattern(stageName, PatternAwaitingParts), MatchesPattern(stageName, PatternAwaiting):
		return PhaseAwaiting, true
	case MatchesPattern(stageName, PatternInProgress):
		return PhaseInProgress, true
	case MatchesPattern(stageName, PatternFinalized):
		return PhaseFinalized, true
	case MatchesPattern(stageName, PatternNew):
		return PhaseNew, true
	}
	return "", false
}

// TrayState is one tray's contribution to its service file's front-desk stage.
type TrayState struct {
	TrayID   uuid.UUID
	Phase    TrayPhase
	Assigned bool
}

// FrontDeskTarget picks the front-desk stage pattern for a service file
// from the state of its trays. First matching rule wins:
//
//  1. any tray awaiting (parts)  -> AWAITING
//  2. any tray in progress       -> IN_PROGRESS
//  3. every tray finalized       -> TO_INVOICE
//  4. any new, unassigned tray   -> PACKAGE_ARRIVED
//
// PACKAGE_ARRIVED is also the fallback. ok is false only without trays.
func FrontDeskTarget(trays []TrayState) (key PatternKey, ok bool) {
	if len(trays) == 0 {
		return "", false
	}

	var awaiting, inProgress, newUnassigned bool
	allFinalized := true
	for _, t := range trays {
		switch t.Phase {
		case PhaseAwaiting:
			awaiting = true
		case PhaseInProgress:
			inProgress = true
		case PhaseNew:
			if !t.Assigned {
				newUnassigned = true
			}
		}
		if t.Phase != PhaseFinalized {
			allFinalized = false
		}
	}

	switch {
	case awaiting:
		return PatternAwaiting, true
	case inProgress:
		return PatternInProgress, true
	case allFinalized:
		return PatternToInvoice, true
	case newUnassigned:
		return PatternPackageArrived, true
	default:
		return PatternPackageArrived, true
	}
}
