package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntityType identifies what a routing record points at.
type EntityType string

const (
	EntityLead        EntityType = "lead"
	EntityServiceFile EntityType = "service_file"
	EntityTray        EntityType = "tray"
)

// Valid reports whether t is a routable entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityLead, EntityServiceFile, EntityTray:
		return true
	}
	return false
}

// Pipeline is a named sequence of stages.
type Pipeline struct {
	ID       uuid.UUID
	Name     string
	Position int
}

// Stage belongs to exactly one pipeline.
type Stage struct {
	ID         uuid.UUID
	PipelineID uuid.UUID
	Name       string
	Position   int
}

// PipelineKind is derived from the pipeline name.
type PipelineKind string

const (
	KindStandard   PipelineKind = "standard"
	KindFrontDesk  PipelineKind = "front_desk"
	KindCourier    PipelineKind = "courier"
	KindDepartment PipelineKind = "department"
)

// ClassifyPipeline derives the kind of a pipeline from its name.
func ClassifyPipeline(name string) PipelineKind {
	switch {
	case IsDepartment(name):
		return KindDepartment
	case IsFrontDesk(name):
		return KindFrontDesk
	case IsCourier(name):
		return KindCourier
	default:
		return KindStandard
	}
}

// StagesOf returns the stages of pipelineID in source order.
func StagesOf(stages []Stage, pipelineID uuid.UUID) []Stage {
	out := make([]Stage, 0)
	for _, s := range stages {
		if s.PipelineID == pipelineID {
			out = append(out, s)
		}
	}
	return out
}

// FirstStage returns the stage with the lowest position, keeping source order on ties.
func FirstStage(stages []Stage) (Stage, bool) {
	if len(stages) == 0 {
		return Stage{}, false
	}
	sorted := make([]Stage, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	return sorted[0], true
}

// RecordSource distinguishes stored placements from synthesized ones.
type RecordSource string

const (
	// SourcePersisted records were read from storage.
	SourcePersisted RecordSource = "persisted"
	// SourceRepaired records were missing and have been written by the engine.
	SourceRepaired RecordSource = "repaired"
	// SourceVirtual records exist only for the current invocation.
	SourceVirtual RecordSource = "virtual"
)

// Placement is where one entity sits in one pipeline.
type Placement struct {
	EntityType EntityType
	EntityID   uuid.UUID
	PipelineID uuid.UUID
	StageID    uuid.UUID
}

// RoutingRecord is either Persisted(ID) or Virtual(DerivedFrom).
type RoutingRecord struct {
	Placement
	ID          uuid.UUID
	Source      RecordSource
	DerivedFrom []uuid.UUID
	UpdatedAt   time.Time
}

// Persisted builds a record read from storage.
func Persisted(id uuid.UUID, p Placement, updatedAt time.Time) RoutingRecord {
	return RoutingRecord{Placement: p, ID: id, Source: SourcePersisted, UpdatedAt: updatedAt}
}

// Virtual builds a synthesized read-only record.
func Virtual(p Placement, derivedFrom []uuid.UUID) RoutingRecord {
	return RoutingRecord{Placement: p, Source: SourceVirtual, DerivedFrom: derivedFrom}
}

// IsReadOnly reports whether callers must not offer edits on this record.
func (r RoutingRecord) IsReadOnly() bool {
	return r.Source == SourceVirtual
}

// Tag is a free-form label on a lead.
type Tag struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
}

const (
	RoleAdmin = "admin"
	RoleOwner = "owner"
)

// Actor is whoever asked for the view.
type Actor struct {
	ID    uuid.UUID
	Roles []string
}

// SystemActor is used by background reconciliation.
func SystemActor() Actor {
	return Actor{Roles: []string{RoleOwner}}
}

// IsPrivileged reports whether the actor sees every work unit.
func (a Actor) IsPrivileged() bool {
	for _, r := range a.Roles {
		if r == RoleAdmin || r == RoleOwner {
			return true
		}
	}
	return false
}

// WorkUnit is the engine's output for one lead, service file or tray.
type WorkUnit struct {
	ID          uuid.UUID
	Type        EntityType
	DisplayName string
	PipelineID  uuid.UUID
	StageID     uuid.UUID
	Tags        []Tag
	Total       decimal.Decimal
	Technician  *string
	IsReadOnly  bool
	Source      RecordSource
	CreatedAt   time.Time
	Metadata    map[string]any
}
