// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"github.com/google/uuid"

	"pipeline_routing_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Routing Domain Events
// =============================================================================

// RoutingRecordMoved is published after the engine moved an entity to the
// stage derived from its children.
type RoutingRecordMoved struct {
	BaseEvent
	EntityType  string    `json:"entityType"`
	EntityID    uuid.UUID `json:"entityId"`
	PipelineID  uuid.UUID `json:"pipelineId"`
	FromStageID uuid.UUID `json:"fromStageId"`
	ToStageID   uuid.UUID `json:"toStageId"`
}

func (e RoutingRecordMoved) EventName() string { return "routing.record.moved" }

// RoutingRecordsCreated is published after missing records were repaired.
type RoutingRecordsCreated struct {
	BaseEvent
	PipelineID uuid.UUID   `json:"pipelineId"`
	EntityType string      `json:"entityType"`
	EntityIDs  []uuid.UUID `json:"entityIds"`
}

func (e RoutingRecordsCreated) EventName() string { return "routing.records.created" }

// WorkUnitDataChanged is published by writers of trays, items or prices.
// Totals cached for the named entities are dropped.
type WorkUnitDataChanged struct {
	BaseEvent
	EntityType string      `json:"entityType"`
	EntityIDs  []uuid.UUID `json:"entityIds"`
}

func (e WorkUnitDataChanged) EventName() string { return "routing.work_unit.data_changed" }

// TechnicianUpdated is published when a technician's display name changes.
type TechnicianUpdated struct {
	BaseEvent
	TechnicianID uuid.UUID `json:"technicianId"`
}

func (e TechnicianUpdated) EventName() string { return "routing.technician.updated" }
