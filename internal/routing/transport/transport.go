package transport

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/strategy"
)

// InvalidateCacheRequest selects which routing caches to drop.
type InvalidateCacheRequest struct {
	Scope string      `json:"scope" validate:"required,cache_scope"`
	IDs   []uuid.UUID `json:"ids,omitempty" validate:"omitempty,max=500"`
}

// StageResponse is one pipeline stage.
type StageResponse struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Position int       `json:"position"`
}

// PipelineResponse is a pipeline with its derived kind.
type PipelineResponse struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Kind         string          `json:"kind"`
	IsDepartment bool            `json:"isDepartment"`
	IsFrontDesk  bool            `json:"isFrontDesk"`
	Stages       []StageResponse `json:"stages"`
}

// PipelineListResponse wraps the pipelines.
type PipelineListResponse struct {
	Items []PipelineResponse `json:"items"`
}

// TagResponse is a display tag.
type TagResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
}

// WorkUnitResponse is one lead, service file or tray on a stage.
type WorkUnitResponse struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	DisplayName string          `json:"displayName"`
	PipelineID  uuid.UUID       `json:"pipelineId"`
	StageID     uuid.UUID       `json:"stageId"`
	Tags        []TagResponse   `json:"tags"`
	Total       decimal.Decimal `json:"total"`
	Technician  *string         `json:"technician,omitempty"`
	IsReadOnly  bool            `json:"isReadOnly"`
	Source      string          `json:"source"`
	CreatedAt   string          `json:"createdAt"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// WorkUnitListResponse is the routed view of one pipeline.
type WorkUnitListResponse struct {
	PipelineID   uuid.UUID          `json:"pipelineId"`
	Strategy     string             `json:"strategy"`
	Items        []WorkUnitResponse `json:"items"`
	Writes       int                `json:"writes"`
	FailedWrites int                `json:"failedWrites"`
	PendingWrites int               `json:"pendingWrites"`
}

// InvalidateCacheResponse echoes what was dropped.
type InvalidateCacheResponse struct {
	Scope string `json:"scope"`
	IDs   int    `json:"ids"`
}

// ToWorkUnitResponses maps engine output to its JSON form.
func ToWorkUnitResponses(units []domain.WorkUnit) []WorkUnitResponse {
	out := make([]WorkUnitResponse, 0, len(units))
	for _, u := range units {
		tags := make([]TagResponse, 0, len(u.Tags))
		for _, t := range u.Tags {
			tags = append(tags, TagResponse{ID: t.ID, Name: t.Name, Color: t.Color})
		}
		out = append(out, WorkUnitResponse{
			ID:          u.ID,
			Type:        string(u.Type),
			DisplayName: u.DisplayName,
			PipelineID:  u.PipelineID,
			StageID:     u.StageID,
			Tags:        tags,
			Total:       u.Total,
			Technician:  u.Technician,
			IsReadOnly:  u.IsReadOnly,
			Source:      string(u.Source),
			CreatedAt:   u.CreatedAt.UTC().Format(time.RFC3339),
			Metadata:    u.Metadata,
		})
	}
	return out
}

// WriteCounts summarises reconciliation outcomes.
func WriteCounts(outcomes []strategy.WriteOutcome) (writes, failed int) {
	return len(outcomes), strategy.FailedWrites(outcomes)
}
