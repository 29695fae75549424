package strategy

import (
	"github.com/google/uuid"

	"pipeline_routing_backend/internal/routing/domain"
)

type placementKey struct {
	entity   uuid.UUID
	pipeline uuid.UUID
}

// collapse keeps one record per entity and pipeline: the most recently
// updated, first seen on ties. Output keeps first-seen order.
func collapse(records []domain.RoutingRecord) []domain.RoutingRecord {
	index := make(map[placementKey]int, len(records))
	out := make([]domain.RoutingRecord, 0, len(records))
	for _, r := range records {
		key := placementKey{entity: r.EntityID, pipeline: r.PipelineID}
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, r)
			continue
		}
		if r.UpdatedAt.After(out[i].UpdatedAt) {
			out[i] = r
		}
	}
	return out
}

func entityIDs(records []domain.RoutingRecord) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.EntityID)
	}
	return ids
}

// appendUnique appends ids not yet in seen, in order.
func appendUnique(dst []uuid.UUID, seen map[uuid.UUID]struct{}, ids ...uuid.UUID) []uuid.UUID {
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		dst = append(dst, id)
	}
	return dst
}

// placementStage resolves the stage for a record that does not exist yet:
// the first stage matching key, else the pipeline's first stage by position.
func placementStage(stages []domain.Stage, key domain.PatternKey) (domain.Stage, bool) {
	if s, ok := domain.FindStageByPattern(stages, key); ok {
		return s, true
	}
	return domain.FirstStage(stages)
}
