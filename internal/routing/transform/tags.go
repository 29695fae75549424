package transform

import (
	"strings"

	"github.com/google/uuid"

	"pipeline_routing_backend/internal/routing/domain"
)

const urgentTagName = "URGENT"

// UrgentTag is the synthetic tag mirroring a service file's urgent flag.
var UrgentTag = domain.Tag{
	ID:    uuid.NewSHA1(uuid.NameSpaceURL, []byte("pipeline-routing:tag:urgent")),
	Name:  urgentTagName,
	Color: "#dc2626",
}

// DisplayTags drops every lead tag named "urgent" and adds UrgentTag only
// when the service file is urgent.
func DisplayTags(leadTags []domain.Tag, serviceFileUrgent bool) []domain.Tag {
	out := make([]domain.Tag, 0, len(leadTags)+1)
	for _, t := range leadTags {
		if strings.EqualFold(strings.TrimSpace(t.Name), urgentTagName) {
			continue
		}
		out = append(out, t)
	}
	if serviceFileUrgent {
		out = append(out, UrgentTag)
	}
	return out
}

// HasDepartmentTag reports whether any tag names a department.
func HasDepartmentTag(tags []domain.Tag) bool {
	for _, t := range tags {
		if domain.IsDepartmentTag(t.Name) {
			return true
		}
	}
	return false
}
