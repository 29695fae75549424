package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pipeline_routing_backend/internal/routing/domain"
)

var ErrNotFound = errors.New("not found")

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// PipelineReader lists pipeline metadata.
type PipelineReader interface {
	ListAllPipelines(ctx context.Context) ([]domain.Pipeline, error)
	// ListAllStages returns stages ordered by pipeline then position.
	ListAllStages(ctx context.Context) ([]domain.Stage, error)
}

// RoutingReader reads pipeline item placements.
type RoutingReader interface {
	ListRoutingRecords(ctx context.Context, pipelineID uuid.UUID, entityType domain.EntityType) ([]domain.RoutingRecord, error)
	ListRoutingRecordsByStages(ctx context.Context, entityType domain.EntityType, stageIDs []uuid.UUID) ([]domain.RoutingRecord, error)
}

// RoutingWriter creates and moves pipeline item placements.
type RoutingWriter interface {
	CreateRoutingRecords(ctx context.Context, placements []domain.Placement) ([]domain.RoutingRecord, error)
	MoveRoutingRecord(ctx context.Context, entityType domain.EntityType, entityID, pipelineID, stageID uuid.UUID) error
}

// EntityReader reads leads, service files, trays and tray items.
type EntityReader interface {
	GetLeadsByIDs(ctx context.Context, ids []uuid.UUID) ([]Lead, error)
	GetServiceFilesByIDs(ctx context.Context, ids []uuid.UUID) ([]ServiceFile, error)
	ListServiceFilesByLeadIDs(ctx context.Context, leadIDs []uuid.UUID) ([]ServiceFile, error)
	// ListServiceFilesWithDeliveryFlags returns files marked office-direct or courier-sent.
	ListServiceFilesWithDeliveryFlags(ctx context.Context) ([]ServiceFile, error)
	GetTraysByIDs(ctx context.Context, ids []uuid.UUID) ([]Tray, error)
	ListTraysByServiceFileIDs(ctx context.Context, serviceFileIDs []uuid.UUID) ([]Tray, error)
	// GetTrayItemsByTrayIDs keeps the order of trayIDs, then item position.
	GetTrayItemsByTrayIDs(ctx context.Context, trayIDs []uuid.UUID) ([]TrayItem, error)
	// ListTrayIDsRoutedToPipeline returns trays with at least one item declaring pipelineID.
	ListTrayIDsRoutedToPipeline(ctx context.Context, pipelineID uuid.UUID) ([]uuid.UUID, error)
}

// CatalogReader reads catalog prices.
type CatalogReader interface {
	GetServicePricesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}

// TagReader reads lead tags.
type TagReader interface {
	GetTagsForLeadIDs(ctx context.Context, leadIDs []uuid.UUID) (map[uuid.UUID][]domain.Tag, error)
	// ListLeadIDsByTagNames matches tag names case-insensitively.
	ListLeadIDsByTagNames(ctx context.Context, names []string) ([]uuid.UUID, error)
}

// TechnicianReader resolves technician display names.
type TechnicianReader interface {
	GetTechnicianNameByID(ctx context.Context, id uuid.UUID) (string, error)
	ListTechnicianNames(ctx context.Context) (map[uuid.UUID]string, error)
}

// Accessors is everything the routing engine consumes.
type Accessors interface {
	PipelineReader
	RoutingReader
	RoutingWriter
	EntityReader
	CatalogReader
	TagReader
	TechnicianReader
}
