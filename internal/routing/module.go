// Package routing provides the pipeline routing bounded context module.
// It turns pipelines into work-unit views and keeps routing records healed.
package routing

import (
	"context"

	"pipeline_routing_backend/internal/events"
	apphttp "pipeline_routing_backend/internal/http"
	"pipeline_routing_backend/internal/routing/cache"
	"pipeline_routing_backend/internal/routing/handler"
	"pipeline_routing_backend/internal/routing/repository"
	"pipeline_routing_backend/internal/routing/service"
	"pipeline_routing_backend/platform/config"
	"pipeline_routing_backend/platform/logger"
	"pipeline_routing_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the routing bounded context module implementing http.Module.
type Module struct {
	handler     *handler.Handler
	service     *service.Service
	technicians *cache.TechnicianCache
}

// NewModule wires the Postgres accessors, both caches and the dispatcher.
// totalsStore decides where computed totals live; pass a Redis store to
// share them across replicas.
func NewModule(pool *pgxpool.Pool, bus events.Bus, totalsStore cache.TotalsStore, cfg config.RoutingConfig, val *validator.Validator, log *logger.Logger) *Module {
	return newModule(repository.New(pool), bus, totalsStore, cfg, val, log)
}

func newModule(store repository.Accessors, bus events.Bus, totalsStore cache.TotalsStore, cfg config.RoutingConfig, val *validator.Validator, log *logger.Logger) *Module {
	technicians := cache.NewTechnicianCache(store)
	totals := cache.NewTotalsCache(totalsStore, cfg.GetTotalsCacheTTL(), log)
	svc := service.New(store, technicians, totals, bus, cfg.GetPhoneDefaultRegion(), log)

	return &Module{
		handler:     handler.New(svc, val, log),
		service:     svc,
		technicians: technicians,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "routing"
}

// Service returns the dispatcher for the scheduler and other callers.
func (m *Module) Service() *service.Service {
	return m.service
}

// Warm preloads technician names so the first department view is fast.
func (m *Module) Warm(ctx context.Context) error {
	return m.technicians.Warm(ctx)
}

// RegisterRoutes mounts routing routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/pipelines", m.handler.ListPipelines)
	ctx.Protected.GET("/pipelines/:id/work-units", m.handler.ListWorkUnits)

	adminGroup := ctx.Admin.Group("/routing")
	adminGroup.POST("/cache/invalidate", m.handler.InvalidateCache)
}

// RegisterHandlers subscribes the cache invalidation handlers.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.RoutingRecordMoved{}.EventName(), m)
	bus.Subscribe(events.RoutingRecordsCreated{}.EventName(), m)
	bus.Subscribe(events.WorkUnitDataChanged{}.EventName(), m)
	bus.Subscribe(events.TechnicianUpdated{}.EventName(), m)
}

// Handle routes events to the dispatcher.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	return m.service.Handle(ctx, event)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
