package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	playground "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"pipeline_routing_backend/internal/routing/domain"
	"pipeline_routing_backend/internal/routing/service"
	"pipeline_routing_backend/internal/routing/transport"
	"pipeline_routing_backend/platform/httpkit"
	"pipeline_routing_backend/platform/logger"
	"pipeline_routing_backend/platform/validator"
)

// Handler handles HTTP requests for pipeline routing.
type Handler struct {
	svc *service.Service
	val *validator.Validator
	log *logger.Logger
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid pipeline ID"
)

// New creates a new routing handler and registers the routing validation tags on val.
func New(svc *service.Service, val *validator.Validator, log *logger.Logger) *Handler {
	if err := val.RegisterValidation("cache_scope", validCacheScope); err != nil {
		log.Error("register cache_scope validation", slog.String("error", err.Error()))
	}
	return &Handler{svc: svc, val: val, log: log}
}

func validCacheScope(fl playground.FieldLevel) bool {
	return service.Scope(fl.Field().String()).Valid()
}

// ListPipelines lists every pipeline with its kind and stages.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(c *gin.Context) {
	views, err := h.svc.ListPipelines(c.Request.Context())
	if httpkit.HandleError(c, err, h.log) {
		return
	}

	items := make([]transport.PipelineResponse, 0, len(views))
	for _, v := range views {
		stages := make([]transport.StageResponse, 0, len(v.Stages))
		for _, s := range v.Stages {
			stages = append(stages, transport.StageResponse{ID: s.ID, Name: s.Name, Position: s.Position})
		}
		items = append(items, transport.PipelineResponse{
			ID:           v.Pipeline.ID,
			Name:         v.Pipeline.Name,
			Kind:         string(v.Kind),
			IsDepartment: v.Kind == domain.KindDepartment,
			IsFrontDesk:  v.Kind == domain.KindFrontDesk,
			Stages:       stages,
		})
	}
	httpkit.OK(c, transport.PipelineListResponse{Items: items})
}

// ListWorkUnits routes one pipeline for the calling user.
// GET /api/v1/pipelines/:id/work-units
func (h *Handler) ListWorkUnits(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	rawReadOnly := c.Query("readOnly")
	if err := h.val.Var(rawReadOnly, "omitempty,boolean"); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, "readOnly must be a boolean")
		return
	}
	readOnly, _ := strconv.ParseBool(rawReadOnly)
	identity, ok := httpkit.RequireIdentity(c)
	if !ok {
		return
	}

	res, err := h.svc.RouteWithOptions(c.Request.Context(), id, actorOf(identity), service.Options{ReadOnly: readOnly})
	if httpkit.HandleError(c, err, h.log) {
		return
	}

	writes, failed := transport.WriteCounts(res.Outcomes)
	httpkit.OK(c, transport.WorkUnitListResponse{
		PipelineID:    res.Pipeline.ID,
		Strategy:      res.Strategy,
		Items:         transport.ToWorkUnitResponses(res.Units),
		Writes:        writes,
		FailedWrites:  failed,
		PendingWrites: len(res.Pending),
	})
}

// InvalidateCache drops routing caches (admin only).
// POST /api/v1/admin/routing/cache/invalidate
func (h *Handler) InvalidateCache(c *gin.Context) {
	var req transport.InvalidateCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if err := h.svc.InvalidateCache(c.Request.Context(), service.Scope(req.Scope), req.IDs...); httpkit.HandleError(c, err, h.log) {
		return
	}
	httpkit.OK(c, transport.InvalidateCacheResponse{Scope: req.Scope, IDs: len(req.IDs)})
}

func actorOf(identity httpkit.Identity) domain.Actor {
	return domain.Actor{ID: identity.UserID, Roles: identity.Roles}
}
