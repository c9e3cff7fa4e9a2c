package http

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/route"

	"github.com/Zereker/vectorstore/internal/domain"
	"github.com/Zereker/vectorstore/internal/service"
	"github.com/Zereker/vectorstore/pkg/log"
	"github.com/Zereker/vectorstore/pkg/vector"
)

// Handler handles HTTP API requests
type Handler struct {
	logger  *slog.Logger
	service *service.Service
}

// NewHandler creates a new HTTP handler
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		logger:  log.Logger("http.handler"),
		service: svc,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(r route.IRoutes) {
	r.GET("/health", h.Health)
	r.GET("/api/v1/health", h.Health)
	r.GET("/api/v1/info", h.Info)
	r.GET("/api/v1/stats", h.Stats)

	// Index operations
	r.POST("/api/v1/indexes", h.CreateIndex)
	r.GET("/api/v1/indexes", h.ListIndexes)
	r.GET("/api/v1/indexes/:name", h.DescribeIndex)
	r.DELETE("/api/v1/indexes/:name", h.DeleteIndex)

	// Document operations
	r.POST("/api/v1/indexes/:name/documents", h.Upsert)
	r.POST("/api/v1/indexes/:name/documents/get", h.GetDocuments)
	r.POST("/api/v1/indexes/:name/documents/delete", h.DeleteDocuments)
	r.PUT("/api/v1/indexes/:name/documents/:id", h.UpdateDocument)
	r.POST("/api/v1/indexes/:name/search", h.Search)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind vector.Kind) int {
	switch kind {
	case vector.KindIndexNotFound, vector.KindDocumentNotFound:
		return consts.StatusNotFound
	case vector.KindIndexAlreadyExists:
		return consts.StatusConflict
	case vector.KindDimensionMismatch, vector.KindInvalidVector, vector.KindInvalidFilter, vector.KindInvalidConfig:
		return consts.StatusBadRequest
	case vector.KindResourceLimitExceeded:
		return consts.StatusInsufficientStorage
	case vector.KindRateLimited:
		return consts.StatusTooManyRequests
	case vector.KindAuthenticationFailed:
		return consts.StatusUnauthorized
	case vector.KindPermissionDenied:
		return consts.StatusForbidden
	case vector.KindTimeout:
		return consts.StatusGatewayTimeout
	case vector.KindConnectionFailed:
		return consts.StatusServiceUnavailable
	default:
		return consts.StatusInternalServerError
	}
}

// CreateIndex handles POST /api/v1/indexes
func (h *Handler) CreateIndex(c context.Context, ctx *app.RequestContext) {
	var req domain.CreateIndexRequest
	if !h.bind(ctx, &req) {
		return
	}

	if err := h.service.CreateIndex(c, &req); err != nil {
		h.fail(ctx, "create index", err)
		return
	}

	h.writeJSON(ctx, consts.StatusCreated, map[string]string{"name": req.Name})
}

// ListIndexes handles GET /api/v1/indexes
func (h *Handler) ListIndexes(c context.Context, ctx *app.RequestContext) {
	names, err := h.service.ListIndexes(c)
	if err != nil {
		h.fail(ctx, "list indexes", err)
		return
	}
	h.writeJSON(ctx, consts.StatusOK, names)
}

// DescribeIndex handles GET /api/v1/indexes/:name
func (h *Handler) DescribeIndex(c context.Context, ctx *app.RequestContext) {
	info, err := h.service.DescribeIndex(c, ctx.Param("name"))
	if err != nil {
		h.fail(ctx, "describe index", err)
		return
	}
	h.writeJSON(ctx, consts.StatusOK, info)
}

// DeleteIndex handles DELETE /api/v1/indexes/:name
func (h *Handler) DeleteIndex(c context.Context, ctx *app.RequestContext) {
	name := ctx.Param("name")
	if err := h.service.DeleteIndex(c, name); err != nil {
		h.fail(ctx, "delete index", err)
		return
	}
	h.writeJSON(ctx, consts.StatusOK, map[string]string{"deleted": name})
}

// Upsert handles POST /api/v1/indexes/:name/documents. With ?async=true the
// write is published to Kafka and answered with 202.
func (h *Handler) Upsert(c context.Context, ctx *app.RequestContext) {
	var req domain.UpsertRequest
	if !h.bind(ctx, &req) {
		return
	}

	async, _ := strconv.ParseBool(ctx.Query("async"))
	index := ctx.Param("name")

	if async {
		resp, err := h.service.UpsertAsync(c, index, req.Documents)
		if err != nil {
			h.fail(ctx, "async upsert", err)
			return
		}
		h.writeJSON(ctx, consts.StatusAccepted, resp)
		return
	}

	resp, err := h.service.Upsert(c, index, req.Documents)
	if err != nil {
		h.fail(ctx, "upsert", err)
		return
	}
	h.writeJSON(ctx, consts.StatusOK, resp)
}

// GetDocuments handles POST /api/v1/indexes/:name/documents/get
func (h *Handler) GetDocuments(c context.Context, ctx *app.RequestContext) {
	var req domain.GetDocumentsRequest
	if !h.bind(ctx, &req) {
		return
	}

	docs, err := h.service.GetDocuments(c, ctx.Param("name"), req.IDs, req.IncludeVectors)
	if err != nil {
		h.fail(ctx, "get documents", err)
		return
	}
	if docs == nil {
		docs = []vector.Document{}
	}
	h.writeJSON(ctx, consts.StatusOK, docs)
}

// DeleteDocuments handles POST /api/v1/indexes/:name/documents/delete.
// Missing ids are skipped, so the reply echoes the requested count only.
func (h *Handler) DeleteDocuments(c context.Context, ctx *app.RequestContext) {
	var req domain.DeleteDocumentsRequest
	if !h.bind(ctx, &req) {
		return
	}

	if err := h.service.DeleteDocuments(c, ctx.Param("name"), req.IDs); err != nil {
		h.fail(ctx, "delete documents", err)
		return
	}
	h.writeJSON(ctx, consts.StatusOK, map[string]int{"requested": len(req.IDs)})
}

// UpdateDocument handles PUT /api/v1/indexes/:name/documents/:id
func (h *Handler) UpdateDocument(c context.Context, ctx *app.RequestContext) {
	var req domain.UpdateDocumentRequest
	if !h.bind(ctx, &req) {
		return
	}

	id := ctx.Param("id")
	if err := h.service.UpdateDocument(c, ctx.Param("name"), req.Document(id)); err != nil {
		h.fail(ctx, "update document", err)
		return
	}
	h.writeJSON(ctx, consts.StatusOK, map[string]string{"updated": id})
}

// Search handles POST /api/v1/indexes/:name/search
func (h *Handler) Search(c context.Context, ctx *app.RequestContext) {
	var req vector.SearchRequest
	if !h.bind(ctx, &req) {
		return
	}
	req.Index = ctx.Param("name")

	resp, err := h.service.Search(c, req)
	if err != nil {
		h.fail(ctx, "search", err)
		return
	}
	h.writeJSON(ctx, consts.StatusOK, resp)
}

// Health handles GET /health
func (h *Handler) Health(c context.Context, ctx *app.RequestContext) {
	if err := h.service.HealthCheck(c); err != nil {
		h.writeJSON(ctx, consts.StatusServiceUnavailable, Response{
			Success: false,
			Data:    map[string]string{"status": "unhealthy"},
			Error:   err.Error(),
			Kind:    vector.KindOf(err).String(),
		})
		return
	}
	h.writeJSON(ctx, consts.StatusOK, map[string]string{"status": "healthy"})
}

// Info handles GET /api/v1/info
func (h *Handler) Info(c context.Context, ctx *app.RequestContext) {
	h.writeJSON(ctx, consts.StatusOK, h.service.BackendInfo())
}

// Stats handles GET /api/v1/stats
func (h *Handler) Stats(c context.Context, ctx *app.RequestContext) {
	h.writeJSON(ctx, consts.StatusOK, h.service.Stats())
}

func (h *Handler) bind(ctx *app.RequestContext, obj any) bool {
	if err := ctx.BindJSON(obj); err != nil {
		h.writeError(ctx, consts.StatusBadRequest, "invalid request body: "+err.Error(), "")
		return false
	}
	return true
}

func (h *Handler) fail(ctx *app.RequestContext, op string, err error) {
	kind := vector.KindOf(err)
	status := statusFor(kind)
	if status >= consts.StatusInternalServerError {
		h.logger.Error(op+" failed", "path", string(ctx.Path()), "kind", kind, "error", err)
	} else {
		h.logger.Debug(op+" rejected", "path", string(ctx.Path()), "kind", kind, "error", err)
	}
	h.writeError(ctx, status, err.Error(), kind.String())
}

// writeJSON wraps data in a successful envelope unless it already is one.
func (h *Handler) writeJSON(ctx *app.RequestContext, status int, data any) {
	if resp, ok := data.(Response); ok {
		ctx.JSON(status, resp)
		return
	}
	ctx.JSON(status, Response{Success: true, Data: data})
}

func (h *Handler) writeError(ctx *app.RequestContext, status int, message, kind string) {
	ctx.JSON(status, Response{
		Success: false,
		Error:   message,
		Kind:    kind,
	})
}
