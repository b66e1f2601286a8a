// Package handler exposes the sequences HTTP API.
package handler

import (
	"context"
	"net/http"

	"leadflow_backend/internal/sequences/service"
	"leadflow_backend/internal/sequences/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Sweeper runs one pass over the active enrollments on demand. The scheduler
// normally drives sweeps; the endpoint exists for operators and development.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

type Handler struct {
	svc     *service.Service
	sweeper Sweeper
	log     *logger.Logger
}

func New(svc *service.Service, sweeper Sweeper, log *logger.Logger) *Handler {
	return &Handler{svc: svc, sweeper: sweeper, log: log}
}

// RegisterRoutes mounts the sequences endpoints under the given group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	sequences := rg.Group("/sequences")
	{
		sequences.POST("", h.create)
		sequences.GET("", h.list)
		sequences.POST("/sweep", h.sweep)
		sequences.GET("/:id", h.get)
		sequences.PATCH("/:id/active", h.setActive)
	}

	leads := rg.Group("/leads")
	{
		leads.GET("/:id/enrollment", h.enrollment)
		leads.GET("/:id/deliveries", h.deliveries)
	}
}

func (h *Handler) create(c *gin.Context) {
	var req transport.CreateSequenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	seq, err := h.svc.CreateSequence(c.Request.Context(), req.ToDomain())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToSequenceResponse(seq))
}

func (h *Handler) list(c *gin.Context) {
	sequences, err := h.svc.ListSequences(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.SequenceResponse, 0, len(sequences))
	for _, seq := range sequences {
		out = append(out, transport.ToSequenceResponse(seq))
	}
	httpkit.OK(c, gin.H{"sequences": out})
}

func (h *Handler) sweep(c *gin.Context) {
	if err := h.sweeper.Sweep(c.Request.Context()); err != nil {
		h.log.Error("manual sweep failed", "error", err)
		httpkit.Error(c, http.StatusInternalServerError, "sweep failed", nil)
		return
	}
	httpkit.OK(c, gin.H{"swept": true})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	seq, err := h.svc.GetSequence(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSequenceResponse(seq))
}

func (h *Handler) setActive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := h.svc.SetSequenceActive(c.Request.Context(), id, *req.Active); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"active": *req.Active})
}

func (h *Handler) enrollment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	e, err := h.svc.EnrollmentFor(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToEnrollmentResponse(e))
}

func (h *Handler) deliveries(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	records, err := h.svc.DeliveriesFor(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.DeliveryResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, transport.ToDeliveryResponse(rec))
	}
	httpkit.OK(c, gin.H{"deliveries": out})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}
