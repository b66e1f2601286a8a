// Package handler exposes the leads HTTP API.
package handler

import (
	"net/http"
	"strconv"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc *service.Service
	log *logger.Logger
}

func New(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// RegisterRoutes mounts the leads endpoints under the given group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	leads := rg.Group("/leads")
	{
		leads.POST("", h.create)
		leads.GET("", h.list)
		leads.GET("/:id", h.get)
		leads.GET("/:id/score", h.scoreBreakdown)
		leads.PATCH("/:id/attributes", h.updateAttributes)
		leads.PATCH("/:id/status", h.updateStatus)
	}
}

func (h *Handler) create(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	lead, err := h.svc.Create(c.Request.Context(), req.Email, req.Phone, req.FirstName, req.LastName, req.Attributes.ToDomain())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, h.toResponse(lead))
}

func (h *Handler) list(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	leads, err := h.svc.List(c.Request.Context(), limit)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.LeadResponse, 0, len(leads))
	for _, lead := range leads {
		out = append(out, h.toResponse(lead))
	}
	httpkit.OK(c, gin.H{"leads": out})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, h.toResponse(lead))
}

func (h *Handler) scoreBreakdown(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.svc.ScoreBreakdown(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ScoreBreakdownResponse{
		Score:    result.Score,
		Priority: string(h.svc.Engine().PriorityFor(result.Score)),
		Factors:  result.Factors,
	})
}

func (h *Handler) updateAttributes(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.UpdateAttributesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	lead, err := h.svc.UpdateAttributes(c.Request.Context(), id, req.Attributes.ToDomain())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, h.toResponse(lead))
}

func (h *Handler) updateStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	lead, err := h.svc.UpdateStatus(c.Request.Context(), id, domain.Status(req.Status))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, h.toResponse(lead))
}

func (h *Handler) toResponse(lead domain.Lead) transport.LeadResponse {
	action := h.svc.Engine().RecommendedAction(lead.Score)
	return transport.LeadResponse{
		ID:                lead.ID,
		Email:             lead.Email,
		Phone:             lead.Phone,
		FirstName:         lead.FirstName,
		LastName:          lead.LastName,
		Status:            string(lead.Status),
		Score:             lead.Score,
		Priority:          string(h.svc.Engine().PriorityFor(lead.Score)),
		RecommendedAction: action.Text,
		ActionSLA:         action.SLA,
		Attributes: transport.AttributesRequest{
			CompanySize:        lead.Attributes.CompanySize,
			Industry:           lead.Attributes.Industry,
			ConsultationType:   lead.Attributes.ConsultationType,
			ProductsInterested: lead.Attributes.ProductsInterested,
		},
		CreatedAt: lead.CreatedAt,
		UpdatedAt: lead.UpdatedAt,
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return uuid.Nil, false
	}
	return id, true
}
