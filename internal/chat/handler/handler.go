// Package handler exposes the chat HTTP API, including the SSE stream.
package handler

import (
	"io"
	"net/http"
	"strconv"

	"leadflow_backend/internal/chat/coordinator"
	"leadflow_backend/internal/chat/realtime"
	"leadflow_backend/internal/chat/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	coord       *coordinator.Coordinator
	broadcaster realtime.Broadcaster
	log         *logger.Logger
}

func New(coord *coordinator.Coordinator, bc realtime.Broadcaster, log *logger.Logger) *Handler {
	return &Handler{coord: coord, broadcaster: bc, log: log}
}

// RegisterRoutes mounts the chat endpoints under the given group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	chat := rg.Group("/chat")
	{
		chat.POST("/rooms", h.openRoom)
		chat.GET("/rooms/:id", h.getRoom)
		chat.POST("/rooms/:id/messages", h.sendMessage)
		chat.GET("/rooms/:id/messages", h.listMessages)
		chat.POST("/rooms/:id/escalate", h.escalate)
		chat.POST("/rooms/:id/takeover", h.takeOver)
		chat.POST("/rooms/:id/operator-messages", h.sendOperatorMessage)
		chat.POST("/rooms/:id/close", h.closeRoom)
		chat.GET("/rooms/:id/stream", h.stream)
		chat.GET("/escalated", h.listEscalated)
	}
}

func (h *Handler) openRoom(c *gin.Context) {
	var req transport.OpenRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	room, err := h.coord.OpenRoom(c.Request.Context(), req.VisitorID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToRoomResponse(room))
}

func (h *Handler) getRoom(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	room, err := h.coord.GetRoom(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToRoomResponse(room))
}

func (h *Handler) sendMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	msg, err := h.coord.HandleInbound(c.Request.Context(), id, req.SenderID, req.Content)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToMessageResponse(msg))
}

func (h *Handler) listMessages(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	limit := 200
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	messages, err := h.coord.Messages(c.Request.Context(), id, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.MessageResponse, 0, len(messages))
	for _, msg := range messages {
		out = append(out, transport.ToMessageResponse(msg))
	}
	httpkit.OK(c, gin.H{"messages": out})
}

func (h *Handler) escalate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.coord.Escalate(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "escalated"})
}

func (h *Handler) takeOver(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.TakeOverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := h.coord.TakeOver(c.Request.Context(), id, req.OperatorID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "operator_active"})
}

func (h *Handler) sendOperatorMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	msg, err := h.coord.SendOperatorMessage(c.Request.Context(), id, req.SenderID, req.Content)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToMessageResponse(msg))
}

func (h *Handler) closeRoom(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.coord.Close(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"status": "closed"})
}

func (h *Handler) listEscalated(c *gin.Context) {
	rooms, err := h.coord.ListEscalated(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, transport.ToRoomResponse(room))
	}
	httpkit.OK(c, gin.H{"rooms": out})
}

// stream pushes the room's new messages as server-sent events until the
// client disconnects.
func (h *Handler) stream(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := h.coord.GetRoom(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	if h.broadcaster == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "live streaming is not enabled", nil)
		return
	}

	ch, cancel, err := h.broadcaster.Subscribe(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case msg, open := <-ch:
			if !open {
				return false
			}
			c.SSEvent("message", transport.ToMessageResponse(msg))
			return true
		}
	})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid room id", nil)
		return uuid.Nil, false
	}
	return id, true
}
