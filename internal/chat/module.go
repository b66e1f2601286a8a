// Package chat wires the visitor chat module: automated replies, escalation
// and live streaming.
package chat

import (
	"context"

	"leadflow_backend/internal/chat/coordinator"
	"leadflow_backend/internal/chat/handler"
	"leadflow_backend/internal/chat/realtime"
	"leadflow_backend/internal/chat/repository"
	"leadflow_backend/internal/chat/responder"
	"leadflow_backend/internal/events"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/ident"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Module bundles the chat components for wiring in main.
type Module struct {
	Coordinator *coordinator.Coordinator
	Handler     *handler.Handler
}

// New assembles the chat module. The responder is enabled only when an API
// key is configured; without it rooms escalate straight to operators.
func New(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client, bus events.Bus, cfg config.ResponderConfig, log *logger.Logger) (*Module, error) {
	repo := repository.New(pool)

	var rsp responder.Responder
	if cfg.IsResponderEnabled() {
		gemini, err := responder.NewGemini(ctx, cfg.GetGeminiAPIKey(), cfg.GetResponderModel(), cfg.GetResponderTimeout(), log)
		if err != nil {
			return nil, err
		}
		rsp = gemini
	} else {
		log.Warn("automated responder disabled, rooms will escalate to operators")
	}

	var bc realtime.Broadcaster
	if rdb != nil {
		bc = realtime.NewRedis(rdb, log)
	}

	coord := coordinator.New(repo, rsp, bc, bus, ident.NewRandom(), log)
	return &Module{
		Coordinator: coord,
		Handler:     handler.New(coord, bc, log),
	}, nil
}

// RegisterRoutes mounts the module's HTTP endpoints.
func (m *Module) RegisterRoutes(rg *gin.RouterGroup) {
	m.Handler.RegisterRoutes(rg)
}
