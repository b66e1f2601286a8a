// Package leads wires the lead intake, scoring and lifecycle module.
package leads

import (
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/handler"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/scoring"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/platform/ident"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module bundles the leads components for wiring in main.
type Module struct {
	Service *service.Service
	Handler *handler.Handler
}

// New assembles the leads module.
func New(pool *pgxpool.Pool, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	engine := scoring.NewDefault()
	svc := service.New(repo, engine, bus, ident.NewRandom(), validator.New(), log)

	return &Module{
		Service: svc,
		Handler: handler.New(svc, log),
	}
}

// RegisterRoutes mounts the module's HTTP endpoints.
func (m *Module) RegisterRoutes(rg *gin.RouterGroup) {
	m.Handler.RegisterRoutes(rg)
}
