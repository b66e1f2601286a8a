// Package sequences wires the nurture-sequence module: matching, enrollment,
// scheduling and tracked delivery.
package sequences

import (
	"time"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/sequences/handler"
	"leadflow_backend/internal/sequences/repository"
	"leadflow_backend/internal/sequences/service"
	"leadflow_backend/internal/sequences/sweeper"
	"leadflow_backend/internal/sequences/tracker"
	"leadflow_backend/platform/ident"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config carries the delivery knobs the module needs.
type Config interface {
	GetMaxSendAttempts() int
	GetSendTimeout() time.Duration
}

// Module bundles the sequences components for wiring in main.
type Module struct {
	Service *service.Service
	Handler *handler.Handler
	Sweeper *sweeper.Sweeper
}

// New assembles the sequences module.
func New(pool *pgxpool.Pool, bus events.Bus, sender email.Sender, cfg Config, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, ident.NewRandom(), log)
	trk := tracker.New(repo, cfg.GetMaxSendAttempts(), log)
	sw := sweeper.New(repo, trk, sender, bus, cfg.GetSendTimeout(), log)

	return &Module{
		Service: svc,
		Handler: handler.New(svc, sw, log),
		Sweeper: sw,
	}
}

// RegisterRoutes mounts the module's HTTP endpoints.
func (m *Module) RegisterRoutes(rg *gin.RouterGroup) {
	m.Handler.RegisterRoutes(rg)
}
