// Package http assembles the gin engine shared by every HTTP-facing binary.
package http

import (
	"context"
	"net/http"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"
)

// Module is anything that mounts routes under the API group.
type Module interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// NewRouter builds the engine with the shared middleware stack and mounts
// every module under /api.
func NewRouter(cfg config.HTTPConfig, pool *pgxpool.Pool, log *logger.Logger, modules ...Module) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpkit.RequestLogger(log))
	r.Use(httpkit.SecurityHeaders())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.GetCORSOrigins()
	}
	r.Use(cors.New(corsCfg))

	limiter := httpkit.NewIPRateLimiter(rate.Limit(20), 40, log)
	r.Use(limiter.RateLimit())

	r.GET("/api/health", healthCheck(pool))

	api := r.Group("/api")
	for _, m := range modules {
		m.RegisterRoutes(api)
	}
	return r
}

func healthCheck(pool *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
