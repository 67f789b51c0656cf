package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/api/handlers"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/api/ws"
	"github.com/abdurrahmankhairii/Enhancing-Operational-Safety-at-Fields-Pertamina/internal/auth"
)

type RouterConfig struct {
	APIKey      string
	CORSOrigins []string
	System      *handlers.SystemHandler
	Gate        *handlers.GateHandler
	Workers     *handlers.WorkerHandler
	CCTV        *handlers.CCTVHandler
	Logs        *handlers.LogHandler
	Hub         *ws.Hub
}

func corsConfig(origins []string) cors.Config {
	if len(origins) == 0 {
		cfg := cors.DefaultConfig()
		cfg.AllowAllOrigins = true
		cfg.AddAllowHeaders("X-API-Key")
		return cfg
	}
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	cfg.AddAllowHeaders("X-API-Key", "Authorization")
	return cfg
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	// System endpoints (no auth)
	r.GET("/healthz", cfg.System.Healthz)
	r.GET("/readyz", cfg.System.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	key := auth.APIKeyMiddleware(cfg.APIKey)

	// Gate sessions
	wsGroup := r.Group("/ws", key)
	wsGroup.GET("/dashboard", cfg.Gate.Dashboard)
	wsGroup.GET("/enroll", cfg.Gate.Enroll)

	// Compliance event feed
	r.GET("/v1/ws", key, cfg.Hub.HandleWS)

	api := r.Group("/api", key)

	api.GET("/workers", cfg.Workers.List)
	api.GET("/workers/:id", cfg.Workers.Get)
	api.PUT("/workers/:id", cfg.Workers.Update)
	api.DELETE("/workers/:id", cfg.Workers.Delete)

	api.GET("/cctv", cfg.CCTV.List)
	api.POST("/cctv", cfg.CCTV.Create)

	api.GET("/logs", cfg.Logs.List)
	api.GET("/logs/:id/snapshot", cfg.Logs.Snapshot)

	return r
}
