package server

import (
	"net/http"

	"neuromail-go/internal/config"
	mw "neuromail-go/internal/middleware"
	"neuromail-go/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// applyStandardEngineSettings installs the middleware chain shared by every route.
func applyStandardEngineSettings(engine *gin.Engine, cfg *config.Config) {
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	_ = engine.SetTrustedProxies([]string{})

	engine.Use(mw.Recovery(), mw.RequestID(), mw.Metrics())
	// 管理接口不返回 CORS 头
	engine.Use(mw.CORS(cfg.Server.CORSOrigins, joinBasePath(cfg.Server.BasePath, "/admin")))
	engine.Use(mw.RequestLogger())
	if cfg.RateLimit.Enabled {
		engine.Use(mw.RateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
}

// registerOps mounts health and metrics endpoints.
func registerOps(r gin.IRoutes, backend storage.Backend) {
	r.GET("/healthz", func(c *gin.Context) {
		if backend != nil {
			if err := backend.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "degraded",
					"storage": storage.DetectBackendLabel(backend),
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func joinBasePath(base, suffix string) string {
	if base == "" || base == "/" {
		return suffix
	}
	return base + suffix
}
