package server

import (
	"net/http"

	"neuromail-go/internal/config"
	"neuromail-go/internal/credential"
	"neuromail-go/internal/feed"
	"neuromail-go/internal/handlers/mailapi"
	"neuromail-go/internal/handlers/management"
	"neuromail-go/internal/mailbox"
	"neuromail-go/internal/settings"
	"neuromail-go/internal/storage"

	"github.com/gin-gonic/gin"
)

// Dependencies encapsulates runtime services required to build the HTTP engine.
type Dependencies struct {
	Pool     *credential.Pool
	Settings *settings.Manager
	Mailbox  *mailbox.Service
	Feed     *feed.Broadcaster
	Storage  storage.Backend
	// GetConfig returns the live configuration; nil pins the one passed to BuildEngine.
	GetConfig func() *config.Config
}

// BuildEngine constructs the gin engine serving the mail API under /api and
// the management API under /admin, both below the configured base path.
func BuildEngine(cfg *config.Config, deps Dependencies) *gin.Engine {
	getConfig := deps.GetConfig
	if getConfig == nil {
		getConfig = func() *config.Config { return cfg }
	}

	engine := gin.New()
	applyStandardEngineSettings(engine, cfg)

	basePath := cfg.Server.BasePath
	root := engine.Group(basePath)
	registerOps(root, deps.Storage)

	if deps.Mailbox != nil {
		api := root.Group("/api")
		mailapi.New(deps.Mailbox, deps.Feed, cfg.Server.CORSOrigins).Register(api)
	}

	if deps.Pool != nil && deps.Settings != nil {
		admin := root.Group("/admin")
		admin.Use(managementRemoteGuard(getConfig), ManagementAuthMiddleware(getConfig))
		management.NewAdminAPIHandler(deps.Pool, deps.Settings, getConfig).RegisterRoutes(admin)
	}

	if basePath != "" {
		engine.GET(basePath, func(c *gin.Context) {
			c.Redirect(http.StatusTemporaryRedirect, joinBasePath(basePath, "/healthz"))
		})
	}
	return engine
}
