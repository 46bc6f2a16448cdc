package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/accessdesk/internal/app"
	"github.com/charlesng35/accessdesk/internal/handlers"
	"github.com/charlesng35/accessdesk/internal/middleware"
)

// NewRouter builds the Gin engine, wires middleware and registers the tool gateway.
func NewRouter(c *app.Components, cfg *app.Config) (*gin.Engine, error) {
	if c == nil || c.DB == nil {
		return nil, fmt.Errorf("components must be provided")
	}
	if c.Tokens == nil || c.Checker == nil {
		return nil, fmt.Errorf("token service and permission checker must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.Origins...))
	r.Use(middleware.RateLimit(cfg.Server.RateLimit.RPS, cfg.Server.RateLimit.Burst))

	// Public
	r.GET("/health", handlers.Health(c.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	registerIdentityRoutes(r.Group("/api"), handlers.NewIdentityHandler(c.Identities))

	// Authenticated
	requireAuth := middleware.Auth(c.Tokens)
	api := r.Group("/api")
	api.Use(requireAuth)

	registerAccessRoutes(api, handlers.NewAccessHandler(c.Access), c)
	registerTrainingRoutes(api, handlers.NewTrainingHandler(c.Access), c)
	registerApprovalRoutes(api, handlers.NewApprovalHandler(c.Access), c)
	registerNetworkRoutes(api, handlers.NewNetworkHandler(c.Whitelist), c)
	registerAPIKeyRoutes(api, handlers.NewAPIKeyHandler(c.APIKeys), c)
	registerAuditRoutes(api, handlers.NewAuditHandler(c.Audit), c)
	registerNotificationRoutes(api, handlers.NewNotificationHandler(c.Notifications), c)

	realtimeHandler := handlers.NewRealtimeHandler(c.Hub)
	r.GET("/ws", requireAuth, realtimeHandler.Stream)
	r.GET("/ws/:stream", requireAuth, realtimeHandler.Stream)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
