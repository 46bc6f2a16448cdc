package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/app"
	"github.com/charlesng35/accessdesk/internal/handlers"
	"github.com/charlesng35/accessdesk/internal/middleware"
	"github.com/charlesng35/accessdesk/internal/permissions"
)

func registerNetworkRoutes(api *gin.RouterGroup, handler *handlers.NetworkHandler, c *app.Components) {
	group := api.Group("/network")
	{
		group.GET("/whitelist", middleware.RequirePermission(c.Checker, permissions.NetworkWhitelist), handler.List)
		group.POST("/whitelist", middleware.RequirePermission(c.Checker, permissions.NetworkWhitelist), handler.Whitelist)
	}
}

func registerAPIKeyRoutes(api *gin.RouterGroup, handler *handlers.APIKeyHandler, c *app.Components) {
	group := api.Group("/api-keys")
	{
		group.GET("", middleware.RequirePermission(c.Checker, permissions.APIKeyIssue), handler.List)
		group.POST("", middleware.RequirePermission(c.Checker, permissions.APIKeyIssue), handler.Issue)
	}
}
