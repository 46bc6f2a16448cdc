package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/app"
	"github.com/charlesng35/accessdesk/internal/handlers"
	"github.com/charlesng35/accessdesk/internal/middleware"
	"github.com/charlesng35/accessdesk/internal/permissions"
)

func registerAuditRoutes(api *gin.RouterGroup, handler *handlers.AuditHandler, c *app.Components) {
	group := api.Group("/audit")
	{
		group.GET("/events", middleware.RequirePermission(c.Checker, permissions.AuditView), handler.Events)
		group.GET("/summary", middleware.RequirePermission(c.Checker, permissions.AuditView), handler.Summary)
		group.GET("/export", middleware.RequirePermission(c.Checker, permissions.AuditExport), handler.Export)
	}
}
