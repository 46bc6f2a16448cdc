package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/app"
	"github.com/charlesng35/accessdesk/internal/handlers"
	"github.com/charlesng35/accessdesk/internal/middleware"
	"github.com/charlesng35/accessdesk/internal/permissions"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler, c *app.Components) {
	group := api.Group("/notifications")
	{
		group.GET("", middleware.RequirePermission(c.Checker, permissions.NotificationView), handler.List)
		group.POST("/read-all", middleware.RequirePermission(c.Checker, permissions.NotificationView), handler.MarkAllRead)
		group.POST("/:id/read", middleware.RequirePermission(c.Checker, permissions.NotificationView), handler.MarkRead)
	}
}
