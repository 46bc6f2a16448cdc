package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/app"
	"github.com/charlesng35/accessdesk/internal/handlers"
	"github.com/charlesng35/accessdesk/internal/middleware"
	"github.com/charlesng35/accessdesk/internal/permissions"
)

func registerAccessRoutes(api *gin.RouterGroup, handler *handlers.AccessHandler, c *app.Components) {
	group := api.Group("/access")
	{
		group.GET("", middleware.RequirePermission(c.Checker, permissions.AccessView), handler.Check)
		group.GET("/policies", middleware.RequirePermission(c.Checker, permissions.AccessView), handler.Policies)
		group.GET("/requests", middleware.RequirePermission(c.Checker, permissions.AccessView), handler.History)
		group.POST("/requests", middleware.RequirePermission(c.Checker, permissions.AccessRequest), handler.Request)
		group.POST("/grants/:id/revoke", middleware.RequirePermission(c.Checker, permissions.AccessRevoke), handler.Revoke)
	}
}

func registerTrainingRoutes(api *gin.RouterGroup, handler *handlers.TrainingHandler, c *app.Components) {
	group := api.Group("/training")
	{
		group.GET("/status", middleware.RequirePermission(c.Checker, permissions.TrainingView), handler.Status)
		group.POST("/records", middleware.RequirePermission(c.Checker, permissions.TrainingRecord), handler.Record)
	}
}

func registerApprovalRoutes(api *gin.RouterGroup, handler *handlers.ApprovalHandler, c *app.Components) {
	group := api.Group("/approvals")
	{
		group.GET("/pending", middleware.RequirePermission(c.Checker, permissions.ApprovalView), handler.Pending)
		group.POST("/:id/resolve", middleware.RequirePermission(c.Checker, permissions.ApprovalResolve), handler.Resolve)
	}
}
