package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/handlers"
)

func registerIdentityRoutes(api *gin.RouterGroup, handler *handlers.IdentityHandler) {
	group := api.Group("/identities")
	{
		group.GET("", handler.List)
		group.POST("/select", handler.Select)
	}
}
