package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/accessdesk/internal/database"
	"github.com/charlesng35/accessdesk/pkg/errors"
	"github.com/charlesng35/accessdesk/pkg/response"
)

const healthPingTimeout = 2 * time.Second

// Health reports liveness and pings the database.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(requestContext(c), healthPingTimeout)
		defer cancel()

		if err := database.Ping(ctx, db); err != nil {
			response.Error(c, errors.ErrStoreUnavailable.WithMessage("database unavailable: %v", err))
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "database": "ok"})
	}
}
