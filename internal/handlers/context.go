package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/middleware"
	"github.com/charlesng35/accessdesk/pkg/errors"
	"github.com/charlesng35/accessdesk/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentEmail returns the authenticated employee's email. When the caller is
// anonymous it writes a 401 and returns false.
func currentEmail(c *gin.Context) (string, bool) {
	email := strings.TrimSpace(c.GetString(middleware.CtxEmailKey))
	if email == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return email, true
}
