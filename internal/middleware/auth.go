package middleware

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/accessdesk/internal/auditctx"
	iauth "github.com/charlesng35/accessdesk/internal/auth"
	"github.com/charlesng35/accessdesk/pkg/errors"
	"github.com/charlesng35/accessdesk/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxEmailKey  = "userEmail"
	CtxRoleKey   = "userRole"

	// TokenQueryParam carries the token on websocket upgrades, where browsers
	// cannot set headers.
	TokenQueryParam = "token"
)

// Auth verifies the identity token and stores its claims on the context and
// the audit actor. Expired tokens get a distinct message so clients can
// re-select their identity.
func Auth(tokens *iauth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			unauthorized(c, errors.ErrUnauthorized)
			return
		}

		claims, err := tokens.Verify(token)
		if stderrors.Is(err, iauth.ErrTokenExpired) {
			unauthorized(c, errors.ErrUnauthorized.WithMessage("identity token expired, select an identity again"))
			return
		}
		if err != nil {
			unauthorized(c, errors.ErrUnauthorized)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxEmailKey, claims.Email)
		c.Set(CtxRoleKey, claims.Role)

		actor, _ := auditctx.FromContext(c.Request.Context())
		actor.Email = claims.Email
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), actor))

		c.Next()
	}
}

func unauthorized(c *gin.Context, err *errors.AppError) {
	c.Header("WWW-Authenticate", `Bearer realm="accessdesk"`)
	response.Error(c, err)
	c.Abort()
}

func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
		token := strings.TrimSpace(authz[7:])
		return token, token != ""
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		token := strings.TrimSpace(c.Query(TokenQueryParam))
		return token, token != ""
	}
	return "", false
}
