package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/accessdesk/internal/database/testutil"
	"github.com/charlesng35/accessdesk/internal/permissions"
)

func TestRequirePermissionWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// The checker is never reached without an authenticated email.
	r := gin.New()
	r.GET("/secure", RequirePermission(&permissions.Checker{}, permissions.AuditView), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermissionByRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	checker, err := permissions.NewChecker(testutil.MustOpenTestDB(t, testutil.WithSeedData()))
	require.NoError(t, err)

	r := gin.New()
	r.GET("/audit", func(c *gin.Context) {
		c.Set(CtxEmailKey, c.Query("as"))
		c.Next()
	}, RequirePermission(checker, permissions.AuditView), func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := map[string]int{
		"dave@company.com":  http.StatusOK,
		"carol@company.com": http.StatusOK,
		"eve@company.com":   http.StatusForbidden,
		"ghost@company.com": http.StatusForbidden,
	}
	for email, want := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/audit?as="+email, nil)
		r.ServeHTTP(w, req)
		require.Equal(t, want, w.Code, email)
	}
}
