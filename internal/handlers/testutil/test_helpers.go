package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/accessdesk/internal/api"
	"github.com/charlesng35/accessdesk/internal/app"
	sharedtestutil "github.com/charlesng35/accessdesk/internal/database/testutil"
	"github.com/charlesng35/accessdesk/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Router     *gin.Engine
	Config     *app.Config
	Components *app.Components

	tokens map[string]string
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	cfg.Auth.JWT.Secret = "test-suite-super-secret-key-32-bytes!!"
	cfg.Auth.JWT.Issuer = "test-suite"
	cfg.Integrations.SimulatedLatency = 0
	cfg.Server.RateLimit.RPS = 1000
	cfg.Server.RateLimit.Burst = 1000

	components, err := app.NewComponents(context.Background(), db, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = components.Close() })

	router, err := api.NewRouter(components, cfg)
	require.NoError(t, err)

	return &Env{
		T:          t,
		DB:         db,
		Router:     router,
		Config:     cfg,
		Components: components,
		tokens:     make(map[string]string),
	}
}

// TokenFor selects the employee's identity and caches the issued token.
func (e *Env) TokenFor(email string) string {
	e.T.Helper()
	if token, ok := e.tokens[email]; ok {
		return token
	}

	w := e.Request(http.MethodPost, "/api/identities/select", map[string]string{"email": email}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var session struct {
		Token string `json:"token"`
	}
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &session)
	require.NotEmpty(e.T, session.Token)

	e.tokens[email] = session.Token
	return session.Token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// As issues a request authenticated as email.
func (e *Env) As(email, method, path string, body any) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.Request(method, path, body, e.TokenFor(email))
}
