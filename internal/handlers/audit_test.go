package handlers_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/handlers/testutil"
)

func TestAuditRoutesRequireSecurityRole(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/api/audit/events", "/api/audit/summary", "/api/audit/export"} {
		w := env.As("eve@company.com", http.MethodGet, path, nil)
		require.Equal(t, http.StatusForbidden, w.Code, path)
	}
}

func TestAuditEventsFilterAndPage(t *testing.T) {
	env := testutil.NewEnv(t)

	requestAccess(t, env, "frank.intern@company.com", "database", "staging_db")
	requestAccess(t, env, "eve@company.com", "saas", "figma")

	w := env.As("dave@company.com", http.MethodGet, "/api/audit/events?event_type=access_denied", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.EqualValues(t, 1, resp.Meta.Total)
	var events []struct {
		EventType string `json:"event_type"`
		UserEmail string `json:"user_email"`
	}
	testutil.DecodeInto(t, resp.Data, &events)
	require.Len(t, events, 1)
	require.Equal(t, string(audit.EventAccessDenied), events[0].EventType)
	require.Equal(t, "frank.intern@company.com", events[0].UserEmail)

	w = env.As("dave@company.com", http.MethodGet, "/api/audit/events?user_email=eve@company.com&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = testutil.DecodeResponse(t, w)
	require.Equal(t, 1, resp.Meta.Limit)
	require.True(t, resp.Meta.HasMore)

	w = env.As("dave@company.com", http.MethodGet, "/api/audit/events?severity=catastrophic", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.As("dave@company.com", http.MethodGet, "/api/audit/events?since=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditSummary(t *testing.T) {
	env := testutil.NewEnv(t)
	requestAccess(t, env, "frank.intern@company.com", "database", "staging_db")

	w := env.As("dave@company.com", http.MethodGet, "/api/audit/summary?window_days=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary struct {
		WindowDays  int            `json:"window_days"`
		TotalEvents int            `json:"total_events"`
		Failures    int            `json:"failures"`
		ByEventType map[string]int `json:"by_event_type"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &summary)
	require.Equal(t, 1, summary.WindowDays)
	require.Positive(t, summary.TotalEvents)
	require.Equal(t, 1, summary.ByEventType[string(audit.EventAccessDenied)])
	require.GreaterOrEqual(t, summary.Failures, 1)
}

func TestAuditExportStreamsNDJSON(t *testing.T) {
	env := testutil.NewEnv(t)
	requestAccess(t, env, "eve@company.com", "saas", "figma")

	w := env.As("dave@company.com", http.MethodGet, "/api/audit/export?user_email=eve@company.com", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	require.Contains(t, w.Header().Get("Content-Disposition"), ".ndjson")

	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	lines := 0
	for scanner.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev), scanner.Text())
		require.Equal(t, "eve@company.com", ev["user_email"])
		lines++
	}
	require.NoError(t, scanner.Err())
	require.GreaterOrEqual(t, lines, 2)
}
