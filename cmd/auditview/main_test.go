package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/database/testutil"
	"github.com/charlesng35/accessdesk/internal/store"
)

func newReader(t *testing.T) *audit.Reader {
	t.Helper()
	color.NoColor = true

	stores := store.New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	rec, err := audit.NewRecorder(stores.AuditEvents)
	require.NoError(t, err)

	ctx := context.Background()
	for _, ev := range []audit.Event{
		{Type: audit.EventAccessDenied, UserEmail: "frank.intern@company.com", Action: "request_access", Result: audit.ResultFailure, ResourceType: "database", ResourceName: "staging_db", Description: "conditions not met"},
		{Type: audit.EventAccessAutoGranted, UserEmail: "eve@company.com", Action: "request_access", ResourceType: "saas", ResourceName: "figma"},
		{Type: audit.EventIPWhitelisted, Severity: audit.SeverityMedium, UserEmail: "eve@company.com", Action: "whitelist_ip"},
	} {
		_, err := rec.Record(ctx, ev)
		require.NoError(t, err)
	}
	return audit.NewReader(stores.AuditEvents)
}

func TestEventsCommandFilters(t *testing.T) {
	reader := newReader(t)
	var out bytes.Buffer

	err := dispatch(context.Background(), reader, "events", []string{"-user", "eve@company.com", "-resource", "saas:figma"}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "1 of 1 events")
	require.Contains(t, out.String(), "ACCESS_AUTO_GRANTED")
	require.NotContains(t, out.String(), "frank.intern")

	out.Reset()
	err = dispatch(context.Background(), reader, "events", []string{"-severity", "bogus"}, &out)
	require.ErrorContains(t, err, "unknown severity")
}

func TestSummaryCommand(t *testing.T) {
	reader := newReader(t)
	var out bytes.Buffer

	require.NoError(t, dispatch(context.Background(), reader, "summary", []string{"-days", "1"}, &out))
	require.Contains(t, out.String(), "events 3")
	require.Contains(t, out.String(), "failures 1")
	require.Contains(t, out.String(), "eve@company.com")
}

func TestExportCommandWritesNDJSON(t *testing.T) {
	reader := newReader(t)
	var out bytes.Buffer

	require.NoError(t, dispatch(context.Background(), reader, "export", []string{"-type", "ip_whitelisted"}, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	require.Equal(t, "IP_WHITELISTED", ev["event_type"])
}

func TestUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := dispatch(context.Background(), newReader(t), "purge", nil, &out)
	require.ErrorContains(t, err, "unknown command")
	require.Contains(t, out.String(), "usage:")
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2026-03-01")
	require.NoError(t, err)
	require.Equal(t, 2026, got.Year())

	_, err = parseDate("March")
	require.Error(t, err)
}
