package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/models"
)

var (
	headerColor = color.New(color.Bold)
	dimColor    = color.New(color.Faint)
	failColor   = color.New(color.FgRed)

	severityColors = map[audit.Severity]*color.Color{
		audit.SeverityLow:      color.New(color.FgCyan),
		audit.SeverityMedium:   color.New(color.FgYellow),
		audit.SeverityHigh:     color.New(color.FgRed),
		audit.SeverityCritical: color.New(color.FgHiRed, color.Bold),
	}
)

func severityLabel(severity string) string {
	label := fmt.Sprintf("%-8s", severity)
	if c, ok := severityColors[audit.Severity(severity)]; ok {
		return c.Sprint(label)
	}
	return label
}

func renderEvents(w io.Writer, result audit.QueryResult) {
	headerColor.Fprintf(w, "%d of %d events\n", len(result.Events), result.Total)
	for _, ev := range result.Events {
		renderEvent(w, ev)
	}
	if result.HasMore {
		dimColor.Fprintf(w, "more: -offset %d\n", result.Offset+len(result.Events))
	}
}

func renderEvent(w io.Writer, ev models.AuditEvent) {
	resource := "-"
	if ev.ResourceType != nil && ev.ResourceName != nil {
		resource = *ev.ResourceType + ":" + *ev.ResourceName
	}
	result := ev.ActionResult
	if result == string(audit.ResultFailure) {
		result = failColor.Sprint(result)
	}
	fmt.Fprintf(w, "%s %s %-28s %-28s %-24s %s\n",
		dimColor.Sprint(ev.Timestamp.UTC().Format(time.RFC3339)),
		severityLabel(ev.Severity),
		ev.EventType,
		ev.UserEmail,
		resource,
		result,
	)
	if ev.Description != "" {
		fmt.Fprintf(w, "    %s\n", ev.Description)
	}
}

func renderSummary(w io.Writer, s audit.Summary) {
	headerColor.Fprintf(w, "Audit summary, last %d days (since %s)\n", s.WindowDays, s.Since.Format(time.DateOnly))
	fmt.Fprintf(w, "events %d  users %d  failures %s\n", s.TotalEvents, s.UniqueUsers, failColor.Sprint(s.Failures))

	headerColor.Fprintln(w, "\nBy severity")
	severities := audit.SeveritiesAtLeast(audit.SeverityLow)
	for i := len(severities) - 1; i >= 0; i-- {
		sev := severities[i]
		if n := s.BySeverity[string(sev)]; n > 0 {
			fmt.Fprintf(w, "  %s %d\n", severityLabel(string(sev)), n)
		}
	}

	headerColor.Fprintln(w, "\nBy event type")
	types := make([]string, 0, len(s.ByEventType))
	for t := range s.ByEventType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-30s %d\n", t, s.ByEventType[t])
	}

	renderCounts(w, "Top actions", s.TopActions)
	renderCounts(w, "Top resources", s.TopResources)
	renderCounts(w, "Top users", s.TopUsers)

	if len(s.RecentHighRisk) > 0 {
		headerColor.Fprintln(w, "\nRecent high risk")
		for _, ev := range s.RecentHighRisk {
			renderEvent(w, ev)
		}
	}
}

func renderCounts(w io.Writer, title string, counts []audit.Count) {
	if len(counts) == 0 {
		return
	}
	headerColor.Fprintln(w, "\n"+title)
	for _, c := range counts {
		fmt.Fprintf(w, "  %-40s %d\n", strings.TrimSpace(c.Key), c.Count)
	}
}
