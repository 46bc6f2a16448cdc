package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500

	defaultSummaryWindowDays = 7
	topN                     = 10
	highRiskScore            = 70
)

// Filter narrows an audit query. Zero values match everything.
type Filter struct {
	UserEmail      string
	Since          *time.Time
	Until          *time.Time
	EventTypes     []EventType
	Severities     []Severity
	MinSeverity    Severity
	ResourceType   string
	ResourceName   string
	// ResourceSearch matches a substring of the resource name.
	ResourceSearch string
	Action         string
	Result         Result
}

// Page selects a window of results.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// QueryResult holds one page of events, newest first.
type QueryResult struct {
	Events  []models.AuditEvent `json:"events"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
	HasMore bool                `json:"has_more"`
}

// Reader serves the read side of the audit trail.
type Reader struct {
	events store.Reader[models.AuditEvent]
	now    func() time.Time
}

// NewReader constructs a Reader over events.
func NewReader(events store.Reader[models.AuditEvent]) *Reader {
	return &Reader{events: events, now: time.Now}
}

// Query returns the events matching f, newest first.
func (r *Reader) Query(ctx context.Context, f Filter, page Page) (QueryResult, error) {
	page = page.normalized()
	q := f.query()

	total, err := r.events.Count(ctx, q)
	if err != nil {
		return QueryResult{}, store.Classify(fmt.Errorf("audit query: count: %w", err))
	}

	events, err := r.events.Find(ctx, q.OrderByDesc("timestamp").OrderByDesc("event_id").Page(page.Limit, page.Offset))
	if err != nil {
		return QueryResult{}, store.Classify(fmt.Errorf("audit query: find: %w", err))
	}

	return QueryResult{
		Events:  events,
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: int64(page.Offset+len(events)) < total,
	}, nil
}

// Each streams every event matching f, oldest first, in batches.
func (r *Reader) Each(ctx context.Context, f Filter, fn func(models.AuditEvent) error) error {
	q := f.query().OrderBy("timestamp").OrderBy("event_id")
	for offset := 0; ; offset += MaxPageLimit {
		batch, err := r.events.Find(ctx, q.Page(MaxPageLimit, offset))
		if err != nil {
			return store.Classify(fmt.Errorf("audit export: find: %w", err))
		}
		for _, ev := range batch {
			if err := fn(ev); err != nil {
				return err
			}
		}
		if len(batch) < MaxPageLimit {
			return nil
		}
	}
}

func (f Filter) query() store.Query {
	q := store.All()
	if email := strings.ToLower(strings.TrimSpace(f.UserEmail)); email != "" {
		q = q.Eq("user_email", email)
	}
	if f.Since != nil {
		q = q.Gte("timestamp", f.Since.UTC())
	}
	if f.Until != nil {
		q = q.Lte("timestamp", f.Until.UTC())
	}
	if len(f.EventTypes) > 0 {
		q = q.In("event_type", stringsOf(f.EventTypes))
	}
	if len(f.Severities) > 0 {
		q = q.In("severity", stringsOf(f.Severities))
	}
	if f.MinSeverity.Valid() {
		q = q.In("severity", stringsOf(SeveritiesAtLeast(f.MinSeverity)))
	}
	if f.ResourceType != "" {
		q = q.Eq("resource_type", f.ResourceType)
	}
	if f.ResourceName != "" {
		q = q.Eq("resource_name", f.ResourceName)
	}
	if f.ResourceSearch != "" {
		q = q.Contains("resource_name", f.ResourceSearch)
	}
	if f.Action != "" {
		q = q.Eq("action", f.Action)
	}
	if f.Result != "" {
		q = q.Eq("action_result", string(f.Result))
	}
	return q
}

func stringsOf[S ~string](values []S) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// Count is one entry of a ranked breakdown.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Summary aggregates the events of a trailing window.
type Summary struct {
	WindowDays     int                 `json:"window_days"`
	Since          time.Time           `json:"since"`
	TotalEvents    int                 `json:"total_events"`
	UniqueUsers    int                 `json:"unique_users"`
	Failures       int                 `json:"failures"`
	BySeverity     map[string]int      `json:"by_severity"`
	ByEventType    map[string]int      `json:"by_event_type"`
	TopActions     []Count             `json:"top_actions"`
	TopResources   []Count             `json:"top_resources"`
	TopUsers       []Count             `json:"top_users"`
	RecentHighRisk []models.AuditEvent `json:"recent_high_risk"`
}

// Summarize aggregates the last windowDays days of events. A non-positive
// window defaults to seven days.
func (r *Reader) Summarize(ctx context.Context, windowDays int) (Summary, error) {
	if windowDays <= 0 {
		windowDays = defaultSummaryWindowDays
	}
	since := r.now().UTC().AddDate(0, 0, -windowDays)

	summary := Summary{
		WindowDays:     windowDays,
		Since:          since,
		BySeverity:     make(map[string]int),
		ByEventType:    make(map[string]int),
		RecentHighRisk: make([]models.AuditEvent, 0),
	}
	actions := make(map[string]int)
	resources := make(map[string]int)
	users := make(map[string]int)

	// Newest first so the high-risk subset is the most recent one.
	q := Filter{Since: &since}.query().OrderByDesc("timestamp").OrderByDesc("event_id")
	for offset := 0; ; offset += MaxPageLimit {
		batch, err := r.events.Find(ctx, q.Page(MaxPageLimit, offset))
		if err != nil {
			return Summary{}, store.Classify(fmt.Errorf("audit summary: %w", err))
		}
		for _, ev := range batch {
			summary.TotalEvents++
			summary.BySeverity[ev.Severity]++
			summary.ByEventType[ev.EventType]++
			actions[ev.Action]++
			if ev.UserEmail != "" {
				users[ev.UserEmail]++
			}
			if ev.ResourceType != nil && ev.ResourceName != nil {
				resources[*ev.ResourceType+":"+*ev.ResourceName]++
			}
			if ev.ActionResult == string(ResultFailure) {
				summary.Failures++
			}
			if isHighRisk(ev) && len(summary.RecentHighRisk) < topN {
				summary.RecentHighRisk = append(summary.RecentHighRisk, ev)
			}
		}
		if len(batch) < MaxPageLimit {
			break
		}
	}

	summary.UniqueUsers = len(users)
	summary.TopActions = ranked(actions)
	summary.TopResources = ranked(resources)
	summary.TopUsers = ranked(users)
	return summary, nil
}

func isHighRisk(ev models.AuditEvent) bool {
	if Severity(ev.Severity).AtLeast(SeverityHigh) {
		return true
	}
	return ev.RiskScore != nil && *ev.RiskScore >= highRiskScore
}

func ranked(counts map[string]int) []Count {
	out := make([]Count, 0, len(counts))
	for k, v := range counts {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}
