package approval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/database/testutil"
	"github.com/charlesng35/accessdesk/internal/grants"
	"github.com/charlesng35/accessdesk/internal/integrations"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/notifications"
	"github.com/charlesng35/accessdesk/internal/store"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
)

type sentMessage struct {
	recipient string
	msg       notifications.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, recipient string, msg notifications.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMessage{recipient: recipient, msg: msg})
	return nil
}

type brokenTicketing struct{}

func (brokenTicketing) CreateTicket(context.Context, string, string) (integrations.Ticket, error) {
	return integrations.Ticket{}, errors.New("jira: 503")
}

type fixture struct {
	stores   *store.Stores
	workflow *Workflow
	notifier *recordingNotifier
	tickets  *integrations.MockTicketing
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	stores := store.New(testutil.MustOpenTestDB(t, testutil.WithSeedData()))
	rec, err := audit.NewRecorder(stores.AuditEvents)
	require.NoError(t, err)
	issuer, err := grants.NewIssuer(stores.Grants, rec)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	tickets := integrations.NewMockTicketing(integrations.Config{})
	base := []Option{WithNotifier(notifier), WithTicketing(tickets)}
	wf, err := NewWorkflow(stores, issuer, rec, Config{ApprovedGrantTTL: 720 * time.Hour, BaseURL: "https://accessdesk.company.com"}, append(base, opts...)...)
	require.NoError(t, err)
	return fixture{stores: stores, workflow: wf, notifier: notifier, tickets: tickets}
}

func (f fixture) employee(t *testing.T, email string) models.Employee {
	t.Helper()
	emp, err := f.stores.Employees.First(context.Background(), store.Where("email", email))
	require.NoError(t, err)
	return *emp
}

func (f fixture) policy(t *testing.T, resourceType, resourceName string) models.AccessPolicy {
	t.Helper()
	p, err := f.stores.Policies.First(context.Background(), store.Where("resource_type", resourceType).Eq("resource_name", resourceName))
	require.NoError(t, err)
	return *p
}

func TestSubmitRoutesToManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.workflow.Submit(ctx, SubmitInput{
		Requester: f.employee(t, "eve@company.com"),
		Policy:    f.policy(t, "database", "production_db"),
		Reason:    "debug prod issue",
	})
	require.NoError(t, err)
	require.False(t, res.Duplicate)
	require.True(t, strings.HasPrefix(res.Request.RequestID, "REQ-"))
	require.Equal(t, "mallory@company.com", res.Request.ApproverEmail)
	require.Equal(t, models.ApprovalPending, res.Request.Status)
	require.Nil(t, res.Request.TicketID)

	require.Len(t, f.notifier.sent, 1)
	require.Equal(t, "mallory@company.com", f.notifier.sent[0].recipient)
	require.Equal(t, notifications.KindApprovalRequested, f.notifier.sent[0].msg.Kind)
	require.Equal(t, "https://accessdesk.company.com/approvals", f.notifier.sent[0].msg.ActionURL)

	pending, err := f.workflow.ListPending(ctx, "Mallory@company.com")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, res.Request.RequestID, pending[0].RequestID)

	grantCount, err := f.stores.Grants.Count(ctx, store.All())
	require.NoError(t, err)
	require.Zero(t, grantCount)
}

func TestSubmitDuplicateReturnsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := SubmitInput{Requester: f.employee(t, "eve@company.com"), Policy: f.policy(t, "database", "production_db")}

	first, err := f.workflow.Submit(ctx, in)
	require.NoError(t, err)
	second, err := f.workflow.Submit(ctx, in)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, first.Request.RequestID, second.Request.RequestID)

	n, err := f.stores.Approvals.Count(ctx, store.All())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.Len(t, f.notifier.sent, 1)
}

func TestSubmitAPIKeyOpensTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.workflow.Submit(ctx, SubmitInput{Requester: f.employee(t, "alice@company.com"), Policy: f.policy(t, "api_key", "stripe"), Reason: "billing integration"})
	require.NoError(t, err)
	require.NotNil(t, res.Request.TicketID)
	require.Equal(t, f.tickets.Tickets()[0].ID, *res.Request.TicketID)

	stored, err := f.stores.Approvals.First(ctx, store.Where("request_id", res.Request.RequestID))
	require.NoError(t, err)
	require.Equal(t, *res.Request.TicketURL, *stored.TicketURL)
}

func TestSubmitIntegrationFailuresAreAudited(t *testing.T) {
	f := newFixture(t, WithTicketing(brokenTicketing{}))
	f.notifier.err = errors.New("smtp down")
	ctx := context.Background()

	res, err := f.workflow.Submit(ctx, SubmitInput{Requester: f.employee(t, "alice@company.com"), Policy: f.policy(t, "api_key", "stripe")})
	require.NoError(t, err)
	require.Nil(t, res.Request.TicketID)

	events, err := f.stores.AuditEvents.Find(ctx, store.Where("event_type", string(audit.EventIntegrationFailure)).OrderBy("action"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "notification", events[0].Action)
	require.Equal(t, "ticketing", events[1].Action)
	for _, ev := range events {
		require.Equal(t, string(audit.SeverityHigh), ev.Severity)
	}
}

func TestSubmitRejectsPolicyWithoutApproval(t *testing.T) {
	f := newFixture(t)
	_, err := f.workflow.Submit(context.Background(), SubmitInput{Requester: f.employee(t, "eve@company.com"), Policy: f.policy(t, "saas", "figma")})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestSubmitFallsBackToApproverRole(t *testing.T) {
	f := newFixture(t)
	carol := f.employee(t, "carol@company.com")
	require.Empty(t, carol.ManagerEmail)

	res, err := f.workflow.Submit(context.Background(), SubmitInput{Requester: carol, Policy: f.policy(t, "api_key", "stripe")})
	require.NoError(t, err)
	require.Equal(t, "dave@company.com", res.Request.ApproverEmail)
}

func TestResolveApprovedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.workflow.Submit(ctx, SubmitInput{Requester: f.employee(t, "eve@company.com"), Policy: f.policy(t, "database", "production_db"), Reason: "debug prod issue"})
	require.NoError(t, err)

	res, err := f.workflow.Resolve(ctx, ResolveInput{RequestID: sub.Request.RequestID, Decision: DecisionApproved, ResolverEmail: "mallory@company.com", Note: "ok for a month"})
	require.NoError(t, err)
	require.Equal(t, models.ApprovalApproved, res.Request.Status)
	require.NotNil(t, res.Request.ResolvedAt)
	require.NotNil(t, res.Grant)
	require.Equal(t, "read_write", res.Grant.AccessLevel)
	require.Equal(t, "mallory@company.com", res.Grant.GrantedBy)
	require.NotNil(t, res.Grant.ExpiresAt)
	require.Equal(t, sub.Request.RequestID, *res.Grant.RequestID)

	_, err = f.workflow.Resolve(ctx, ResolveInput{RequestID: sub.Request.RequestID, Decision: DecisionApproved, ResolverEmail: "mallory@company.com"})
	require.ErrorIs(t, err, apperrors.ErrAlreadyResolved)

	n, err := f.stores.Grants.Count(ctx, store.Where("user_email", "eve@company.com"))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	stored, err := f.stores.Approvals.First(ctx, store.Where("request_id", sub.Request.RequestID))
	require.NoError(t, err)
	require.Nil(t, stored.PendingKey)
	require.Equal(t, "ok for a month", *stored.ResolutionNote)

	last := f.notifier.sent[len(f.notifier.sent)-1]
	require.Equal(t, "eve@company.com", last.recipient)
	require.Equal(t, notifications.KindApprovalResolved, last.msg.Kind)

	events, err := f.stores.AuditEvents.Find(ctx, store.Where("event_type", string(audit.EventApprovalApproved)))
	require.NoError(t, err)
	require.Len(t, events, 1)

	// A fresh request may be filed once the previous one is resolved.
	again, err := f.workflow.Submit(ctx, SubmitInput{Requester: f.employee(t, "eve@company.com"), Policy: f.policy(t, "database", "production_db")})
	require.NoError(t, err)
	require.False(t, again.Duplicate)
}

func TestResolveRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.workflow.Submit(ctx, SubmitInput{Requester: f.employee(t, "alice@company.com"), Policy: f.policy(t, "cloud", "aws_production")})
	require.NoError(t, err)

	res, err := f.workflow.Resolve(ctx, ResolveInput{RequestID: sub.Request.RequestID, Decision: DecisionRejected, ResolverEmail: "bob@company.com"})
	require.NoError(t, err)
	require.Nil(t, res.Grant)
	require.Equal(t, models.ApprovalRejected, res.Request.Status)

	_, err = f.workflow.Resolve(ctx, ResolveInput{RequestID: sub.Request.RequestID, Decision: DecisionApproved, ResolverEmail: "bob@company.com"})
	require.ErrorIs(t, err, apperrors.ErrAlreadyResolved)

	n, err := f.stores.Grants.Count(ctx, store.All())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestResolveAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.workflow.Submit(ctx, SubmitInput{Requester: f.employee(t, "eve@company.com"), Policy: f.policy(t, "database", "production_db")})
	require.NoError(t, err)

	_, err = f.workflow.Resolve(ctx, ResolveInput{RequestID: sub.Request.RequestID, Decision: DecisionApproved, ResolverEmail: "eve@company.com"})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.workflow.Resolve(ctx, ResolveInput{RequestID: sub.Request.RequestID, Decision: DecisionApproved, ResolverEmail: "alice@company.com"})
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	// bob is an engineering_manager, the policy's approver role.
	res, err := f.workflow.Resolve(ctx, ResolveInput{RequestID: sub.Request.RequestID, Decision: DecisionApproved, ResolverEmail: "bob@company.com"})
	require.NoError(t, err)
	require.Equal(t, "bob@company.com", *res.Request.ResolvedBy)
}

func TestResolveValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.workflow.Resolve(ctx, ResolveInput{RequestID: "REQ-missing", Decision: DecisionApproved, ResolverEmail: "mallory@company.com"})
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.workflow.Resolve(ctx, ResolveInput{RequestID: "REQ-missing", Decision: "maybe", ResolverEmail: "mallory@company.com"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)

	d, err := ParseDecision(" Approve ")
	require.NoError(t, err)
	require.Equal(t, DecisionApproved, d)
	_, err = ParseDecision("later")
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestListHistory(t *testing.T) {
	clock := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	eve := f.employee(t, "eve@company.com")

	first, err := f.workflow.Submit(ctx, SubmitInput{Requester: eve, Policy: f.policy(t, "database", "production_db")})
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	_, err = f.workflow.Resolve(ctx, ResolveInput{RequestID: first.Request.RequestID, Decision: DecisionRejected, ResolverEmail: "mallory@company.com"})
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	second, err := f.workflow.Submit(ctx, SubmitInput{Requester: eve, Policy: f.policy(t, "database", "production_db")})
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	third, err := f.workflow.Submit(ctx, SubmitInput{Requester: eve, Policy: f.policy(t, "cloud", "aws_production")})
	require.NoError(t, err)

	h, err := f.workflow.ListHistory(ctx, "eve@company.com")
	require.NoError(t, err)
	require.Equal(t, 3, h.Total)
	require.Len(t, h.Pending, 2)
	require.Equal(t, third.Request.RequestID, h.Pending[0].RequestID)
	require.Equal(t, second.Request.RequestID, h.Pending[1].RequestID)
	require.Len(t, h.Rejected, 1)
	require.Empty(t, h.Approved)

	found, err := f.workflow.HasPendingFor(ctx, "EVE@company.com", "cloud", "aws_production")
	require.NoError(t, err)
	require.NotNil(t, found)
	none, err := f.workflow.HasPendingFor(ctx, "eve@company.com", "saas", "figma")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestRemindStale(t *testing.T) {
	clock := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	_, err := f.workflow.Submit(ctx, SubmitInput{Requester: f.employee(t, "eve@company.com"), Policy: f.policy(t, "database", "production_db")})
	require.NoError(t, err)
	f.notifier.sent = nil

	sent, err := f.workflow.RemindStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Zero(t, sent)

	clock = clock.Add(48 * time.Hour)
	sent, err = f.workflow.RemindStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, "mallory@company.com", f.notifier.sent[0].recipient)
	require.Equal(t, notifications.KindApprovalReminder, f.notifier.sent[0].msg.Kind)

	n, err := f.stores.AuditEvents.Count(ctx, store.Where("event_type", string(audit.EventApprovalReminderSent)))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
