package grants

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/database/testutil"
	"github.com/charlesng35/accessdesk/internal/integrations"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
)

type failingProvisioner struct{}

func (failingProvisioner) Invite(context.Context, string, string) error {
	return errors.New("github: 502 bad gateway")
}

func newIssuer(t *testing.T, opts ...Option) (*Issuer, *store.Stores) {
	t.Helper()
	stores := store.New(testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()))
	rec, err := audit.NewRecorder(stores.AuditEvents)
	require.NoError(t, err)
	issuer, err := NewIssuer(stores.Grants, rec, opts...)
	require.NoError(t, err)
	return issuer, stores
}

func TestIssueAndEffectiveGrants(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := now
	issuer, _ := newIssuer(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	g, err := issuer.Issue(ctx, IssueInput{UserEmail: "Eve@company.com", ResourceType: "database", ResourceName: "staging_db", AccessLevel: "read_only", GrantedBy: models.GrantedByAuto})
	require.NoError(t, err)
	require.Equal(t, "eve@company.com", g.UserEmail)
	require.Equal(t, models.GrantActive, g.Status)
	require.Nil(t, g.ExpiresAt)

	clock = now.Add(time.Hour)
	newer, err := issuer.Issue(ctx, IssueInput{UserEmail: "eve@company.com", ResourceType: "database", ResourceName: "staging_db", AccessLevel: "read_write", GrantedBy: "mallory@company.com", TTL: 2 * time.Hour, RequestID: "REQ-1"})
	require.NoError(t, err)
	require.Equal(t, clock.Add(2*time.Hour), *newer.ExpiresAt)
	require.Equal(t, "REQ-1", *newer.RequestID)

	effective, err := issuer.EffectiveGrants(ctx, "eve@company.com")
	require.NoError(t, err)
	require.Len(t, effective, 1)
	require.Equal(t, "read_write", effective[0].AccessLevel)

	// Once the newer grant lapses the older, open-ended one is in force again.
	clock = now.Add(4 * time.Hour)
	found, err := issuer.Effective(ctx, "eve@company.com", "database", "staging_db")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "read_only", found.AccessLevel)

	missing, err := issuer.Effective(ctx, "eve@company.com", "database", "production_db")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestIssueValidation(t *testing.T) {
	issuer, _ := newIssuer(t)
	_, err := issuer.Issue(context.Background(), IssueInput{UserEmail: "eve@company.com", ResourceType: "database"})
	require.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestRevoke(t *testing.T) {
	issuer, stores := newIssuer(t)
	ctx := context.Background()

	g, err := issuer.Issue(ctx, IssueInput{UserEmail: "eve@company.com", ResourceType: "saas", ResourceName: "figma", AccessLevel: "read_only", GrantedBy: models.GrantedByAuto})
	require.NoError(t, err)

	revoked, err := issuer.Revoke(ctx, g.ID, "dave@company.com", "left project")
	require.NoError(t, err)
	require.Equal(t, models.GrantRevoked, revoked.Status)
	require.NotNil(t, revoked.RevokedAt)

	_, err = issuer.Revoke(ctx, g.ID, "dave@company.com", "again")
	require.ErrorIs(t, err, apperrors.ErrAlreadyResolved)
	_, err = issuer.Revoke(ctx, "missing", "dave@company.com", "")
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	stored, err := stores.Grants.First(ctx, store.Where("id", g.ID))
	require.NoError(t, err)
	require.Equal(t, models.GrantRevoked, stored.Status)
	require.Equal(t, "left project", *stored.RevokeReason)

	n, err := stores.AuditEvents.Count(ctx, store.Where("event_type", string(audit.EventGrantRevoked)))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestExpireDue(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := now
	issuer, stores := newIssuer(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	_, err := issuer.Issue(ctx, IssueInput{UserEmail: "eve@company.com", ResourceType: "database", ResourceName: "production_db", AccessLevel: "read_write", GrantedBy: "mallory@company.com", TTL: time.Hour})
	require.NoError(t, err)
	_, err = issuer.Issue(ctx, IssueInput{UserEmail: "eve@company.com", ResourceType: "saas", ResourceName: "figma", AccessLevel: "read_only", GrantedBy: models.GrantedByAuto})
	require.NoError(t, err)

	n, err := issuer.ExpireDue(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	clock = now.Add(2 * time.Hour)
	n, err = issuer.ExpireDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = issuer.ExpireDue(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	active, err := stores.Grants.Count(ctx, store.Where("status", models.GrantActive))
	require.NoError(t, err)
	require.EqualValues(t, 1, active)

	events, err := stores.AuditEvents.Find(ctx, store.Where("event_type", string(audit.EventGrantExpired)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "production_db", *events[0].ResourceName)
}

func TestProvisionSourceControl(t *testing.T) {
	provisioner := integrations.NewMockProvisioner(integrations.Config{})
	issuer, _ := newIssuer(t, WithProvisioner(provisioner))
	ctx := context.Background()

	g, err := issuer.Issue(ctx, IssueInput{UserEmail: "alice@company.com", ResourceType: SourceControlType, ResourceName: "platform-api", AccessLevel: "read_only", GrantedBy: models.GrantedByAuto})
	require.NoError(t, err)
	issuer.Provision(ctx, g)

	other, err := issuer.Issue(ctx, IssueInput{UserEmail: "alice@company.com", ResourceType: "saas", ResourceName: "figma", AccessLevel: "read_only", GrantedBy: models.GrantedByAuto})
	require.NoError(t, err)
	issuer.Provision(ctx, other)

	require.Equal(t, []integrations.Invitation{{Email: "alice@company.com", Repository: "platform-api"}}, provisioner.Invitations())
}

func TestProvisionFailureIsAuditedNotFatal(t *testing.T) {
	issuer, stores := newIssuer(t, WithProvisioner(failingProvisioner{}))
	ctx := context.Background()

	g, err := issuer.Issue(ctx, IssueInput{UserEmail: "alice@company.com", ResourceType: SourceControlType, ResourceName: "platform-api", AccessLevel: "read_only", GrantedBy: models.GrantedByAuto})
	require.NoError(t, err)
	issuer.Provision(ctx, g)

	events, err := stores.AuditEvents.Find(ctx, store.Where("event_type", string(audit.EventIntegrationFailure)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, string(audit.SeverityHigh), events[0].Severity)
	require.Equal(t, string(audit.ResultFailure), events[0].ActionResult)

	effective, err := issuer.EffectiveGrants(ctx, "alice@company.com")
	require.NoError(t, err)
	require.Len(t, effective, 1)
}
