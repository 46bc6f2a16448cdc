// Package grants issues, looks up and retires access grants.
package grants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/integrations"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
	"github.com/charlesng35/accessdesk/pkg/logger"
	"github.com/charlesng35/accessdesk/pkg/metrics"
)

// SourceControlType is the resource type provisioned through the Provisioner.
const SourceControlType = "source_control"

// IssueInput describes a grant to create. A zero TTL means no expiry.
type IssueInput struct {
	UserEmail    string
	ResourceType string
	ResourceName string
	AccessLevel  string
	GrantedBy    string
	TTL          time.Duration
	RequestID    string
}

// Issuer owns the grant table.
type Issuer struct {
	grants      store.RecordStore[models.AccessGrant]
	provisioner integrations.Provisioner
	recorder    *audit.Recorder
	now         func() time.Time
	log         *zap.Logger
}

// Option customises an Issuer.
type Option func(*Issuer)

// WithProvisioner sets the source-control collaborator.
func WithProvisioner(p integrations.Provisioner) Option {
	return func(i *Issuer) { i.provisioner = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer constructs an Issuer.
func NewIssuer(grants store.RecordStore[models.AccessGrant], recorder *audit.Recorder, opts ...Option) (*Issuer, error) {
	if grants == nil {
		return nil, errors.New("grant issuer: grant store is required")
	}
	i := &Issuer{
		grants:   grants,
		recorder: recorder,
		now:      time.Now,
		log:      logger.WithModule("grants"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Within returns a copy of the issuer writing through the transaction scoped
// tables of tx.
func (i *Issuer) Within(tx *store.Stores) *Issuer {
	cpy := *i
	cpy.grants = tx.Grants
	return &cpy
}

// Issue appends a new active grant.
func (i *Issuer) Issue(ctx context.Context, in IssueInput) (models.AccessGrant, error) {
	email := strings.ToLower(strings.TrimSpace(in.UserEmail))
	if email == "" || in.ResourceType == "" || in.ResourceName == "" {
		return models.AccessGrant{}, apperrors.NewBadRequest("grant requires user, resource type and resource name")
	}
	if in.AccessLevel == "" || in.GrantedBy == "" {
		return models.AccessGrant{}, apperrors.NewBadRequest("grant requires access level and grantor")
	}

	now := i.now().UTC()
	grant := models.AccessGrant{
		UserEmail:    email,
		ResourceType: in.ResourceType,
		ResourceName: in.ResourceName,
		AccessLevel:  in.AccessLevel,
		GrantedDate:  now,
		GrantedBy:    in.GrantedBy,
		Status:       models.GrantActive,
	}
	if in.TTL > 0 {
		expires := now.Add(in.TTL)
		grant.ExpiresAt = &expires
	}
	if in.RequestID != "" {
		requestID := in.RequestID
		grant.RequestID = &requestID
	}

	if err := i.grants.Append(ctx, &grant); err != nil {
		return models.AccessGrant{}, store.Classify(fmt.Errorf("grant issuer: append: %w", err))
	}
	return grant, nil
}

// Provision pushes a grant to the external system that enforces it. Failures
// are logged and audited; the grant stands either way.
func (i *Issuer) Provision(ctx context.Context, grant models.AccessGrant) {
	if grant.ResourceType != SourceControlType || i.provisioner == nil {
		return
	}
	if err := i.provisioner.Invite(ctx, grant.UserEmail, grant.ResourceName); err != nil {
		metrics.IntegrationFailures.WithLabelValues("source_control").Inc()
		i.log.Error("repository invite failed",
			zap.String("grant_id", grant.ID),
			zap.String("user_email", grant.UserEmail),
			zap.String("repository", grant.ResourceName),
			zap.Error(err),
		)
		i.recorder.Safe(ctx, audit.Event{
			Type:         audit.EventIntegrationFailure,
			Severity:     audit.SeverityHigh,
			UserEmail:    grant.UserEmail,
			Action:       "provision_repository",
			Result:       audit.ResultFailure,
			Description:  fmt.Sprintf("Repository invite for %s failed: %v", grant.ResourceName, err),
			ResourceType: grant.ResourceType,
			ResourceName: grant.ResourceName,
			Metadata:     map[string]any{"integration": "source_control", "grant_id": grant.ID},
		})
	}
}

// EffectiveGrants returns the grants currently in force for email, the most
// recent one per resource, newest first.
func (i *Issuer) EffectiveGrants(ctx context.Context, email string) ([]models.AccessGrant, error) {
	rows, err := i.grants.Find(ctx, store.Where("user_email", strings.ToLower(strings.TrimSpace(email))).
		Eq("status", models.GrantActive).
		OrderByDesc("granted_date"))
	if err != nil {
		return nil, store.Classify(fmt.Errorf("grant lookup: %w", err))
	}

	now := i.now()
	seen := make(map[string]struct{}, len(rows))
	out := make([]models.AccessGrant, 0, len(rows))
	for _, g := range rows {
		if !g.EffectiveAt(now) {
			continue
		}
		key := g.ResourceType + ":" + g.ResourceName
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, g)
	}
	return out, nil
}

// Effective returns the grant in force for the resource, if any.
func (i *Issuer) Effective(ctx context.Context, email, resourceType, resourceName string) (*models.AccessGrant, error) {
	grants, err := i.EffectiveGrants(ctx, email)
	if err != nil {
		return nil, err
	}
	for idx := range grants {
		if grants[idx].ResourceType == resourceType && grants[idx].ResourceName == resourceName {
			return &grants[idx], nil
		}
	}
	return nil, nil
}

// Revoke retires an active grant and returns it as stored.
func (i *Issuer) Revoke(ctx context.Context, grantID, revokedBy, reason string) (models.AccessGrant, error) {
	grant, err := i.grants.First(ctx, store.Where("id", strings.TrimSpace(grantID)))
	if err != nil {
		return models.AccessGrant{}, store.Classify(fmt.Errorf("grant revoke: %w", err))
	}

	ok, err := i.retire(ctx, *grant, reason)
	if err != nil {
		return models.AccessGrant{}, err
	}
	if !ok {
		return models.AccessGrant{}, apperrors.ErrAlreadyResolved.WithMessage("grant %s is already revoked", grantID)
	}
	revoked, err := i.grants.First(ctx, store.Where("id", grant.ID))
	if err != nil {
		return models.AccessGrant{}, store.Classify(fmt.Errorf("grant revoke: reload: %w", err))
	}

	i.recorder.Safe(ctx, audit.Event{
		Type:         audit.EventGrantRevoked,
		UserEmail:    grant.UserEmail,
		Action:       "revoke_grant",
		Description:  fmt.Sprintf("Grant on %s:%s revoked by %s", grant.ResourceType, grant.ResourceName, revokedBy),
		ResourceType: grant.ResourceType,
		ResourceName: grant.ResourceName,
		Metadata:     map[string]any{"grant_id": grant.ID, "revoked_by": revokedBy, "reason": reason},
	})
	return *revoked, nil
}

// ExpireDue revokes every active grant whose expiry has passed and returns
// how many were retired.
func (i *Issuer) ExpireDue(ctx context.Context) (int, error) {
	now := i.now().UTC()
	due, err := i.grants.Find(ctx, store.Where("status", models.GrantActive).Lte("expires_at", now))
	if err != nil {
		return 0, store.Classify(fmt.Errorf("grant expiry: %w", err))
	}

	expired := 0
	for _, grant := range due {
		ok, err := i.retire(ctx, grant, "expired")
		if err != nil {
			return expired, err
		}
		if !ok {
			continue
		}
		expired++
		i.recorder.Safe(ctx, audit.Event{
			Type:         audit.EventGrantExpired,
			UserEmail:    grant.UserEmail,
			Action:       "expire_grant",
			Description:  fmt.Sprintf("Grant on %s:%s expired", grant.ResourceType, grant.ResourceName),
			ResourceType: grant.ResourceType,
			ResourceName: grant.ResourceName,
			Metadata:     map[string]any{"grant_id": grant.ID},
		})
	}
	return expired, nil
}

func (i *Issuer) retire(ctx context.Context, grant models.AccessGrant, reason string) (bool, error) {
	now := i.now().UTC()
	n, err := i.grants.Update(ctx,
		store.Where("id", grant.ID).Eq("status", models.GrantActive),
		map[string]any{"status": models.GrantRevoked, "revoked_at": now, "revoke_reason": reason},
	)
	if err != nil {
		return false, store.Classify(fmt.Errorf("grant retire: %w", err))
	}
	return n == 1, nil
}
