package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/grants"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
	"github.com/charlesng35/accessdesk/pkg/crypto"
)

// APIKeyResourceType is the resource type guarding key issuance.
const APIKeyResourceType = "api_key"

const (
	defaultAPIKeyPrefix = "sk"
	defaultAPIKeyTTL    = 90 * 24 * time.Hour
)

// APIKeyConfig tunes issued keys.
type APIKeyConfig struct {
	Prefix string
	TTL    time.Duration
}

// IssueKeyResult carries a freshly issued key. Plaintext is never stored and
// is returned only here. Denied results carry no key.
type IssueKeyResult struct {
	Denied    bool           `json:"denied"`
	Message   string         `json:"message"`
	Key       *models.APIKey `json:"key,omitempty"`
	Plaintext string         `json:"plaintext,omitempty"`
	NextStep  string         `json:"next_step,omitempty"`
}

// APIKeyService issues service credentials to employees holding a grant.
type APIKeyService struct {
	keys     store.RecordStore[models.APIKey]
	issuer   *grants.Issuer
	recorder *audit.Recorder
	cfg      APIKeyConfig
	now      func() time.Time
}

// NewAPIKeyService constructs an APIKeyService.
func NewAPIKeyService(keys store.RecordStore[models.APIKey], issuer *grants.Issuer, recorder *audit.Recorder, cfg APIKeyConfig) (*APIKeyService, error) {
	if keys == nil || issuer == nil {
		return nil, errors.New("api key service: key store and grant issuer are required")
	}
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = defaultAPIKeyPrefix
	}
	if cfg.TTL == 0 {
		cfg.TTL = defaultAPIKeyTTL
	}
	return &APIKeyService{keys: keys, issuer: issuer, recorder: recorder, cfg: cfg, now: time.Now}, nil
}

// Issue mints a key for service when email holds an effective api_key grant
// for it. Without a grant the result is a denial pointing at an access request.
func (s *APIKeyService) Issue(ctx context.Context, email, service string) (IssueKeyResult, error) {
	email = normalizeEmail(email)
	service = strings.ToLower(strings.TrimSpace(service))
	if email == "" || service == "" {
		return IssueKeyResult{}, apperrors.NewBadRequest("email and service are required")
	}

	grant, err := s.issuer.Effective(ctx, email, APIKeyResourceType, service)
	if err != nil {
		return IssueKeyResult{}, err
	}
	if grant == nil {
		msg := fmt.Sprintf("You have no active access to the %s API. Request access to api_key:%s first.", service, service)
		s.recorder.Safe(ctx, audit.Event{
			Type:         audit.EventAPIKeyDenied,
			UserEmail:    email,
			Action:       "issue_api_key",
			Result:       audit.ResultFailure,
			Description:  msg,
			ResourceType: APIKeyResourceType,
			ResourceName: service,
		})
		return IssueKeyResult{Denied: true, Message: msg, NextStep: "request_access"}, nil
	}

	minted, err := crypto.NewAPIKey(s.cfg.Prefix, service)
	if err != nil {
		return IssueKeyResult{}, fmt.Errorf("api key service: %w", err)
	}

	key := models.APIKey{
		UserEmail:     email,
		Service:       service,
		DisplayPrefix: minted.DisplayPrefix,
		KeyHash:       minted.Hash,
		GrantID:       grant.ID,
		Status:        models.EntryActive,
	}
	if s.cfg.TTL > 0 {
		expires := s.now().UTC().Add(s.cfg.TTL)
		if grant.ExpiresAt != nil && grant.ExpiresAt.Before(expires) {
			expires = *grant.ExpiresAt
		}
		key.ExpiresAt = &expires
	}
	if err := s.keys.Append(ctx, &key); err != nil {
		return IssueKeyResult{}, store.Classify(fmt.Errorf("api key service: append: %w", err))
	}

	s.recorder.Safe(ctx, audit.Event{
		Type:         audit.EventAPIKeyIssued,
		UserEmail:    email,
		Action:       "issue_api_key",
		Description:  fmt.Sprintf("Issued %s API key %s...", service, key.DisplayPrefix),
		ResourceType: APIKeyResourceType,
		ResourceName: service,
		Metadata:     map[string]any{"key_id": key.ID, "grant_id": grant.ID},
	})

	return IssueKeyResult{
		Message:   fmt.Sprintf("Your %s API key is ready. Store it now; it will not be shown again.", service),
		Key:       &key,
		Plaintext: minted.Plaintext,
	}, nil
}

// ListActive returns the keys of email still in force.
func (s *APIKeyService) ListActive(ctx context.Context, email string) ([]models.APIKey, error) {
	rows, err := s.keys.Find(ctx, store.Where("user_email", normalizeEmail(email)).
		Eq("status", models.EntryActive).
		OrderByDesc("created_at"))
	if err != nil {
		return nil, store.Classify(fmt.Errorf("api key service: list: %w", err))
	}

	now := s.now()
	active := rows[:0]
	for _, k := range rows {
		if k.ExpiresAt == nil || k.ExpiresAt.After(now) {
			active = append(active, k)
		}
	}
	return active, nil
}

// ExpireDue retires keys past their expiry and returns how many changed.
func (s *APIKeyService) ExpireDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.keys.Find(ctx, store.Where("status", models.EntryActive).Lte("expires_at", now))
	if err != nil {
		return 0, store.Classify(fmt.Errorf("api key service: find expired: %w", err))
	}

	expired := 0
	for _, key := range due {
		n, err := s.keys.Update(ctx, store.Where("id", key.ID).Eq("status", models.EntryActive),
			map[string]any{"status": models.EntryExpired})
		if err != nil {
			return expired, store.Classify(fmt.Errorf("api key service: expire %s: %w", key.ID, err))
		}
		if n == 0 {
			continue
		}
		expired++
		s.recorder.Safe(ctx, audit.Event{
			Type:         audit.EventAPIKeyExpired,
			UserEmail:    key.UserEmail,
			Action:       "expire_api_key",
			Description:  fmt.Sprintf("%s API key %s... expired", key.Service, key.DisplayPrefix),
			ResourceType: APIKeyResourceType,
			ResourceName: key.Service,
			Metadata:     map[string]any{"key_id": key.ID},
		})
	}
	return expired, nil
}
