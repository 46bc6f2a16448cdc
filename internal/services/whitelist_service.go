package services

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/charlesng35/accessdesk/internal/audit"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
)

const (
	defaultWhitelistTTL       = 24 * time.Hour
	defaultMaxActiveWhitelist = 5
)

// WhitelistConfig tunes IP whitelisting.
type WhitelistConfig struct {
	TTL       time.Duration
	MaxActive int
}

// WhitelistInput asks to allow an address for an employee.
type WhitelistInput struct {
	Email     string
	IPAddress string
	Reason    string
}

// WhitelistService manages temporary perimeter exceptions.
type WhitelistService struct {
	employees store.Reader[models.Employee]
	entries   store.RecordStore[models.WhitelistedIP]
	recorder  *audit.Recorder
	cfg       WhitelistConfig
	now       func() time.Time
}

// NewWhitelistService constructs a WhitelistService.
func NewWhitelistService(stores *store.Stores, recorder *audit.Recorder, cfg WhitelistConfig) (*WhitelistService, error) {
	if stores == nil {
		return nil, errors.New("whitelist service: stores are required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultWhitelistTTL
	}
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = defaultMaxActiveWhitelist
	}
	return &WhitelistService{
		employees: stores.Employees,
		entries:   stores.WhitelistedIPs,
		recorder:  recorder,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// ParseClientIP validates an address a user may whitelist and returns its
// canonical form.
func ParseClientIP(raw string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return netip.Addr{}, apperrors.ErrBadRequest.WithMessage("%q is not a valid IP address", raw)
	}
	addr = addr.Unmap()
	switch {
	case addr.IsUnspecified():
		return netip.Addr{}, apperrors.ErrBadRequest.WithMessage("%s is unspecified", addr)
	case addr.IsLoopback():
		return netip.Addr{}, apperrors.ErrBadRequest.WithMessage("%s is a loopback address", addr)
	case addr.IsMulticast():
		return netip.Addr{}, apperrors.ErrBadRequest.WithMessage("%s is a multicast address", addr)
	}
	return addr.WithZone(""), nil
}

// Whitelist allows in.IPAddress for in.Email until the configured TTL runs out.
func (s *WhitelistService) Whitelist(ctx context.Context, in WhitelistInput) (models.WhitelistedIP, error) {
	email := normalizeEmail(in.Email)
	addr, err := ParseClientIP(in.IPAddress)
	if err != nil {
		return models.WhitelistedIP{}, err
	}
	ip := addr.String()

	if _, err := s.employees.First(ctx, store.Where("email", email)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.WhitelistedIP{}, apperrors.ErrNotFound.WithMessage("employee %s not found", email)
		}
		return models.WhitelistedIP{}, store.Classify(fmt.Errorf("whitelist: load employee: %w", err))
	}

	// Lapsed entries still hold their active key until retired.
	if _, err := s.expire(ctx, store.Where("user_email", email)); err != nil {
		return models.WhitelistedIP{}, err
	}

	active, err := s.entries.Count(ctx, store.Where("user_email", email).Eq("status", models.EntryActive))
	if err != nil {
		return models.WhitelistedIP{}, store.Classify(fmt.Errorf("whitelist: count active: %w", err))
	}
	if active >= int64(s.cfg.MaxActive) {
		return models.WhitelistedIP{}, apperrors.ErrBadRequest.WithMessage("%s already has %d active whitelist entries", email, active)
	}

	now := s.now().UTC()
	expires := now.Add(s.cfg.TTL)
	key := models.ActiveKeyFor(email, ip)
	entry := models.WhitelistedIP{
		UserEmail: email,
		IPAddress: ip,
		Reason:    strings.TrimSpace(in.Reason),
		Status:    models.EntryActive,
		ExpiresAt: &expires,
		ActiveKey: &key,
	}
	entry.CreatedAt = now
	if err := s.entries.Append(ctx, &entry); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.WhitelistedIP{}, apperrors.ErrDuplicateRequest.WithMessage("%s is already whitelisted for %s", ip, email)
		}
		return models.WhitelistedIP{}, store.Classify(fmt.Errorf("whitelist: append: %w", err))
	}

	s.recorder.Safe(ctx, audit.Event{
		Type:         audit.EventIPWhitelisted,
		Severity:     audit.SeverityMedium,
		UserEmail:    email,
		Action:       "whitelist_ip",
		Description:  fmt.Sprintf("Whitelisted %s until %s", ip, expires.Format(time.RFC3339)),
		ResourceType: "network",
		ResourceName: ip,
		Metadata:     map[string]any{"entry_id": entry.ID, "reason": entry.Reason},
	})
	return entry, nil
}

// ListActive returns the entries of email still in force.
func (s *WhitelistService) ListActive(ctx context.Context, email string) ([]models.WhitelistedIP, error) {
	rows, err := s.entries.Find(ctx, store.Where("user_email", normalizeEmail(email)).
		Eq("status", models.EntryActive).
		Gt("expires_at", s.now().UTC()).
		OrderBy("expires_at"))
	if err != nil {
		return nil, store.Classify(fmt.Errorf("whitelist: list: %w", err))
	}
	return rows, nil
}

// ExpireDue retires every entry past its expiry and returns how many changed.
func (s *WhitelistService) ExpireDue(ctx context.Context) (int, error) {
	return s.expire(ctx, store.All())
}

func (s *WhitelistService) expire(ctx context.Context, scope store.Query) (int, error) {
	now := s.now().UTC()
	due, err := s.entries.Find(ctx, scope.Eq("status", models.EntryActive).Lte("expires_at", now))
	if err != nil {
		return 0, store.Classify(fmt.Errorf("whitelist: find expired: %w", err))
	}

	expired := 0
	for _, entry := range due {
		n, err := s.entries.Update(ctx, store.Where("id", entry.ID).Eq("status", models.EntryActive),
			map[string]any{"status": models.EntryExpired, "active_key": nil})
		if err != nil {
			return expired, store.Classify(fmt.Errorf("whitelist: expire %s: %w", entry.ID, err))
		}
		if n == 0 {
			continue
		}
		expired++
		s.recorder.Safe(ctx, audit.Event{
			Type:         audit.EventIPWhitelistExpired,
			UserEmail:    entry.UserEmail,
			Action:       "expire_whitelist",
			Description:  fmt.Sprintf("Whitelist entry for %s expired", entry.IPAddress),
			ResourceType: "network",
			ResourceName: entry.IPAddress,
			Metadata:     map[string]any{"entry_id": entry.ID},
		})
	}
	return expired, nil
}
