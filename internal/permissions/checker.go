package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/accessdesk/internal/models"
)

// DefaultCacheTTL bounds how long a resolved permission set is reused.
const DefaultCacheTTL = 30 * time.Second

type cachedSet struct {
	perms   map[string]struct{}
	expires time.Time
}

// Checker evaluates an employee's gateway permissions. Resolved permission
// sets are cached per employee for the cache TTL.
type Checker struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSet
}

// CheckerOption customises a Checker.
type CheckerOption func(*Checker)

// WithCacheTTL overrides DefaultCacheTTL. Zero disables caching.
func WithCacheTTL(ttl time.Duration) CheckerOption {
	return func(c *Checker) { c.ttl = ttl }
}

// WithCheckerClock overrides the clock used for cache expiry.
func WithCheckerClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChecker constructs a permission checker backed by db.
func NewChecker(db *gorm.DB, opts ...CheckerOption) (*Checker, error) {
	if db == nil {
		return nil, errors.New("permission checker: db is required")
	}
	c := &Checker{db: db, ttl: DefaultCacheTTL, now: time.Now, cache: make(map[string]cachedSet)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Check reports whether the employee holds permissionID and every permission
// it depends on. An unknown employee holds nothing.
func (c *Checker) Check(ctx context.Context, email, permissionID string) (bool, error) {
	permissionID = strings.TrimSpace(permissionID)
	if _, ok := Get(permissionID); !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownPermission, permissionID)
	}
	required, err := ResolveDependencies(permissionID)
	if err != nil {
		return false, err
	}

	granted, err := c.granted(ctx, email)
	if err != nil {
		return false, err
	}
	for _, id := range append(required, permissionID) {
		if _, ok := granted[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Permissions returns the sorted permission IDs granted to the employee.
func (c *Checker) Permissions(ctx context.Context, email string) ([]string, error) {
	granted, err := c.granted(ctx, email)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(granted))
	for id := range granted {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Invalidate drops the cached permission set of email, or of everyone when
// email is empty.
func (c *Checker) Invalidate(email string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if email = normalizeEmail(email); email == "" {
		c.cache = make(map[string]cachedSet)
		return
	}
	delete(c.cache, email)
}

func (c *Checker) granted(ctx context.Context, email string) (map[string]struct{}, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.New("permission checker: email is required")
	}

	now := c.now()
	c.mu.Lock()
	entry, hit := c.cache[email]
	c.mu.Unlock()
	if hit && now.Before(entry.expires) {
		return entry.perms, nil
	}

	perms, err := c.load(ctx, email)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		c.mu.Lock()
		c.cache[email] = cachedSet{perms: perms, expires: now.Add(c.ttl)}
		c.mu.Unlock()
	}
	return perms, nil
}

func (c *Checker) load(ctx context.Context, email string) (map[string]struct{}, error) {
	var employee models.Employee
	err := c.db.WithContext(ensureContext(ctx)).Preload("AccessRoles.Permissions").First(&employee, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("permission checker: load %s: %w", email, err)
	}

	perms := make(map[string]struct{})
	for _, role := range employee.AccessRoles {
		for _, perm := range role.Permissions {
			grantWithImplied(perms, perm.ID)
		}
	}
	return perms, nil
}

// grantWithImplied adds id and everything it implies. Rows for permissions
// that are no longer registered are skipped.
func grantWithImplied(perms map[string]struct{}, id string) {
	id = strings.TrimSpace(id)
	if _, seen := perms[id]; seen {
		return
	}
	def, ok := Get(id)
	if !ok {
		return
	}
	perms[id] = struct{}{}
	for _, implied := range def.Implies {
		grantWithImplied(perms, implied)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
