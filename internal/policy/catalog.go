package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
)

// AnyRole disables the required role check.
const AnyRole = "any"

// Policy is an access policy with its compiled condition.
type Policy struct {
	models.AccessPolicy
	Condition Expr
}

type resourceKey struct {
	resourceType string
	resourceName string
}

// Catalog holds every policy compiled once at load time.
type Catalog struct {
	source store.Reader[models.AccessPolicy]

	mu       sync.RWMutex
	policies map[resourceKey]Policy
}

// NewCatalog loads and compiles the policies in source.
func NewCatalog(ctx context.Context, source store.Reader[models.AccessPolicy]) (*Catalog, error) {
	c := &Catalog{source: source}
	if err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload recompiles the catalog. On error the previous catalog stays in use.
func (c *Catalog) Reload(ctx context.Context) error {
	rows, err := c.source.Find(ctx, store.All().OrderBy("resource_type").OrderBy("resource_name"))
	if err != nil {
		return store.Classify(fmt.Errorf("policy catalog: load: %w", err))
	}

	compiled := make(map[resourceKey]Policy, len(rows))
	var errs error
	for _, row := range rows {
		p, err := Compile(row)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		compiled[resourceKey{row.ResourceType, row.ResourceName}] = p
	}
	if errs != nil {
		return fmt.Errorf("policy catalog: %w", errs)
	}

	c.mu.Lock()
	c.policies = compiled
	c.mu.Unlock()
	return nil
}

// Compile parses the policy's condition. A required role other than "any"
// is ANDed into the condition of policies that do not need approval.
func Compile(row models.AccessPolicy) (Policy, error) {
	expr, err := ParseCondition(row.AutoApproveConditions)
	if err != nil {
		return Policy{}, fmt.Errorf("policy %s:%s: %w", row.ResourceType, row.ResourceName, err)
	}
	role := strings.TrimSpace(row.RequiredRole)
	if role != "" && !strings.EqualFold(role, AnyRole) && !row.RequiresApproval {
		expr = withRole(expr, role)
	}
	return Policy{AccessPolicy: row, Condition: expr}, nil
}

// Lookup returns the policy for a resource.
func (c *Catalog) Lookup(resourceType, resourceName string) (Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.policies[resourceKey{strings.TrimSpace(resourceType), strings.TrimSpace(resourceName)}]
	return p, ok
}

// List returns every policy ordered by resource.
func (c *Catalog) List() []Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Policy, 0, len(c.policies))
	for _, p := range c.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ResourceType != out[j].ResourceType {
			return out[i].ResourceType < out[j].ResourceType
		}
		return out[i].ResourceName < out[j].ResourceName
	})
	return out
}
