package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
)

func TestParseCondition(t *testing.T) {
	tests := []struct {
		raw  string
		want Expr
	}{
		{"", Always{}},
		{" None ", Always{}},
		{"onboarding_complete=true", Equals{Key: "onboarding_complete", Value: "true"}},
		{"team=Backend|Platform", OneOf{Key: "team", Values: []string{"Backend", "Platform"}}},
		{"team = Backend | Platform , onboarding_complete=true", And{
			OneOf{Key: "team", Values: []string{"Backend", "Platform"}},
			Equals{Key: "onboarding_complete", Value: "true"},
		}},
		{"level=1|2|3", OneOf{Key: "level", Values: []string{"1", "2", "3"}}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseCondition(tt.raw)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseConditionRejectsMalformedClauses(t *testing.T) {
	for _, raw := range []string{"team", "=Backend", "team=", "team=Backend|", "team=Backend,,role=x"} {
		_, err := ParseCondition(raw)
		require.Error(t, err, raw)
	}
}

func TestConditionEval(t *testing.T) {
	expr, err := ParseCondition("team=Backend|Platform,onboarding_complete=true")
	require.NoError(t, err)

	ok, unmet := expr.Eval(AttributeMap{"team": "platform ", "onboarding_complete": "TRUE"})
	require.True(t, ok)
	require.Nil(t, unmet)

	ok, unmet = expr.Eval(AttributeMap{"team": "Frontend", "onboarding_complete": "true"})
	require.False(t, ok)
	require.Equal(t, "team=Backend|Platform", unmet.String())

	ok, unmet = expr.Eval(AttributeMap{"team": "Backend"})
	require.False(t, ok)
	require.Equal(t, "onboarding_complete=true", unmet.String())

	ok, _ = Always{}.Eval(nil)
	require.True(t, ok)
	ok, _ = Equals{Key: "team", Value: "Backend"}.Eval(nil)
	require.False(t, ok)
}

func TestConditionAlternationAppliesToAnyKey(t *testing.T) {
	expr, err := ParseCondition("role=engineer|senior_engineer")
	require.NoError(t, err)

	ok, _ := expr.Eval(models.Employee{Role: "senior_engineer"})
	require.True(t, ok)
	ok, _ = expr.Eval(models.Employee{Role: "intern"})
	require.False(t, ok)
}

func TestCompileAddsRequiredRole(t *testing.T) {
	p, err := Compile(models.AccessPolicy{ResourceType: "database", ResourceName: "analytics", RequiredRole: "engineer", AutoApproveConditions: "team=Backend"})
	require.NoError(t, err)
	require.Equal(t, And{Equals{Key: "role", Value: "engineer"}, Equals{Key: "team", Value: "Backend"}}, p.Condition)

	p, err = Compile(models.AccessPolicy{ResourceType: "database", ResourceName: "analytics", RequiredRole: "engineer", AutoApproveConditions: "none"})
	require.NoError(t, err)
	require.Equal(t, Equals{Key: "role", Value: "engineer"}, p.Condition)

	p, err = Compile(models.AccessPolicy{ResourceType: "database", ResourceName: "prod", RequiredRole: "any", AutoApproveConditions: "none"})
	require.NoError(t, err)
	require.Equal(t, Always{}, p.Condition)

	p, err = Compile(models.AccessPolicy{ResourceType: "database", ResourceName: "prod", RequiredRole: "engineer", RequiresApproval: true})
	require.NoError(t, err)
	require.Equal(t, Always{}, p.Condition)
}

type staticPolicies struct {
	rows []models.AccessPolicy
	err  error
}

func (s staticPolicies) First(context.Context, store.Query) (*models.AccessPolicy, error) {
	return nil, store.ErrNotFound
}

func (s staticPolicies) Find(context.Context, store.Query) ([]models.AccessPolicy, error) {
	return s.rows, s.err
}

func (s staticPolicies) Count(context.Context, store.Query) (int64, error) {
	return int64(len(s.rows)), s.err
}

func TestCatalogReload(t *testing.T) {
	ctx := context.Background()
	source := &staticPolicies{rows: []models.AccessPolicy{
		{ResourceType: "saas", ResourceName: "figma", AutoApproveConditions: "none"},
		{ResourceType: "database", ResourceName: "staging_db", AutoApproveConditions: "team=Backend|Platform"},
	}}

	catalog, err := NewCatalog(ctx, source)
	require.NoError(t, err)

	p, ok := catalog.Lookup("database", " staging_db ")
	require.True(t, ok)
	require.Equal(t, OneOf{Key: "team", Values: []string{"Backend", "Platform"}}, p.Condition)
	_, ok = catalog.Lookup("database", "missing")
	require.False(t, ok)

	list := catalog.List()
	require.Len(t, list, 2)
	require.Equal(t, "database", list[0].ResourceType)

	source.rows = append(source.rows,
		models.AccessPolicy{ResourceType: "cloud", ResourceName: "broken", AutoApproveConditions: "team"},
		models.AccessPolicy{ResourceType: "cloud", ResourceName: "also_broken", AutoApproveConditions: "=x"},
	)
	err = catalog.Reload(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cloud:broken")
	require.Contains(t, err.Error(), "cloud:also_broken")
	require.Len(t, catalog.List(), 2)

	source.rows, source.err = nil, store.ErrUnavailable
	require.Error(t, catalog.Reload(ctx))
	_, ok = catalog.Lookup("saas", "figma")
	require.True(t, ok)

	_, err = NewCatalog(ctx, staticPolicies{err: errors.New("boom")})
	require.Error(t, err)
}
