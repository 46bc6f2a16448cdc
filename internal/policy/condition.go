// Package policy compiles access policies and decides access requests.
package policy

import (
	"fmt"
	"strings"

	"github.com/charlesng35/accessdesk/internal/models"
)

// Attributes resolves condition keys for the subject of an evaluation.
type Attributes interface {
	Attribute(key string) (string, bool)
}

// AttributeMap is a literal attribute set.
type AttributeMap map[string]string

func (m AttributeMap) Attribute(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// Expr is a compiled auto-approve condition.
type Expr interface {
	// Eval reports whether attrs satisfy the expression. When they do not,
	// unmet is the first clause that failed.
	Eval(attrs Attributes) (ok bool, unmet Expr)
	String() string
}

// Always is satisfied by every subject.
type Always struct{}

func (Always) Eval(Attributes) (bool, Expr) { return true, nil }
func (Always) String() string               { return models.NoConditions }

// Equals requires Key to equal Value.
type Equals struct {
	Key   string
	Value string
}

func (e Equals) Eval(attrs Attributes) (bool, Expr) {
	if matches(attrs, e.Key, e.Value) {
		return true, nil
	}
	return false, e
}

func (e Equals) String() string { return e.Key + "=" + e.Value }

// OneOf requires Key to equal any of Values.
type OneOf struct {
	Key    string
	Values []string
}

func (o OneOf) Eval(attrs Attributes) (bool, Expr) {
	for _, v := range o.Values {
		if matches(attrs, o.Key, v) {
			return true, nil
		}
	}
	return false, o
}

func (o OneOf) String() string { return o.Key + "=" + strings.Join(o.Values, "|") }

// And requires every clause.
type And []Expr

func (a And) Eval(attrs Attributes) (bool, Expr) {
	for _, clause := range a {
		if ok, unmet := clause.Eval(attrs); !ok {
			return false, unmet
		}
	}
	return true, nil
}

func (a And) String() string {
	parts := make([]string, len(a))
	for i, clause := range a {
		parts[i] = clause.String()
	}
	return strings.Join(parts, ",")
}

func matches(attrs Attributes, key, want string) bool {
	if attrs == nil {
		return false
	}
	got, ok := attrs.Attribute(key)
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want))
}

// ParseCondition compiles a condition literal: comma separated key=value
// clauses, all of which must hold, where a value may list alternatives
// separated by |. An empty literal or "none" compiles to Always.
func ParseCondition(raw string) (Expr, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, models.NoConditions) {
		return Always{}, nil
	}

	var clauses And
	for _, part := range strings.Split(raw, ",") {
		clause, err := parseClause(part)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", raw, err)
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return clauses, nil
}

func parseClause(part string) (Expr, error) {
	key, value, found := strings.Cut(strings.TrimSpace(part), "=")
	if !found {
		return nil, fmt.Errorf("clause %q has no '='", strings.TrimSpace(part))
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("clause %q has an empty key", strings.TrimSpace(part))
	}

	alternatives := strings.Split(value, "|")
	values := make([]string, 0, len(alternatives))
	for _, alt := range alternatives {
		alt = strings.TrimSpace(alt)
		if alt == "" {
			return nil, fmt.Errorf("clause %q has an empty value", strings.TrimSpace(part))
		}
		values = append(values, alt)
	}
	if len(values) == 1 {
		return Equals{Key: key, Value: values[0]}, nil
	}
	return OneOf{Key: key, Values: values}, nil
}

// withRole ANDs a job-role requirement into expr.
func withRole(expr Expr, role string) Expr {
	clause := Equals{Key: "role", Value: role}
	switch e := expr.(type) {
	case Always:
		return clause
	case And:
		return append(And{clause}, e...)
	default:
		return And{clause, expr}
	}
}
