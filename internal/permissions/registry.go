package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Permission describes a gateway capability. DependsOn lists permissions a
// holder must also have; Implies lists permissions granted along with it.
type Permission struct {
	ID          string
	Module      string
	DependsOn   []string
	Implies     []string
	Description string
}

var (
	// ErrUnknownPermission indicates a lookup for an unregistered permission.
	ErrUnknownPermission = errors.New("permission: unknown permission")
	// ErrCircularDependency signals that a dependency graph contains a cycle.
	ErrCircularDependency = errors.New("permission: circular dependency detected")

	errNilPermission = errors.New("permission: nil definition")
	errEmptyID       = errors.New("permission: id is required")
	errDuplicateID   = errors.New("permission: already registered")
	errSelfReference = errors.New("permission: cannot reference itself")
)

type registry struct {
	mu    sync.RWMutex
	perms map[string]*Permission
}

var global = &registry{perms: make(map[string]*Permission)}

// Register adds a permission definition to the global registry.
func Register(perm *Permission) error {
	if perm == nil {
		return errNilPermission
	}

	id := strings.TrimSpace(perm.ID)
	if id == "" {
		return errEmptyID
	}

	def := clonePermission(perm)
	def.ID = id
	def.Module = strings.TrimSpace(def.Module)

	var err error
	if def.DependsOn, err = normaliseIDs(def.DependsOn, id); err != nil {
		return err
	}
	if def.Implies, err = normaliseIDs(def.Implies, id); err != nil {
		return err
	}

	global.mu.Lock()
	defer global.mu.Unlock()

	if _, exists := global.perms[id]; exists {
		return fmt.Errorf("%w: %s", errDuplicateID, id)
	}
	global.perms[id] = def
	return nil
}

// Get returns a copy of the permission definition when registered.
func Get(id string) (*Permission, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()

	perm, ok := global.perms[id]
	if !ok {
		return nil, false
	}
	return clonePermission(perm), true
}

// GetAll returns a copy of all registered permissions keyed by ID.
func GetAll() map[string]*Permission {
	global.mu.RLock()
	defer global.mu.RUnlock()

	out := make(map[string]*Permission, len(global.perms))
	for id, perm := range global.perms {
		out[id] = clonePermission(perm)
	}
	return out
}

// IDs returns every registered permission id in sorted order.
func IDs() []string {
	all := GetAll()
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateDependencies ensures every dependency and implication is registered.
func ValidateDependencies() error {
	all := GetAll()
	for _, perm := range all {
		for _, ref := range append(append([]string(nil), perm.DependsOn...), perm.Implies...) {
			if _, ok := all[ref]; !ok {
				return fmt.Errorf("permission: %s references unknown permission %s", perm.ID, ref)
			}
		}
	}
	for id := range all {
		if _, err := ResolveDependencies(id); err != nil {
			return err
		}
	}
	return nil
}

// ResolveDependencies returns the transitive dependencies of permissionID.
func ResolveDependencies(permissionID string) ([]string, error) {
	all := GetAll()

	root, ok := all[permissionID]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownPermission, permissionID)
	}

	const (
		unvisited = iota
		inProgress
		done
	)
	state := make(map[string]int, len(all))
	var resolved []string

	var walk func(string) error
	walk = func(current string) error {
		perm, ok := all[current]
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownPermission, current)
		}
		switch state[current] {
		case inProgress:
			return fmt.Errorf("%w at %s", ErrCircularDependency, current)
		case done:
			return nil
		}

		state[current] = inProgress
		for _, dep := range perm.DependsOn {
			if err := walk(dep); err != nil {
				return err
			}
		}
		state[current] = done
		if current != permissionID {
			resolved = append(resolved, current)
		}
		return nil
	}

	for _, dep := range root.DependsOn {
		if err := walk(dep); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func clonePermission(perm *Permission) *Permission {
	if perm == nil {
		return nil
	}

	cp := *perm
	cp.DependsOn = append([]string(nil), perm.DependsOn...)
	cp.Implies = append([]string(nil), perm.Implies...)
	return &cp
}

func normaliseIDs(values []string, self string) ([]string, error) {
	seen := make(map[string]struct{}, len(values))
	var result []string

	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if value == self {
			return nil, fmt.Errorf("%w: %s", errSelfReference, self)
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result, nil
}

func unregister(id string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	delete(global.perms, id)
}
