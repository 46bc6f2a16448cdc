package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charlesng35/accessdesk/internal/audit"
	iauth "github.com/charlesng35/accessdesk/internal/auth"
	"github.com/charlesng35/accessdesk/internal/models"
	"github.com/charlesng35/accessdesk/internal/store"
	apperrors "github.com/charlesng35/accessdesk/pkg/errors"
)

// Identity is a selectable simulated user.
type Identity struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Team    string `json:"team"`
	Manager string `json:"manager_email,omitempty"`
}

// Session is issued when an identity is selected.
type Session struct {
	Identity  Identity  `json:"identity"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IdentityService lets a caller act as one of the seeded employees. There is
// no credential check.
type IdentityService struct {
	employees store.Reader[models.Employee]
	tokens    *iauth.TokenService
	recorder  *audit.Recorder
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(employees store.Reader[models.Employee], tokens *iauth.TokenService, recorder *audit.Recorder) (*IdentityService, error) {
	if employees == nil || tokens == nil {
		return nil, errors.New("identity service: employees and token service are required")
	}
	return &IdentityService{employees: employees, tokens: tokens, recorder: recorder}, nil
}

// List returns every identity ordered by team, then name.
func (s *IdentityService) List(ctx context.Context) ([]Identity, error) {
	rows, err := s.employees.Find(ctx, store.All().OrderBy("team").OrderBy("name"))
	if err != nil {
		return nil, store.Classify(fmt.Errorf("identity service: list: %w", err))
	}
	out := make([]Identity, 0, len(rows))
	for _, e := range rows {
		out = append(out, toIdentity(e))
	}
	return out, nil
}

// Select issues a token for email.
func (s *IdentityService) Select(ctx context.Context, email string) (Session, error) {
	employee, err := s.employees.First(ctx, store.Where("email", normalizeEmail(email)))
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, apperrors.ErrNotFound.WithMessage("employee %s not found", email)
	}
	if err != nil {
		return Session{}, store.Classify(fmt.Errorf("identity service: load: %w", err))
	}

	token, expires, err := s.tokens.Issue(iauth.Identity{
		Email: employee.Email,
		Name:  employee.Name,
		Role:  employee.Role,
		Team:  employee.Team,
	})
	if err != nil {
		return Session{}, fmt.Errorf("identity service: %w", err)
	}

	s.recorder.Safe(ctx, audit.Event{
		Type:        audit.EventIdentitySelected,
		UserEmail:   employee.Email,
		Action:      "select_identity",
		Description: fmt.Sprintf("Acting as %s (%s)", employee.Name, employee.Role),
	})
	return Session{
		Identity:  toIdentity(*employee),
		Token:     token,
		ExpiresAt: expires,
	}, nil
}

func toIdentity(e models.Employee) Identity {
	return Identity{Email: e.Email, Name: e.Name, Role: e.Role, Team: e.Team, Manager: e.ManagerEmail}
}
