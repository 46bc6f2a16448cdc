// Package integrations holds the collaborators the access core calls out to:
// a ticketing system and a source-control host. The bundled implementations
// simulate the remote service by sleeping and logging.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/charlesng35/accessdesk/pkg/logger"
)

// Ticket identifies a ticket created in the external tracker.
type Ticket struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Ticketing opens tickets for requests that need an external paper trail.
type Ticketing interface {
	CreateTicket(ctx context.Context, summary, description string) (Ticket, error)
}

// Provisioner grants repository access on the source-control host.
type Provisioner interface {
	Invite(ctx context.Context, email, repository string) error
}

// Config configures the simulated integrations.
type Config struct {
	Latency       time.Duration
	TicketBaseURL string
	TicketProject string
	Organization  string
}

var errEmptySummary = errors.New("ticketing: summary is required")

// MockTicketing simulates a Jira style tracker.
type MockTicketing struct {
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	tickets []Ticket
}

// NewMockTicketing constructs the simulated tracker.
func NewMockTicketing(cfg Config) *MockTicketing {
	if cfg.TicketBaseURL == "" {
		cfg.TicketBaseURL = "https://jira.company.com"
	}
	if cfg.TicketProject == "" {
		cfg.TicketProject = "SEC"
	}
	return &MockTicketing{cfg: cfg, log: logger.WithModule("ticketing")}
}

func (m *MockTicketing) CreateTicket(ctx context.Context, summary, description string) (Ticket, error) {
	if strings.TrimSpace(summary) == "" {
		return Ticket{}, errEmptySummary
	}
	if err := simulate(ctx, m.cfg.Latency); err != nil {
		return Ticket{}, err
	}

	key := fmt.Sprintf("%s-%s", m.cfg.TicketProject, ulid.Make().String()[20:])
	ticket := Ticket{
		ID:  key,
		URL: strings.TrimRight(m.cfg.TicketBaseURL, "/") + "/browse/" + key,
	}

	m.mu.Lock()
	m.tickets = append(m.tickets, ticket)
	m.mu.Unlock()

	m.log.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("summary", summary),
		zap.Int("description_length", len(description)),
	)
	return ticket, nil
}

// Tickets returns the tickets created so far.
func (m *MockTicketing) Tickets() []Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Ticket(nil), m.tickets...)
}

// Invitation records a simulated repository invite.
type Invitation struct {
	Email      string
	Repository string
}

// MockProvisioner simulates a GitHub organisation.
type MockProvisioner struct {
	cfg Config
	log *zap.Logger

	mu      sync.Mutex
	invites []Invitation
}

// NewMockProvisioner constructs the simulated source-control host.
func NewMockProvisioner(cfg Config) *MockProvisioner {
	if cfg.Organization == "" {
		cfg.Organization = "company"
	}
	return &MockProvisioner{cfg: cfg, log: logger.WithModule("source_control")}
}

func (m *MockProvisioner) Invite(ctx context.Context, email, repository string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(repository) == "" {
		return errors.New("source control: email and repository are required")
	}
	if err := simulate(ctx, m.cfg.Latency); err != nil {
		return err
	}

	m.mu.Lock()
	m.invites = append(m.invites, Invitation{Email: email, Repository: repository})
	m.mu.Unlock()

	m.log.Info("repository invite sent",
		zap.String("email", email),
		zap.String("repository", m.cfg.Organization+"/"+repository),
	)
	return nil
}

// Invitations returns the invites sent so far.
func (m *MockProvisioner) Invitations() []Invitation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Invitation(nil), m.invites...)
}

func simulate(ctx context.Context, latency time.Duration) error {
	if latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
