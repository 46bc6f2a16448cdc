package integrations

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMockTicketing(t *testing.T) {
	tickets := NewMockTicketing(Config{TicketBaseURL: "https://jira.example.com/", TicketProject: "ACC"})

	ticket, err := tickets.CreateTicket(context.Background(), "API key access: stripe", "Requested by eve")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ticket.ID, "ACC-"))
	require.Equal(t, "https://jira.example.com/browse/"+ticket.ID, ticket.URL)
	require.Len(t, tickets.Tickets(), 1)

	_, err = tickets.CreateTicket(context.Background(), " ", "")
	require.ErrorIs(t, err, errEmptySummary)
}

func TestMockProvisioner(t *testing.T) {
	p := NewMockProvisioner(Config{})
	require.NoError(t, p.Invite(context.Background(), "eve@company.com", "platform-api"))
	require.Equal(t, []Invitation{{Email: "eve@company.com", Repository: "platform-api"}}, p.Invitations())

	require.Error(t, p.Invite(context.Background(), "", "platform-api"))
}

func TestSimulatedLatencyHonoursCancellation(t *testing.T) {
	tickets := NewMockTicketing(Config{Latency: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tickets.CreateTicket(ctx, "summary", "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Empty(t, tickets.Tickets())
}
