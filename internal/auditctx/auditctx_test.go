package auditctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	//nolint:staticcheck // nil context is tolerated
	ctx := WithActor(nil, Actor{Email: "eve@company.com", IPAddress: "10.0.0.8", RequestID: "req-1"})
	actor, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "eve@company.com", actor.Email)

	meta := actor.Metadata()
	require.Equal(t, map[string]any{"ip_address": "10.0.0.8", "request_id": "req-1"}, meta)
}
