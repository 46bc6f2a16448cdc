package auditctx

import "context"

// Actor captures contextual information about the caller that initiated a request.
type Actor struct {
	Email     string
	IPAddress string
	UserAgent string
	RequestID string
}

type actorContextKey struct{}

// WithActor injects actor metadata into the supplied context, returning a derived context that
// callers can pass down into component layers for audit logging.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		return context.WithValue(context.Background(), actorContextKey{}, actor)
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext extracts previously stored actor metadata from the context.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}

// Metadata renders the non-empty actor fields as audit metadata entries.
func (a Actor) Metadata() map[string]any {
	out := make(map[string]any, 3)
	if a.IPAddress != "" {
		out["ip_address"] = a.IPAddress
	}
	if a.UserAgent != "" {
		out["user_agent"] = a.UserAgent
	}
	if a.RequestID != "" {
		out["request_id"] = a.RequestID
	}
	return out
}
