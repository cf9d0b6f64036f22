package shared

import "context"

type actorContextKey struct{}

// SystemActor names changes made without a caller identity.
const SystemActor = "system"

// ContextWithActor stores the acting user name in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting user, defaulting to SystemActor.
func ActorFromContext(ctx context.Context) string {
	if actor, _ := ctx.Value(actorContextKey{}).(string); actor != "" {
		return actor
	}
	return SystemActor
}
