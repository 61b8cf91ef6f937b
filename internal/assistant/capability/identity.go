package capability

import "context"

type identityKey struct{}

// ContextWithIdentity attaches the resolved caller identity for the duration
// of a turn. Model-invoked tools run deep inside the generation loop and have
// no argument path for the identity, so it travels on the context.
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the caller identity attached to the turn, if any.
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(identityKey{}).(string)
	return identity, ok && identity != ""
}
