package domain

import "context"

type clientIdentityKey struct{}

// WithClientIdentity guarda a identidade do cliente (ex.: IP) no contexto da requisição.
func WithClientIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, clientIdentityKey{}, identity)
}

func ClientIdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(clientIdentityKey{}).(string)
	return identity
}
