package auth

import "context"

type identityKey struct{}

type Identity struct {
	UserID string
	Name   string
}

func WithIdentity(ctx context.Context, userID, name string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{UserID: userID, Name: name})
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
