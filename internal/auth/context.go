package auth

import "context"

type ctxKey int

const ownerKey ctxKey = iota // stores the authenticated owner (base58 public key)

// WithOwner stores the authenticated owner in ctx.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFromContext returns the authenticated owner, or "" if none.
func OwnerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey).(string); ok {
		return v
	}
	return ""
}
