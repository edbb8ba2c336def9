package common

import "context"

type ctxKey string

const actorKey ctxKey = "auth/actor"

// WithActor stores the authenticated admin subject on the provided context.
func WithActor(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, actorKey, subject)
}

// Actor extracts the authenticated admin subject from the context if present.
func Actor(ctx context.Context) (string, bool) {
	v := ctx.Value(actorKey)
	if v == nil {
		return "", false
	}
	subject, ok := v.(string)
	return subject, ok
}
