package idempotency

import (
	"context"
	"unicode"
)

const (
	Header       = "Idempotency-Key"
	MaxKeyLength = 255
)

type keyCtx struct{}

func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, keyCtx{}, key)
}

// KeyFromContext returns the request's idempotency key, or "" when the
// caller sent none.
func KeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(keyCtx{}).(string)
	return key
}

func ValidKey(key string) bool {
	if key == "" || len(key) > MaxKeyLength {
		return false
	}
	for _, r := range key {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
