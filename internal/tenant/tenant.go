// Package tenant carries the tenant identifier of a request through context.
package tenant

import (
	"context"
	"regexp"
)

type contextKey struct{}

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{1,48}$`)

// Valid reports whether id is safe to use as part of a schema name or lock key.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the tenant id in ctx, or "" when none was set.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
