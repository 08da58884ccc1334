package middleware

import (
	"context"

	"github.com/google/uuid"
)

type userIDKey struct{}

// WithUserID records the authenticated user on ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// AccountIDFromContext parses the authenticated user id.
func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
