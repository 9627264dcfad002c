package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type userIDKey struct{}

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserID(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(userIDKey{}).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// Default returns ctx, or context.Background() when ctx is nil, so platform
// clients never pass a nil context into net/http.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
