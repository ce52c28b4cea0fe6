package internal

import "context"

type ctxKey string

const ContextUserIDKey ctxKey = "userID"

// UserIDFromContext returns the authenticated user id, or 0 when the request is anonymous.
func UserIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if userID, ok := ctx.Value(ContextUserIDKey).(int64); ok {
		return userID
	}
	return 0
}

func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ContextUserIDKey, userID)
}
