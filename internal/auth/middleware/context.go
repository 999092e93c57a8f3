package auth

import "context"

type ctxKey string

const ctxKeySub ctxKey = "sub"

// WithUserID stores the authenticated user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxKeySub, userID)
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxKeySub).(int64)
	return id, ok
}
