package session

import "context"

type ctxKey int

const sessionCtxKey ctxKey = 1

func WithSession(ctx context.Context, s *Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionCtxKey, s)
}

func FromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sessionCtxKey).(*Session)
	return s
}
