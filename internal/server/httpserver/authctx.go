package httpserver

import (
	"context"
)

type ctxKey string

const sessionKey ctxKey = "pw.session"

// WithSession stores the signed-in wallet address in context.
func WithSession(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, sessionKey, addr)
}

// SessionFromCtx fetches the signed-in wallet address from context.
func SessionFromCtx(ctx context.Context) (string, bool) {
	v := ctx.Value(sessionKey)
	if v == nil {
		return "", false
	}
	addr, ok := v.(string)
	return addr, ok && addr != ""
}
