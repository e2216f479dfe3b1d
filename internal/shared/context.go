package shared

import (
	"context"
	"strconv"
	"strings"
)

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// UserIDFromContext resolves the authenticated user ID from the session, if any.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
