package middleware

import (
	"context"
	"net/http"
	"strings"
)

type userKey string

const userIDKey userKey = "user_id"

// Identity lifts the opaque caller id forwarded by the authenticating gateway
// onto the request context. An absent header leaves the request anonymous;
// this service records identity but does not enforce permissions.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if uid := strings.TrimSpace(r.Header.Get("X-User-ID")); uid != "" {
			r = r.WithContext(ContextWithUserID(r.Context(), uid))
		}
		next.ServeHTTP(w, r)
	})
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if strings.TrimSpace(userID) == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}
