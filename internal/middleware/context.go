package middleware

import (
	"context"
	"net/http"

	"betclever/internal/models"
)

type ctxKey string

const (
	ctxRequestID ctxKey = "request_id"
	ctxUser      ctxKey = "user"
	ctxSession   ctxKey = "session"
	ctxToken     ctxKey = "session_token"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxRequestID).(string)
	return v
}

func WithUser(ctx context.Context, u models.SessionUser) context.Context {
	return context.WithValue(ctx, ctxUser, u)
}

func User(ctx context.Context) (models.SessionUser, bool) {
	u, ok := ctx.Value(ctxUser).(models.SessionUser)
	return u, ok
}

func WithSession(ctx context.Context, s models.Session) context.Context {
	return context.WithValue(ctx, ctxSession, s)
}

func Session(ctx context.Context) (models.Session, bool) {
	s, ok := ctx.Value(ctxSession).(models.Session)
	return s, ok
}

// WithSessionToken keeps the raw cookie value so logout can drop the record.
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxToken, token)
}

func SessionToken(ctx context.Context) string {
	v, _ := ctx.Value(ctxToken).(string)
	return v
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "same-origin")
		w.Header().Set(
			"Content-Security-Policy",
			"default-src 'self'; "+
				"img-src 'self' data: blob:; "+
				"style-src 'self' 'unsafe-inline'; "+
				"font-src 'self' data:; "+
				"connect-src 'self' wss:; "+
				"frame-src 'self' blob:; "+
				"script-src 'self'; frame-ancestors 'none'; base-uri 'self'",
		)
		next.ServeHTTP(w, r)
	})
}
