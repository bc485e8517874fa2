package middleware

import (
	"bufio"
	"context"
	"crypto/subtle"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"betclever/internal/logging"
	"betclever/internal/metrics"
	"betclever/internal/models"
	"betclever/internal/rate"
	"betclever/internal/util"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := uuid.NewString()
		r = r.WithContext(WithRequestID(r.Context(), rid))
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r)
	})
}

// SessionResolver turns a raw session cookie into the signed-in user.
type SessionResolver interface {
	ValidateSession(ctx context.Context, token string) (models.SessionUser, models.Session, error)
}

func Authn(resolver SessionResolver, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(cookieName)
			if err != nil || c.Value == "" {
				util.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required", RequestID(r.Context()))
				return
			}
			u, sess, err := resolver.ValidateSession(r.Context(), c.Value)
			if err != nil {
				util.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid session", RequestID(r.Context()))
				return
			}
			ctx := WithUser(r.Context(), u)
			ctx = WithSession(ctx, sess)
			ctx = WithSessionToken(ctx, c.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := User(r.Context())
		if !ok || !u.IsAdmin {
			util.WriteError(w, http.StatusForbidden, "forbidden", "admin role required", RequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func CSRFFromCookie(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			h := r.Header.Get("X-CSRF-Token")
			c, err := r.Cookie(cookieName)
			if err != nil || c.Value == "" || h == "" {
				util.WriteError(w, http.StatusForbidden, "csrf_failed", "missing csrf token", RequestID(r.Context()))
				return
			}
			if subtle.ConstantTimeCompare([]byte(h), []byte(c.Value)) != 1 {
				util.WriteError(w, http.StatusForbidden, "csrf_failed", "invalid csrf token", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit fails open when the limiter backend errors.
func RateLimit(l rate.Limiter, log logging.Logger, route string, limit int, window time.Duration, trustProxy bool) func(http.Handler) http.Handler {
	if log == nil {
		log = logging.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := route + ":" + ClientIP(r, trustProxy)
			ok, retry, err := l.Allow(r.Context(), key, limit, window)
			if err != nil {
				log.Warn(r.Context(), "rate limiter unavailable", "route", route, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				if retry > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				}
				util.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", RequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the hijacker for websocket upgrades.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func RequestLogger(log logging.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if log == nil {
		log = logging.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)
			elapsed := time.Since(start)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}
			m.ObserveRequest(r.Method, route, strconv.Itoa(sr.status), elapsed)
			log.Info(r.Context(), "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sr.status,
				"duration_ms", elapsed.Milliseconds(),
				"request_id", RequestID(r.Context()),
				"remote_ip", ClientIP(r, false),
			)
		})
	}
}
