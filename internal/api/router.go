package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"

	"betclever/internal/captcha"
	"betclever/internal/config"
	"betclever/internal/logging"
	"betclever/internal/metrics"
	"betclever/internal/middleware"
	"betclever/internal/rate"
	"betclever/internal/service"
	"betclever/internal/status"
	"betclever/internal/store"
	"betclever/internal/upload"
	"betclever/internal/util"
	"betclever/internal/version"
)

// Deps are the collaborators of the router besides config and service.
// Nil fields fall back to in-process defaults.
type Deps struct {
	Limiter  rate.Limiter
	Captcha  captcha.Verifier
	Log      logging.Logger
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
	// Events serves the admin websocket change feed.
	Events http.Handler
}

type Handlers struct {
	cfg             config.Config
	svc             *service.Service
	limiter         rate.Limiter
	captchaVerifier captcha.Verifier
	log             logging.Logger
}

func NewRouter(cfg config.Config, svc *service.Service, deps Deps) http.Handler {
	h := &Handlers{
		cfg:             cfg,
		svc:             svc,
		limiter:         deps.Limiter,
		captchaVerifier: deps.Captcha,
		log:             deps.Log,
	}
	if h.limiter == nil {
		h.limiter = rate.NewMemory()
	}
	if h.captchaVerifier == nil {
		h.captchaVerifier = captcha.NewVerifier(cfg)
	}
	if h.log == nil {
		h.log = logging.Nop()
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	loginLimit, registerLimit := cfg.RateLimitLogin, cfg.RateLimitRegister
	if loginLimit <= 0 {
		loginLimit = 20
	}
	if registerLimit <= 0 {
		registerLimit = 10
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger(h.log, deps.Metrics))
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token"},
			ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", h.Ready)
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Registry))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			util.WriteJSON(w, 200, version.Current())
		})
		r.With(middleware.RateLimit(h.limiter, h.log, "register", registerLimit, window, cfg.TrustProxy)).Post("/register", h.Register)
		r.With(middleware.RateLimit(h.limiter, h.log, "login", loginLimit, window, cfg.TrustProxy)).Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authn(h.svc, cfg.SessionCookieName))
			r.Get("/me", h.Me)
			r.Get("/profile", h.GetProfile)
			r.Get("/documents", h.ListDocuments)
			r.Get("/pipeline", h.Pipeline)
			r.Get("/guide", h.Guide)

			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRFFromCookie(cfg.CSRFCookieName))
				r.Put("/profile", h.SubmitProfile)
				r.Post("/documents", h.UploadDocuments)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.AdminOnly)
				r.Get("/users", h.AdminListUsers)
				r.Get("/verifications", h.AdminVerifications)
				r.Get("/users/{id}/profile", h.AdminUserProfile)
				r.Get("/users/{id}/documents", h.AdminUserDocuments)
				r.Get("/users/{id}/documents/{bucket}/{index}", h.AdminDownloadDocument)
				if deps.Events != nil {
					r.Method(http.MethodGet, "/events", deps.Events)
				}
				r.Group(func(r chi.Router) {
					r.Use(middleware.CSRFFromCookie(cfg.CSRFCookieName))
					r.Post("/users/{id}/password", h.AdminChangePassword)
					r.Delete("/users/{id}", h.AdminDeleteUser)
					r.Put("/users/{id}/review-status", h.AdminSetReviewStatus)
					r.Put("/users/{id}/project-status", h.AdminSetProjectStatus)
					r.Delete("/users/{id}/documents/{bucket}/{index}", h.AdminDeleteDocument)
				})
			})
		})
	})

	return r
}

func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ready := map[string]any{"checked_at": time.Now().UTC().Format(time.RFC3339)}
	comps := map[string]any{}
	ready["components"] = comps
	ok := true
	for name, err := range h.svc.Readiness(r.Context()) {
		if err != nil {
			ok = false
			comps[name] = map[string]any{"ok": false, "error": err.Error()}
			continue
		}
		comps[name] = map[string]any{"ok": true}
	}
	if !ok {
		ready["status"] = "degraded"
		util.WriteJSON(w, 503, ready)
		return
	}
	ready["status"] = "ready"
	util.WriteJSON(w, 200, ready)
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	TermsAccepted   bool   `json:"terms_accepted"`
	CaptchaToken    string `json:"captcha_token"`
}

type authResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	IsAdmin   bool   `json:"is_admin"`
	CSRFToken string `json:"csrf_token"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	if h.cfg.CaptchaEnabled {
		ip := middleware.ClientIP(r, h.cfg.TrustProxy)
		if err := h.captchaVerifier.Verify(r.Context(), req.CaptchaToken, ip); err != nil {
			if errors.Is(err, captcha.ErrCaptchaUnavailable) {
				util.WriteError(w, 503, "captcha_unavailable", "captcha verification unavailable", middleware.RequestID(r.Context()))
				return
			}
			util.WriteError(w, 400, "captcha_required", "captcha validation failed", middleware.RequestID(r.Context()))
			return
		}
	}
	token, user, err := h.svc.Register(r.Context(), service.RegisterRequest{
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		TermsAccepted:   req.TermsAccepted,
	}, middleware.ClientIP(r, h.cfg.TrustProxy), r.UserAgent())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.replaceSession(r)
	csrfToken := randomToken()
	h.setAuthCookies(w, r, token, csrfToken)
	util.WriteJSON(w, 201, authResponse{UserID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin, CSRFToken: csrfToken})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	token, user, err := h.svc.Login(r.Context(), req.Email, req.Password, middleware.ClientIP(r, h.cfg.TrustProxy), r.UserAgent())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.replaceSession(r)
	csrfToken := randomToken()
	h.setAuthCookies(w, r, token, csrfToken)
	util.WriteJSON(w, 200, authResponse{UserID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin, CSRFToken: csrfToken})
}

// replaceSession drops the session the client held before signing in, so a
// client never owns more than one.
func (h *Handlers) replaceSession(r *http.Request) {
	c, err := r.Cookie(h.cfg.SessionCookieName)
	if err != nil || c.Value == "" {
		return
	}
	if err := h.svc.Logout(r.Context(), c.Value); err != nil {
		h.log.Warn(r.Context(), "drop previous session", "error", err)
	}
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.replaceSession(r)
	h.clearAuthCookies(w, r)
	util.WriteJSON(w, 200, map[string]string{"status": "ok"})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	util.WriteJSON(w, 200, u)
}

func randomToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func (h *Handlers) setAuthCookies(w http.ResponseWriter, r *http.Request, sessionToken, csrfToken string) {
	secure := h.cfg.ResolveCookieSecure(r)
	maxAge := int(h.cfg.SessionAbsoluteDuration().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (h *Handlers) clearAuthCookies(w http.ResponseWriter, r *http.Request) {
	secure := h.cfg.ResolveCookieSecure(r)
	expiredAt := time.Unix(1, 0).UTC()
	for _, c := range []struct {
		name     string
		httpOnly bool
	}{{h.cfg.SessionCookieName, true}, {h.cfg.CSRFCookieName, false}} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     "/",
			HttpOnly: c.httpOnly,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
			Expires:  expiredAt,
		})
	}
}

type validationErrorBody struct {
	util.APIError
	Fields map[string]string `json:"fields"`
}

// writeError maps service and store errors to status codes and stable codes.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rid := middleware.RequestID(r.Context())
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		util.WriteJSON(w, 400, validationErrorBody{
			APIError: util.APIError{Code: "validation_failed", Message: "Bitte prüfen Sie Ihre Angaben.", RequestID: rid},
			Fields:   verr.Fields,
		})
		return
	}
	httpStatus, code := errorStatus(err)
	if httpStatus >= 500 {
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "request_id", rid, "error", err)
		util.WriteError(w, httpStatus, code, "internal error", rid)
		return
	}
	util.WriteError(w, httpStatus, code, err.Error(), rid)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_email"
	case errors.Is(err, service.ErrPasswordMismatch):
		return http.StatusBadRequest, "password_mismatch"
	case errors.Is(err, service.ErrPasswordTooShort), errors.Is(err, service.ErrPasswordTooLong):
		return http.StatusBadRequest, "invalid_password"
	case errors.Is(err, store.ErrTermsNotAccepted):
		return http.StatusBadRequest, "terms_not_accepted"
	case errors.Is(err, store.ErrEmailTaken):
		return http.StatusConflict, "email_taken"
	case errors.Is(err, service.ErrProfileLocked):
		return http.StatusConflict, "profile_locked"
	case errors.Is(err, service.ErrDocumentsMissing):
		return http.StatusBadRequest, "documents_missing"
	case errors.Is(err, service.ErrAdminProtected):
		return http.StatusForbidden, "admin_protected"
	case errors.Is(err, service.ErrInvalidStatus):
		return http.StatusBadRequest, "invalid_status"
	case errors.Is(err, status.ErrTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, store.ErrUnknownBucket):
		return http.StatusBadRequest, "unknown_bucket"
	case errors.Is(err, store.ErrIndexOutOfRange):
		return http.StatusNotFound, "document_not_found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, store.ErrInvalidBirthDate):
		return http.StatusBadRequest, "invalid_birth_date"
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "file_too_large"
	case errors.Is(err, upload.ErrBadType):
		return http.StatusUnsupportedMediaType, "unsupported_file_type"
	}
	return http.StatusInternalServerError, "internal_error"
}
