package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"betclever/internal/config"
	"betclever/internal/events"
	"betclever/internal/logging"
	"betclever/internal/metrics"
	"betclever/internal/models"
	"betclever/internal/notify"
	"betclever/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrPasswordTooLong    = errors.New("password too long")
	ErrProfileLocked      = errors.New("profile is submitted and locked for review")
	ErrDocumentsMissing   = errors.New("identity, card and bank documents are required")
	ErrAdminProtected     = errors.New("admin accounts cannot be deleted")
	ErrInvalidStatus      = errors.New("invalid status")
)

type Service struct {
	cfg     config.Config
	st      *store.Store
	sender  notify.Sender
	bus     events.Bus
	metrics *metrics.Metrics
	log     logging.Logger
	now     func() time.Time
}

// New wires the service. sender, bus and log may be nil.
func New(cfg config.Config, st *store.Store, sender notify.Sender, bus events.Bus, m *metrics.Metrics, log logging.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	if sender == nil {
		sender = notify.LogSender{Log: log}
	}
	return &Service{cfg: cfg, st: st, sender: sender, bus: bus, metrics: m, log: log, now: time.Now}
}

func (s *Service) Store() *store.Store { return s.st }

func hashUA(ua string) string {
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])
}

func (s *Service) publish(ctx context.Context, t events.Type, userID string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.Event{Type: t, UserID: userID, At: s.now().UTC()}); err != nil {
		s.log.Warn(ctx, "publish event failed", "type", string(t), "user_id", userID, "error", err)
	}
}

func (s *Service) ValidatePassword(pw string) error {
	n := len([]rune(pw))
	if n < s.cfg.PasswordMinLength {
		return fmt.Errorf("%w: at least %d characters", ErrPasswordTooShort, s.cfg.PasswordMinLength)
	}
	if s.cfg.PasswordMaxLength > 0 && n > s.cfg.PasswordMaxLength {
		return fmt.Errorf("%w: at most %d characters", ErrPasswordTooLong, s.cfg.PasswordMaxLength)
	}
	return nil
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	addr, err := netmail.ParseAddress(email)
	return err == nil && addr.Address == email
}

type RegisterRequest struct {
	Email           string
	Password        string
	PasswordConfirm string
	TermsAccepted   bool
}

// Register creates a user account and signs it in. The returned token is
// the raw session cookie value.
func (s *Service) Register(ctx context.Context, req RegisterRequest, ip, userAgent string) (string, models.SessionUser, error) {
	if !validEmail(req.Email) {
		s.metrics.ObserveRegistration("invalid")
		return "", models.SessionUser{}, ErrInvalidEmail
	}
	if req.Password != req.PasswordConfirm {
		s.metrics.ObserveRegistration("invalid")
		return "", models.SessionUser{}, ErrPasswordMismatch
	}
	if err := s.ValidatePassword(req.Password); err != nil {
		s.metrics.ObserveRegistration("invalid")
		return "", models.SessionUser{}, err
	}
	u, err := s.st.Accounts.Register(ctx, req.Email, req.Password, req.TermsAccepted)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmailTaken):
			s.metrics.ObserveRegistration("duplicate")
		case errors.Is(err, store.ErrTermsNotAccepted):
			s.metrics.ObserveRegistration("terms")
		default:
			s.metrics.ObserveRegistration("error")
		}
		return "", models.SessionUser{}, err
	}
	s.metrics.ObserveRegistration("ok")
	s.publish(ctx, events.AccountRegistered, u.ID)
	s.log.Info(ctx, "account registered", "user_id", u.ID)

	raw, _, err := s.st.Sessions.Create(ctx, u, ip, hashUA(userAgent))
	if err != nil {
		return "", models.SessionUser{}, err
	}
	return raw, u, nil
}

func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (string, models.SessionUser, error) {
	u, err := s.st.Accounts.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			s.metrics.ObserveLogin("invalid")
			return "", models.SessionUser{}, ErrInvalidCredentials
		}
		s.metrics.ObserveLogin("error")
		return "", models.SessionUser{}, err
	}
	raw, _, err := s.st.Sessions.Create(ctx, u, ip, hashUA(userAgent))
	if err != nil {
		s.metrics.ObserveLogin("error")
		return "", models.SessionUser{}, err
	}
	s.metrics.ObserveLogin("ok")
	return raw, u, nil
}

// ValidateSession resolves a session cookie. The user projection is
// refreshed from the account so deleted accounts lose access at once.
func (s *Service) ValidateSession(ctx context.Context, rawToken string) (models.SessionUser, models.Session, error) {
	sess, err := s.st.Sessions.Get(ctx, rawToken)
	if err != nil {
		return models.SessionUser{}, models.Session{}, ErrInvalidCredentials
	}
	acct, err := s.st.Accounts.Get(ctx, sess.User.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = s.st.Sessions.Delete(ctx, rawToken)
		}
		return models.SessionUser{}, models.Session{}, ErrInvalidCredentials
	}
	u := acct.SessionUser()
	sess.User = u
	return u, sess, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	if strings.TrimSpace(rawToken) == "" {
		return nil
	}
	return s.st.Sessions.Delete(ctx, rawToken)
}

type prober interface {
	Probe(ctx context.Context) error
}

// Readiness reports per-component health. The smtp component is only
// present when the configured sender can be probed.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	out := map[string]error{"store": s.st.Ping(ctx)}
	if p, ok := s.sender.(prober); ok {
		out["smtp"] = p.Probe(ctx)
	}
	return out
}
