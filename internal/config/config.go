package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	AppEnv     string
	LogLevel   string

	StoreBackend      string
	DBPath            string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	BlobBackend string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	SessionCookieName   string
	SessionIdleMinutes  int
	SessionAbsoluteHour int
	CSRFCookieName      string
	CookieSecureMode    string
	TrustProxy          bool
	CORSAllowedOrigins  []string

	CaptchaEnabled   bool
	CaptchaProvider  string
	CaptchaVerifyURL string
	CaptchaSecret    string

	PasswordMinLength int
	PasswordMaxLength int

	RateLimitLogin    int
	RateLimitRegister int
	RateLimitWindow   time.Duration

	UploadMaxFileBytes    int64
	UploadMaxRequestBytes int64

	StatusPolicy string
	EventsBus    string

	HTTPReadTimeoutSec       int
	HTTPReadHeaderTimeoutSec int
	HTTPWriteTimeoutSec      int
	HTTPIdleTimeoutSec       int

	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	NotifySender string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:               env("LISTEN_ADDR", ":8080"),
		AppEnv:                   env("APP_ENV", "development"),
		LogLevel:                 env("LOG_LEVEL", "info"),
		StoreBackend:             strings.ToLower(env("STORE_BACKEND", "sqlite")),
		DBPath:                   env("APP_DB_PATH", "./data/app.db"),
		DBDSN:                    env("APP_DB_DSN", ""),
		DBMaxOpenConns:           envInt("APP_DB_MAX_OPEN_CONNS", 4),
		DBMaxIdleConns:           envInt("APP_DB_MAX_IDLE_CONNS", 2),
		DBConnMaxLifetime:        time.Duration(envInt("APP_DB_CONN_MAX_LIFETIME_MIN", 30)) * time.Minute,
		RedisAddr:                env("REDIS_ADDR", ""),
		RedisPassword:            env("REDIS_PASSWORD", ""),
		RedisDB:                  envInt("REDIS_DB", 0),
		RedisPrefix:              env("REDIS_PREFIX", "betclever:"),
		BlobBackend:              strings.ToLower(env("BLOB_BACKEND", "inline")),
		S3Bucket:                 env("S3_BUCKET", ""),
		S3Region:                 env("S3_REGION", "us-east-1"),
		S3Endpoint:               env("S3_ENDPOINT", ""),
		S3AccessKey:              env("S3_ACCESS_KEY", ""),
		S3SecretKey:              env("S3_SECRET_KEY", ""),
		SessionCookieName:        env("SESSION_COOKIE_NAME", "betclever_session"),
		SessionIdleMinutes:       envInt("SESSION_IDLE_MINUTES", 60),
		SessionAbsoluteHour:      envInt("SESSION_ABSOLUTE_HOURS", 24*7),
		CSRFCookieName:           env("CSRF_COOKIE_NAME", "betclever_csrf"),
		CookieSecureMode:         cookieSecureMode(),
		TrustProxy:               envBool("TRUST_PROXY", false),
		CORSAllowedOrigins:       envCSV("CORS_ALLOWED_ORIGINS"),
		CaptchaEnabled:           envBool("CAPTCHA_ENABLED", false),
		CaptchaProvider:          strings.ToLower(env("CAPTCHA_PROVIDER", "turnstile")),
		CaptchaVerifyURL:         env("CAPTCHA_VERIFY_URL", ""),
		CaptchaSecret:            env("CAPTCHA_SECRET", ""),
		PasswordMinLength:        envInt("PASSWORD_MIN_LENGTH", 8),
		PasswordMaxLength:        envInt("PASSWORD_MAX_LENGTH", 128),
		RateLimitLogin:           envInt("RATE_LIMIT_LOGIN", 10),
		RateLimitRegister:        envInt("RATE_LIMIT_REGISTER", 5),
		RateLimitWindow:          time.Duration(envInt("RATE_LIMIT_WINDOW_SEC", 60)) * time.Second,
		UploadMaxFileBytes:       int64(envInt("UPLOAD_MAX_FILE_MB", 10)) << 20,
		UploadMaxRequestBytes:    int64(envInt("UPLOAD_MAX_REQUEST_MB", 30)) << 20,
		StatusPolicy:             strings.ToLower(env("STATUS_POLICY", "permissive")),
		EventsBus:                strings.ToLower(env("EVENTS_BUS", "local")),
		HTTPReadTimeoutSec:       envInt("HTTP_READ_TIMEOUT_SEC", 30),
		HTTPReadHeaderTimeoutSec: envInt("HTTP_READ_HEADER_TIMEOUT_SEC", 5),
		HTTPWriteTimeoutSec:      envInt("HTTP_WRITE_TIMEOUT_SEC", 60),
		HTTPIdleTimeoutSec:       envInt("HTTP_IDLE_TIMEOUT_SEC", 60),
		BootstrapAdminEmail:      env("BOOTSTRAP_ADMIN_EMAIL", "admin@betclever.de"),
		BootstrapAdminPassword:   env("BOOTSTRAP_ADMIN_PASSWORD", "Ver4Wittert!Ver4Wittert!"),
		NotifySender:             strings.ToLower(env("NOTIFY_SENDER", "log")),
		SMTPHost:                 env("SMTP_HOST", "127.0.0.1"),
		SMTPPort:                 envInt("SMTP_PORT", 587),
		SMTPUsername:             env("SMTP_USERNAME", ""),
		SMTPPassword:             env("SMTP_PASSWORD", ""),
		SMTPFrom:                 env("SMTP_FROM", "noreply@betclever.de"),
	}

	if cfg.SessionIdleMinutes <= 0 || cfg.SessionAbsoluteHour <= 0 {
		return Config{}, fmt.Errorf("session timeouts must be positive")
	}
	if cfg.DBMaxOpenConns <= 0 || cfg.DBMaxIdleConns < 0 {
		return Config{}, fmt.Errorf("invalid DB pool config")
	}
	if cfg.PasswordMinLength < 8 {
		return Config{}, fmt.Errorf("password min length must be >= 8")
	}
	if cfg.PasswordMaxLength < cfg.PasswordMinLength {
		return Config{}, fmt.Errorf("password max length must be >= min length")
	}
	if cfg.UploadMaxFileBytes <= 0 || cfg.UploadMaxRequestBytes < cfg.UploadMaxFileBytes {
		return Config{}, fmt.Errorf("upload limits must be positive and request limit >= file limit")
	}
	if cfg.RateLimitLogin <= 0 || cfg.RateLimitRegister <= 0 || cfg.RateLimitWindow <= 0 {
		return Config{}, fmt.Errorf("rate limits must be positive")
	}

	switch cfg.StoreBackend {
	case "memory", "sqlite":
	case "postgres", "mysql":
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return Config{}, fmt.Errorf("APP_DB_DSN is required for STORE_BACKEND=%s", cfg.StoreBackend)
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("REDIS_ADDR is required for STORE_BACKEND=redis")
		}
	default:
		return Config{}, fmt.Errorf("STORE_BACKEND must be one of: memory, sqlite, postgres, mysql, redis")
	}
	switch cfg.BlobBackend {
	case "inline":
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return Config{}, fmt.Errorf("S3_BUCKET is required for BLOB_BACKEND=s3")
		}
	default:
		return Config{}, fmt.Errorf("BLOB_BACKEND must be one of: inline, s3")
	}
	switch cfg.EventsBus {
	case "local":
	case "redis":
		if cfg.RedisAddr == "" {
			return Config{}, fmt.Errorf("REDIS_ADDR is required for EVENTS_BUS=redis")
		}
	default:
		return Config{}, fmt.Errorf("EVENTS_BUS must be one of: local, redis")
	}
	switch cfg.StatusPolicy {
	case "permissive", "strict":
	default:
		return Config{}, fmt.Errorf("STATUS_POLICY must be one of: permissive, strict")
	}
	switch cfg.NotifySender {
	case "log":
	case "smtp":
		if cfg.SMTPPort <= 0 || strings.TrimSpace(cfg.SMTPHost) == "" {
			return Config{}, fmt.Errorf("invalid SMTP host/port")
		}
	default:
		return Config{}, fmt.Errorf("NOTIFY_SENDER must be one of: log, smtp")
	}
	switch cfg.CookieSecureMode {
	case "always", "never", "auto":
	default:
		return Config{}, fmt.Errorf("COOKIE_SECURE_MODE must be one of: always, never, auto")
	}
	if cfg.CookieSecureMode == "never" && !isLocalListen(cfg.ListenAddr) {
		return Config{}, fmt.Errorf("insecure cookies are allowed only for local listen addresses")
	}
	if strings.TrimSpace(cfg.BootstrapAdminEmail) == "" || len(cfg.BootstrapAdminPassword) < cfg.PasswordMinLength {
		return Config{}, fmt.Errorf("bootstrap admin needs an email and a password of at least %d chars", cfg.PasswordMinLength)
	}
	if cfg.CaptchaEnabled {
		if strings.TrimSpace(cfg.CaptchaSecret) == "" {
			return Config{}, fmt.Errorf("CAPTCHA_SECRET is required when CAPTCHA_ENABLED=true")
		}
		if strings.TrimSpace(cfg.CaptchaVerifyURL) == "" {
			switch cfg.CaptchaProvider {
			case "turnstile", "":
				cfg.CaptchaVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
			case "hcaptcha":
				cfg.CaptchaVerifyURL = "https://hcaptcha.com/siteverify"
			default:
				return Config{}, fmt.Errorf("unsupported CAPTCHA_PROVIDER: %s", cfg.CaptchaProvider)
			}
		}
	}
	return cfg, nil
}

func (c Config) SessionIdleDuration() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

func (c Config) SessionAbsoluteDuration() time.Duration {
	return time.Duration(c.SessionAbsoluteHour) * time.Hour
}

// ResolveCookieSecure decides the Secure flag for cookies set on r.
func (c Config) ResolveCookieSecure(r *http.Request) bool {
	switch c.CookieSecureMode {
	case "always":
		return true
	case "never":
		return false
	}
	if r.TLS != nil {
		return true
	}
	return c.TrustProxy && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// cookieSecureMode reads COOKIE_SECURE_MODE, falling back to the boolean
// COOKIE_SECURE of older deployments.
func cookieSecureMode() string {
	if m := strings.ToLower(strings.TrimSpace(os.Getenv("COOKIE_SECURE_MODE"))); m != "" {
		return m
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		if envBool("COOKIE_SECURE", false) {
			return "always"
		}
		return "never"
	}
	return "auto"
}

func env(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return d
	}
	return n
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return d
	}
	return b
}

func envCSV(k string) []string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLocalListen(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	return strings.Contains(a, "127.0.0.1") || strings.Contains(a, "localhost") || strings.Contains(a, "[::1]") || strings.HasPrefix(a, ":")
}
