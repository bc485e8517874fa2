// Package captcha checks registration challenges against a Turnstile or
// hCaptcha siteverify endpoint.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"betclever/internal/config"
)

var (
	ErrCaptchaRequired    = errors.New("captcha_required")
	ErrCaptchaUnavailable = errors.New("captcha_unavailable")
)

type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// NoopVerifier accepts everything; used while captcha is disabled.
type NoopVerifier struct{}

func (NoopVerifier) Verify(context.Context, string, string) error { return nil }

type HTTPVerifier struct {
	verifyURL string
	secret    string
	client    *http.Client
}

func NewVerifier(cfg config.Config) Verifier {
	if !cfg.CaptchaEnabled {
		return NoopVerifier{}
	}
	return NewHTTPVerifier(cfg.CaptchaVerifyURL, cfg.CaptchaSecret, &http.Client{Timeout: 8 * time.Second})
}

func NewHTTPVerifier(verifyURL, secret string, client *http.Client) *HTTPVerifier {
	return &HTTPVerifier{
		verifyURL: strings.TrimSpace(verifyURL),
		secret:    strings.TrimSpace(secret),
		client:    client,
	}
}

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: captcha token is required", ErrCaptchaRequired)
	}
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if ip := strings.TrimSpace(remoteIP); ip != "" {
		form.Set("remoteip", ip)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: captcha verify HTTP %d", ErrCaptchaUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: captcha verify HTTP %d", ErrCaptchaRequired, resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaUnavailable, err)
	}
	if !out.Success {
		if len(out.ErrorCodes) > 0 {
			return fmt.Errorf("%w: captcha rejected: %s", ErrCaptchaRequired, strings.Join(out.ErrorCodes, ","))
		}
		return fmt.Errorf("%w: captcha rejected", ErrCaptchaRequired)
	}
	return nil
}
