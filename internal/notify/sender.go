// Package notify tells users about review decisions on their profile.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"

	"betclever/internal/logging"
	"betclever/internal/status"
)

type Sender interface {
	SendReviewDecision(ctx context.Context, toEmail string, decision status.ReviewStatus) error
}

var sendMail = smtp.SendMail

// LogSender only records the notification.
type LogSender struct {
	Log logging.Logger
}

func (s LogSender) SendReviewDecision(ctx context.Context, toEmail string, decision status.ReviewStatus) error {
	subject, _ := reviewMessage(decision)
	s.Log.Info(ctx, "review decision notification", "to", toEmail, "status", string(decision), "subject", subject)
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

type SMTPSender struct {
	cfg SMTPConfig
	now func() time.Time
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, now: time.Now}
}

func (s *SMTPSender) SendReviewDecision(ctx context.Context, toEmail string, decision status.ReviewStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := s.compose(toEmail, decision)
	if err != nil {
		return err
	}
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := sendMail(s.addr(), auth, s.cfg.From, []string{toEmail}, msg); err != nil {
		return fmt.Errorf("send review notification: %w", err)
	}
	return nil
}

func (s *SMTPSender) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Probe opens an SMTP session to the relay and quits.
func (s *SMTPSender) Probe(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()
	return client.Quit()
}

func (s *SMTPSender) compose(toEmail string, decision status.ReviewStatus) ([]byte, error) {
	subject, body := reviewMessage(decision)

	var h mail.Header
	h.SetDate(s.now())
	h.SetAddressList("From", []*mail.Address{{Name: "BetClever", Address: s.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: toEmail}})
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func reviewMessage(decision status.ReviewStatus) (string, string) {
	switch decision {
	case status.ReviewApproved:
		return "Ihr Profil wurde bestätigt",
			"Hallo,\r\n\r\nIhre Angaben und Dokumente wurden geprüft und bestätigt. " +
				"Den Fortschritt Ihres Projekts sehen Sie jederzeit in Ihrem Dashboard.\r\n\r\nIhr BetClever Team\r\n"
	case status.ReviewRejected:
		return "Ihr Profil wurde abgelehnt",
			"Hallo,\r\n\r\nIhre Angaben konnten leider nicht bestätigt werden. " +
				"Bitte prüfen Sie Ihre Daten und Dokumente im Dashboard und reichen Sie sie erneut ein.\r\n\r\nIhr BetClever Team\r\n"
	default:
		return "Statusänderung: " + decision.Label(),
			"Hallo,\r\n\r\nder Status Ihres Profils lautet jetzt: " + decision.Label() + ".\r\n\r\nIhr BetClever Team\r\n"
	}
}
