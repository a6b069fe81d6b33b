package notifier

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/alertline/alertline/internal/config"
	"github.com/alertline/alertline/internal/types"
)

// Mailer submits one RFC 5322 message.
type Mailer interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// EmailChannel mails alerts to a fixed recipient list
type EmailChannel struct {
	from       string
	recipients []string
	mailer     Mailer
}

// NewEmailChannel creates an email channel. A nil mailer uses SMTP with the
// settings in cfg.
func NewEmailChannel(cfg config.EmailConfig, mailer Mailer) *EmailChannel {
	if mailer == nil {
		mailer = &SMTPMailer{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.Username,
			Password: cfg.Password,
			UseTLS:   cfg.UseTLS,
		}
	}
	return &EmailChannel{
		from:       cfg.From,
		recipients: append([]string(nil), cfg.Recipients...),
		mailer:     mailer,
	}
}

func (c *EmailChannel) Name() string { return "email" }

// SendAlert mails "[SEVERITY] message" with the alert as indented JSON.
func (c *EmailChannel) SendAlert(ctx context.Context, alert types.Alert) error {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Message)
	body, err := json.MarshalIndent(alert, "", "  ")
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return c.send(ctx, subject, string(body))
}

// SendResolution mails "[RESOLVED] message" with the resolution time.
func (c *EmailChannel) SendResolution(ctx context.Context, alert types.Alert) error {
	subject := "[RESOLVED] " + alert.Message
	body := "Alert has been resolved at " + resolvedAt(alert)
	return c.send(ctx, subject, body)
}

func (c *EmailChannel) send(ctx context.Context, subject, body string) error {
	if len(c.recipients) == 0 {
		return fmt.Errorf("smtp recipients are empty")
	}
	return c.mailer.Send(ctx, c.from, c.recipients, buildMessage(c.from, c.recipients, subject, body))
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// SMTPMailer delivers through an SMTP relay. Port 465 with UseTLS dials
// implicit TLS; other ports upgrade with STARTTLS when UseTLS is set.
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
}

// Send opens a session, authenticates when a username is set and submits msg.
func (m *SMTPMailer) Send(ctx context.Context, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(m.Host, fmt.Sprint(m.Port))
	dialer := net.Dialer{Timeout: DefaultTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(DefaultTimeout))
	}

	var client *smtp.Client
	if m.UseTLS && m.Port == 465 {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: m.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return fmt.Errorf("smtp tls handshake failed: %w", err)
		}
		client, err = smtp.NewClient(tlsConn, m.Host)
	} else {
		client, err = smtp.NewClient(conn, m.Host)
	}
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client init failed: %w", err)
	}
	defer client.Close()

	if m.UseTLS && m.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return fmt.Errorf("smtp server does not support STARTTLS")
		}
		if err := client.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
			return fmt.Errorf("smtp starttls failed: %w", err)
		}
	}

	if m.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", m.Username, m.Password, m.Host)); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from failed: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt to %s failed: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close failed: %w", err)
	}
	// the message is already accepted once DATA closes
	_ = client.Quit()
	return nil
}

func resolvedAt(alert types.Alert) string {
	if alert.ResolvedAt == nil {
		return ""
	}
	return alert.ResolvedAt.UTC().Format(time.RFC3339)
}
