// Package notify implements the notification dispatch pipeline: rendering
// messages for booking events, delivering them over a mail transport, and
// recording every attempt in the append-only notification log.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strings"

	"github.com/afisha-platform/booking-core/internal/config"
)

// Mail is one outbound message.
type Mail struct {
	To      string
	From    string
	Subject string
	Body    string
}

// Mailer delivers one message. A false result with a nil error means the
// transport accepted the call but reported failure; callers treat both the
// same way.
type Mailer interface {
	Send(ctx context.Context, mail Mail) (bool, error)
}

// NewMailer picks the transport binding: real SMTP when fully configured,
// otherwise a log-only mailer so the service stays operable without mail
// credentials.
func NewMailer(cfg config.SMTP, logger *slog.Logger) Mailer {
	if !cfg.Configured() {
		logger.Warn("smtp not configured, emails will be logged but not sent")
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.User,
		password: cfg.Password,
	}
}

// LogMailer logs the message and reports success. Used when SMTP is not
// configured.
type LogMailer struct {
	logger *slog.Logger
}

// Send implements Mailer.
func (m *LogMailer) Send(_ context.Context, mail Mail) (bool, error) {
	m.logger.Info("would send email",
		"to", mail.To, "subject", mail.Subject, "body", mail.Body)
	return true, nil
}

// SMTPMailer delivers over plain SMTP with STARTTLS and plain auth.
type SMTPMailer struct {
	host     string
	port     string
	username string
	password string
}

// Send implements Mailer. The context deadline bounds the whole exchange.
func (m *SMTPMailer) Send(ctx context.Context, mail Mail) (bool, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(m.host, m.port))
	if err != nil {
		return false, fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return false, fmt.Errorf("starttls: %w", err)
		}
	}
	auth := smtp.PlainAuth("", m.username, m.password, m.host)
	if err := client.Auth(auth); err != nil {
		return false, fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(mail.From); err != nil {
		return false, fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(mail.To); err != nil {
		return false, fmt.Errorf("smtp rcpt to: %w", err)
	}
	writer, err := client.Data()
	if err != nil {
		return false, fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write([]byte(formatMessage(mail))); err != nil {
		_ = writer.Close()
		return false, fmt.Errorf("smtp write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return false, fmt.Errorf("smtp close data: %w", err)
	}
	if err := client.Quit(); err != nil {
		return false, fmt.Errorf("smtp quit: %w", err)
	}
	return true, nil
}

func formatMessage(mail Mail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", mail.From)
	fmt.Fprintf(&b, "To: %s\r\n", mail.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", mail.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(mail.Body)
	b.WriteString("\r\n")
	return b.String()
}
