package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// SMTPNotifier delivers violation/trial emails via STARTTLS, per
// spec.md §4.G. No pack repo imports a third-party mail library, and
// the spec names STARTTLS explicitly, which net/smtp handles directly
// via smtp.Client.StartTLS.
type SMTPNotifier struct {
	host, port   string
	username     string
	password     string
	fromAddress  string
}

// NewSMTPNotifier returns an SMTPNotifier for the given host/port and
// optional auth credentials.
func NewSMTPNotifier(host, port, username, password, fromAddress string) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, username: username, password: password, fromAddress: fromAddress}
}

// Deliver sends subject/body as a plain-text email to destination.
// payload is not transmitted over SMTP (spec.md §6 reserves the
// structured payload for the webhook channel); it exists on the
// interface so both channels share one call shape.
func (s *SMTPNotifier) Deliver(ctx context.Context, destination, subject, body string, _ Payload) error {
	addr := net.JoinHostPort(s.host, s.port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp: dial: %w", err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(dl); err != nil {
			return fmt.Errorf("smtp: set deadline: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("smtp: new client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return fmt.Errorf("smtp: server %s does not offer STARTTLS", addr)
	}
	if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
		return fmt.Errorf("smtp: starttls: %w", err)
	}
	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp: auth: %w", err)
		}
	}
	if err := client.Mail(s.fromAddress); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	if err := client.Rcpt(destination); err != nil {
		return fmt.Errorf("smtp: rcpt to: %w", err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.fromAddress, destination, subject, strings.ReplaceAll(body, "\n", "\r\n"))
	if _, err := wc.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp: write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp: close body: %w", err)
	}
	return client.Quit()
}
