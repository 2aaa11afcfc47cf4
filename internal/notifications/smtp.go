package notifications

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/opsdesk-io/opsdesk-ce/internal/config"
	"github.com/opsdesk-io/opsdesk-ce/internal/models"
)

// SMTPDispatcher sends engine notifications as plain-text email.
type SMTPDispatcher struct {
	cfg *config.EmailConfig
}

// NewSMTPDispatcher wires a dispatcher around the email configuration.
func NewSMTPDispatcher(cfg *config.EmailConfig) *SMTPDispatcher {
	return &SMTPDispatcher{cfg: cfg}
}

func (s *SMTPDispatcher) Notify(_ context.Context, recipients []models.Recipient, subject, body string) error {
	if s.cfg == nil || !s.cfg.Enabled {
		return nil
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	to := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.Email != "" {
			to = append(to, r.Email)
		}
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipient addresses")
	}

	fromHeader := s.cfg.From
	if fromHeader == "" {
		fromHeader = s.cfg.SMTP.User
	}

	headers := []string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", strings.Join(to, ", ")),
		fmt.Sprintf("Subject: %s", subject),
		"Content-Type: text/plain; charset=UTF-8",
	}
	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + body

	client, err := s.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := s.authenticate(client); err != nil {
		return err
	}

	sender := fromHeader
	if sender == "" {
		sender = "noreply@localhost"
	}
	if err := client.Mail(sender); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", addr, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	if _, err := w.Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data transfer: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("failed to quit SMTP session: %w", err)
	}
	return nil
}

func (s *SMTPDispatcher) dial() (*smtp.Client, error) {
	addr := s.cfg.SMTP.Host + ":" + strconv.Itoa(s.cfg.SMTP.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	if s.cfg.SMTP.StartTLS {
		tlsConfig := &tls.Config{ServerName: s.cfg.SMTP.Host}
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	return client, nil
}

func (s *SMTPDispatcher) authenticate(client *smtp.Client) error {
	if s.cfg.SMTP.User == "" || s.cfg.SMTP.Password == "" {
		return nil
	}
	auth := smtp.PlainAuth("", s.cfg.SMTP.User, s.cfg.SMTP.Password, s.cfg.SMTP.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	return nil
}
