package mail

import (
	"errors"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/ManuelReschke/ReportFox/internal/pkg/env"
)

// Sender delivers one email.
type Sender interface {
	Send(to, subject, htmlBody string) error
}

// SMTPSender sends emails via SMTP
type SMTPSender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// NewSMTPSenderFromEnv reads SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD and SMTP_SENDER.
func NewSMTPSenderFromEnv() *SMTPSender {
	s := &SMTPSender{
		Host:     env.GetEnv("SMTP_HOST", ""),
		Port:     env.GetEnv("SMTP_PORT", "25"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		From:     env.GetEnv("SMTP_SENDER", ""),
	}
	if s.From == "" {
		s.From = "no-reply@localhost"
		log.Printf("SMTP_SENDER not set, using default sender: %s", s.From)
	}
	return s
}

// BuildMessage renders the RFC 5322 message sent over the wire.
func BuildMessage(from, to, subject, htmlBody string) []byte {
	return []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", from, to, sanitizeHeader(subject)) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			htmlBody,
	)
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

func (s *SMTPSender) Send(to, subject, htmlBody string) error {
	if s.Host == "" {
		return errors.New("mail: SMTP_HOST not configured")
	}
	to = sanitizeHeader(strings.TrimSpace(to))
	if to == "" {
		return errors.New("mail: recipient required")
	}

	var auth smtp.Auth
	if s.Username != "" && s.Password != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}

	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	err := smtp.SendMail(addr, auth, s.From, []string{to}, BuildMessage(s.From, to, subject, htmlBody))
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}
