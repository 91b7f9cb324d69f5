package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/consult-api/pkg/logger"
)

type Service interface {
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

// Sender delivers composed messages; *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpService struct {
	sender Sender
	from   string
}

// NewService returns an SMTP backed service, or one that only logs when
// no SMTP host is configured.
func NewService(cfg Config, log *logger.Logger) Service {
	if cfg.Host == "" {
		return &logService{logger: log}
	}
	return NewSMTPService(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func NewSMTPService(sender Sender, from string) Service {
	return &smtpService{sender: sender, from: from}
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	if to == "" {
		return fmt.Errorf("recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

type logService struct {
	logger *logger.Logger
}

func (s *logService) SendCustom(_ context.Context, to string, subject string, _ string) error {
	s.logger.Info("SMTP not configured, email skipped", "to", to, "subject", subject)
	return nil
}
