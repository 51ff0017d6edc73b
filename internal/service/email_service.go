package service

import (
	"context"
	"crypto/tls"
	"net/mail"
	"strings"
	"sync"

	"github.com/botdesk-next/internal/config"

	"gopkg.in/gomail.v2"
)

// MailSender 纯文本邮件发送能力
type MailSender interface {
	SendText(ctx context.Context, toEmail, subject, body string) error
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService SMTP 邮件服务
type EmailService struct {
	mu        sync.RWMutex
	cfg       *config.EmailConfig
	newDialer func(cfg *config.EmailConfig) mailDialer
}

// NewEmailService 创建邮件服务实例
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return &EmailService{
		cfg:       cfg,
		newDialer: newSMTPDialer,
	}
}

// SetConfig 热更新 SMTP 配置
func (s *EmailService) SetConfig(cfg *config.EmailConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// Available 校验当前配置是否可发信
func (s *EmailService) Available() error {
	_, err := s.currentConfig()
	return err
}

// SendText 发送纯文本邮件，ctx 结束时立即返回
func (s *EmailService) SendText(ctx context.Context, toEmail, subject, body string) error {
	cfg, err := s.currentConfig()
	if err != nil {
		return err
	}
	to, err := mail.ParseAddress(strings.TrimSpace(toEmail))
	if err != nil {
		return ErrInvalidEmail
	}

	m := gomail.NewMessage(gomail.SetCharset("UTF-8"))
	if strings.TrimSpace(cfg.FromName) != "" {
		m.SetAddressHeader("From", cfg.From, cfg.FromName)
	} else {
		m.SetHeader("From", cfg.From)
	}
	m.SetHeader("To", to.Address)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan error, 1)
	dialer := s.newDialer(cfg)
	go func() {
		done <- dialer.DialAndSend(m)
	}()
	select {
	case err := <-done:
		return normalizeEmailSendError(err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *EmailService) currentConfig() (*config.EmailConfig, error) {
	if s == nil {
		return nil, ErrEmailServiceNotConfigured
	}
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()
	if cfg == nil || !cfg.Enabled {
		return nil, ErrEmailServiceDisabled
	}
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port <= 0 || strings.TrimSpace(cfg.From) == "" {
		return nil, ErrEmailServiceNotConfigured
	}
	return cfg, nil
}

func newSMTPDialer(cfg *config.EmailConfig) mailDialer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.UseSSL
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	return d
}

func normalizeEmailSendError(err error) error {
	if err == nil {
		return nil
	}
	if isEmailRecipientRejected(err) {
		return ErrEmailRecipientRejected
	}
	return err
}

func isEmailRecipientRejected(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	if message == "" {
		return false
	}
	directKeywords := []string{
		"no such recipient",
		"no such user",
		"recipient not found",
		"recipient address rejected",
		"invalid recipient",
		"user unknown",
		"unknown user",
		"mailbox unavailable",
	}
	for _, keyword := range directKeywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	if strings.Contains(message, "550") {
		for _, hint := range []string{"recipient", "mailbox", "rcpt"} {
			if strings.Contains(message, hint) {
				return true
			}
		}
	}
	return false
}
