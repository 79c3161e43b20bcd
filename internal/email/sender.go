// Package email renders and delivers transactional email over SMTP.
package email

import (
	"context"

	"photobridge_backend/platform/config"
)

type Sender interface {
	SendVerificationEmail(ctx context.Context, toEmail, verifyURL string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, resetURL string) error
	SendUploadFailedEmail(ctx context.Context, toEmail, fileName, reason, uploadsURL string) error
	SendAccountRevokedEmail(ctx context.Context, toEmail, reconnectURL string) error
}

// NoopSender is used when outbound email is disabled. Every send succeeds
// without doing anything, so callers never need to special-case it.
type NoopSender struct{}

func (NoopSender) SendVerificationEmail(ctx context.Context, toEmail, verifyURL string) error {
	return nil
}

func (NoopSender) SendPasswordResetEmail(ctx context.Context, toEmail, resetURL string) error {
	return nil
}

func (NoopSender) SendUploadFailedEmail(ctx context.Context, toEmail, fileName, reason, uploadsURL string) error {
	return nil
}

func (NoopSender) SendAccountRevokedEmail(ctx context.Context, toEmail, reconnectURL string) error {
	return nil
}

func NewSender(cfg config.EmailConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}, nil
	}

	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	), nil
}
