package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements the Sender interface using a direct SMTP connection
// via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendVerificationEmail(ctx context.Context, toEmail, verifyURL string) error {
	content, err := renderEmailTemplate("verification.html", verificationEmailData{
		baseEmailData: baseEmailData{
			Title:    "Verify your email address",
			Heading:  "Verify your email address",
			CTALabel: "Verify email",
			CTAURL:   verifyURL,
		},
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectVerification, content)
}

func (s *SMTPSender) SendPasswordResetEmail(ctx context.Context, toEmail, resetURL string) error {
	content, err := renderEmailTemplate("password_reset.html", passwordResetEmailData{
		baseEmailData: baseEmailData{
			Title:    "Reset your password",
			Heading:  "Reset your password",
			CTALabel: "Choose a new password",
			CTAURL:   resetURL,
		},
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectPasswordReset, content)
}

func (s *SMTPSender) SendUploadFailedEmail(ctx context.Context, toEmail, fileName, reason, uploadsURL string) error {
	subject := fmt.Sprintf(subjectUploadFailedFmt, fileName)
	content, err := renderEmailTemplate("upload_failed.html", uploadFailedEmailData{
		baseEmailData: baseEmailData{
			Title:    "Photo could not be published",
			Heading:  "Photo could not be published",
			CTALabel: "View uploads",
			CTAURL:   uploadsURL,
		},
		FileName: fileName,
		Reason:   reason,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendAccountRevokedEmail(ctx context.Context, toEmail, reconnectURL string) error {
	content, err := renderEmailTemplate("account_revoked.html", accountRevokedEmailData{
		baseEmailData: baseEmailData{
			Title:    "Facebook account disconnected",
			Heading:  "Facebook account disconnected",
			CTALabel: "Reconnect account",
			CTAURL:   reconnectURL,
		},
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectAccountRevoked, content)
}
