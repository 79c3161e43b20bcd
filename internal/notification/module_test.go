package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"photobridge_backend/internal/events"
	"photobridge_backend/platform/logger"

	"github.com/google/uuid"
)

type testNotificationConfig struct{}

func (testNotificationConfig) GetAppBaseURL() string { return "https://app.example.com" }

type testSender struct {
	failSends bool

	verificationURLs  []string
	passwordResetURLs []string
	uploadFailedTo    []string
	accountRevokedTo  []string
}

func (s *testSender) SendVerificationEmail(_ context.Context, _, verifyURL string) error {
	if s.failSends {
		return fmt.Errorf("smtp unavailable")
	}
	s.verificationURLs = append(s.verificationURLs, verifyURL)
	return nil
}

func (s *testSender) SendPasswordResetEmail(_ context.Context, _, resetURL string) error {
	if s.failSends {
		return fmt.Errorf("smtp unavailable")
	}
	s.passwordResetURLs = append(s.passwordResetURLs, resetURL)
	return nil
}

func (s *testSender) SendUploadFailedEmail(_ context.Context, toEmail, _, _, _ string) error {
	if s.failSends {
		return fmt.Errorf("smtp unavailable")
	}
	s.uploadFailedTo = append(s.uploadFailedTo, toEmail)
	return nil
}

func (s *testSender) SendAccountRevokedEmail(_ context.Context, toEmail, _ string) error {
	if s.failSends {
		return fmt.Errorf("smtp unavailable")
	}
	s.accountRevokedTo = append(s.accountRevokedTo, toEmail)
	return nil
}

func TestHandleUserSignedUpSendsVerificationLink(t *testing.T) {
	sender := &testSender{}
	m := New(nil, sender, testNotificationConfig{}, logger.New("development"))

	err := m.Handle(context.Background(), events.UserSignedUp{
		BaseEvent:   events.NewBaseEvent(),
		UserID:      uuid.New(),
		Email:       "robin@example.com",
		VerifyToken: "tok-123",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(sender.verificationURLs) != 1 {
		t.Fatalf("expected 1 verification email, got %d", len(sender.verificationURLs))
	}
	if sender.verificationURLs[0] != "https://app.example.com/verify-email?token=tok-123" {
		t.Fatalf("unexpected verify URL: %q", sender.verificationURLs[0])
	}
}

func TestHandlePasswordResetRequestedSendsResetLink(t *testing.T) {
	sender := &testSender{}
	m := New(nil, sender, testNotificationConfig{}, logger.New("development"))

	err := m.Handle(context.Background(), events.PasswordResetRequested{
		BaseEvent:  events.NewBaseEvent(),
		UserID:     uuid.New(),
		Email:      "robin@example.com",
		ResetToken: "reset-456",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(sender.passwordResetURLs) != 1 {
		t.Fatalf("expected 1 reset email, got %d", len(sender.passwordResetURLs))
	}
	if sender.passwordResetURLs[0] != "https://app.example.com/reset-password?token=reset-456" {
		t.Fatalf("unexpected reset URL: %q", sender.passwordResetURLs[0])
	}
}

func TestHandleUserSignedUpPropagatesSendFailure(t *testing.T) {
	sender := &testSender{failSends: true}
	m := New(nil, sender, testNotificationConfig{}, logger.New("development"))

	err := m.Handle(context.Background(), events.UserSignedUp{
		BaseEvent:   events.NewBaseEvent(),
		UserID:      uuid.New(),
		Email:       "robin@example.com",
		VerifyToken: "tok-123",
	})
	if err == nil {
		t.Fatal("expected send failure to propagate")
	}
}

func TestHandleUploadLifecycleWithoutDatabaseDegradesToLogging(t *testing.T) {
	// Without a pool the in-app store and the outbox are unavailable; the
	// handlers must still complete so the bus keeps processing.
	sender := &testSender{}
	m := New(nil, sender, testNotificationConfig{}, logger.New("development"))
	userID := uuid.New()

	lifecycle := []events.Event{
		events.UploadQueued{BaseEvent: events.NewBaseEvent(), UploadID: uuid.New(), UserID: userID, FileName: "IMG_1.jpg"},
		events.UploadPublished{BaseEvent: events.NewBaseEvent(), UploadID: uuid.New(), UserID: userID, FileName: "IMG_1.jpg", GraphPhotoID: "ph-1"},
		events.UploadFailed{BaseEvent: events.NewBaseEvent(), UploadID: uuid.New(), UserID: userID, FileName: "IMG_2.jpg", Reason: "token expired"},
	}
	for _, e := range lifecycle {
		if err := m.Handle(context.Background(), e); err != nil {
			t.Fatalf("Handle(%s) returned error: %v", e.EventName(), err)
		}
	}

	if len(sender.uploadFailedTo) != 0 {
		t.Fatalf("expected no direct failure emails without an outbox, got %d", len(sender.uploadFailedTo))
	}
}

func TestHandleAccountRevokedByUserSendsNoEmail(t *testing.T) {
	sender := &testSender{}
	m := New(nil, sender, testNotificationConfig{}, logger.New("development"))

	err := m.Handle(context.Background(), events.AccountRevoked{
		BaseEvent:   events.NewBaseEvent(),
		AccountID:   uuid.New(),
		UserID:      uuid.New(),
		GraphUserID: "100001",
		Email:       "robin@example.com",
		Source:      "user",
	})
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if len(sender.accountRevokedTo) != 0 {
		t.Fatalf("expected no revocation email for a user-initiated unlink, got %d", len(sender.accountRevokedTo))
	}
}

func TestHandleUnknownEventIsIgnored(t *testing.T) {
	m := New(nil, &testSender{}, testNotificationConfig{}, logger.New("development"))

	if err := m.Handle(context.Background(), testEvent{BaseEvent: events.NewBaseEvent()}); err != nil {
		t.Fatalf("unknown event should be ignored, got error: %v", err)
	}
}

type testEvent struct {
	events.BaseEvent
}

func (testEvent) EventName() string { return "test.event" }

func TestComputeOutboxRetryDelayBacksOffExponentially(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Minute},
		{attempt: 1, want: time.Minute},
		{attempt: 2, want: 2 * time.Minute},
		{attempt: 3, want: 4 * time.Minute},
		{attempt: 7, want: 60 * time.Minute},
	}

	for _, tc := range cases {
		if got := computeOutboxRetryDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %v, got %v", tc.attempt, tc.want, got)
		}
	}
}
