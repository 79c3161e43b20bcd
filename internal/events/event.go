// Package events defines the domain events the modules publish and the
// names they subscribe under. The bus itself lives in platform/events.
package events

import (
	"time"

	"photobridge_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Auth Domain Events
// =============================================================================

// UserSignedUp is published when a new user successfully registers.
type UserSignedUp struct {
	BaseEvent
	UserID      uuid.UUID `json:"userId"`
	Email       string    `json:"email"`
	VerifyToken string    `json:"verifyToken"`
}

func (e UserSignedUp) EventName() string { return "auth.user.signed_up" }

// EmailVerificationRequested is published when a user needs to verify their email.
type EmailVerificationRequested struct {
	BaseEvent
	UserID      uuid.UUID `json:"userId"`
	Email       string    `json:"email"`
	VerifyToken string    `json:"verifyToken"`
}

func (e EmailVerificationRequested) EventName() string { return "auth.email.verification_requested" }

// PasswordResetRequested is published when a user requests a password reset.
type PasswordResetRequested struct {
	BaseEvent
	UserID     uuid.UUID `json:"userId"`
	Email      string    `json:"email"`
	ResetToken string    `json:"resetToken"`
}

func (e PasswordResetRequested) EventName() string { return "auth.password.reset_requested" }

// =============================================================================
// Accounts Domain Events
// =============================================================================

// AccountLinked is published when a user links a Facebook account.
type AccountLinked struct {
	BaseEvent
	AccountID    uuid.UUID `json:"accountId"`
	UserID       uuid.UUID `json:"userId"`
	GraphUserID  string    `json:"graphUserId"`
	DisplayName  string    `json:"displayName"`
	GrantedRead  bool      `json:"grantedRead"`
	GrantedWrite bool      `json:"grantedWrite"`
}

func (e AccountLinked) EventName() string { return "accounts.account.linked" }

// AccountRevoked is published when a linked account is removed, either by the
// user or through a Facebook deauthorization callback.
type AccountRevoked struct {
	BaseEvent
	AccountID   uuid.UUID `json:"accountId"`
	UserID      uuid.UUID `json:"userId"`
	GraphUserID string    `json:"graphUserId"`
	Email       string    `json:"email"`
	Source      string    `json:"source"` // "user" or "deauthorize_callback"
}

func (e AccountRevoked) EventName() string { return "accounts.account.revoked" }

// =============================================================================
// Uploads Domain Events
// =============================================================================

// UploadQueued is published when a photo upload is accepted and enqueued
// for background publishing.
type UploadQueued struct {
	BaseEvent
	UploadID uuid.UUID `json:"uploadId"`
	UserID   uuid.UUID `json:"userId"`
	FileName string    `json:"fileName"`
	AlbumID  string    `json:"albumId"`
}

func (e UploadQueued) EventName() string { return "uploads.upload.queued" }

// UploadPublished is published when a photo has been successfully posted
// to the user's Facebook album.
type UploadPublished struct {
	BaseEvent
	UploadID     uuid.UUID `json:"uploadId"`
	UserID       uuid.UUID `json:"userId"`
	FileName     string    `json:"fileName"`
	AlbumID      string    `json:"albumId"`
	GraphPhotoID string    `json:"graphPhotoId"`
}

func (e UploadPublished) EventName() string { return "uploads.upload.published" }

// UploadFailed is published when publishing a photo failed permanently,
// after all retries were exhausted.
type UploadFailed struct {
	BaseEvent
	UploadID uuid.UUID `json:"uploadId"`
	UserID   uuid.UUID `json:"userId"`
	FileName string    `json:"fileName"`
	Reason   string    `json:"reason"`
}

func (e UploadFailed) EventName() string { return "uploads.upload.failed" }

// UploadCanceled is published when a queued upload is canceled before publishing.
type UploadCanceled struct {
	BaseEvent
	UploadID uuid.UUID `json:"uploadId"`
	UserID   uuid.UUID `json:"userId"`
	FileName string    `json:"fileName"`
}

func (e UploadCanceled) EventName() string { return "uploads.upload.canceled" }

// =============================================================================
// Webhook Domain Events
// =============================================================================

// DataDeletionRequested is published when Facebook sends a data deletion
// callback for a user. Handlers purge stored uploads and account data.
type DataDeletionRequested struct {
	BaseEvent
	GraphUserID      string    `json:"graphUserId"`
	ConfirmationCode string    `json:"confirmationCode"`
	ReceivedAt       time.Time `json:"receivedAt"`
}

func (e DataDeletionRequested) EventName() string { return "webhook.data_deletion.requested" }

// =============================================================================
// Notification Domain Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler when a notification outbox
// record should be processed.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
	UserID   uuid.UUID `json:"userId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
