// Package notification provides event handlers for sending notifications
// (in-app, SSE, email) in response to domain events.
// This module subscribes to events and inverts the dependency: domain modules
// no longer need to know about email delivery or connected clients.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"photobridge_backend/internal/email"
	"photobridge_backend/internal/events"
	apphttp "photobridge_backend/internal/http"
	notifhandler "photobridge_backend/internal/notification/handler"
	"photobridge_backend/internal/notification/inapp"
	notificationoutbox "photobridge_backend/internal/notification/outbox"
	"photobridge_backend/internal/notification/sse"
	"photobridge_backend/platform/apperr"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/httpkit"
	"photobridge_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	outboxKindEmail = "email"

	templateUploadFailed   = "upload_failed"
	templateAccountRevoked = "account_revoked"

	invalidOutboxPayloadPrefix = "invalid payload: "
	maxOutboxRetryAttempts     = 5
	outboxRetryBaseDelay       = time.Minute
	outboxRetryMaxDelay        = 60 * time.Minute
)

// cachedUserEmail holds a resolved email address with a TTL for cache expiry.
type cachedUserEmail struct {
	email     string
	expiresAt time.Time
}

// Module handles all notification-related event subscriptions.
type Module struct {
	pool               *pgxpool.Pool
	sender             email.Sender
	cfg                config.NotificationConfig
	log                *logger.Logger
	sse                *sse.Service
	notificationOutbox *notificationoutbox.Repository
	inAppService       *inapp.Service
	inAppHandler       *notifhandler.Handler
	userEmailCache     sync.Map // map[uuid.UUID]cachedUserEmail
}

// New creates a new notification module. The module owns the SSE hub; the
// in-app service pushes through it whenever the user has an open stream.
func New(pool *pgxpool.Pool, sender email.Sender, cfg config.NotificationConfig, log *logger.Logger) *Module {
	sseSvc := sse.New(log)

	m := &Module{
		pool:   pool,
		sender: sender,
		cfg:    cfg,
		log:    log,
		sse:    sseSvc,
	}

	// Without a database the module still relays emails and SSE pushes,
	// only the stored feed needs the pool.
	if pool != nil {
		inAppSvc := inapp.NewService(inapp.NewRepository(pool))
		inAppSvc.SetSSE(sseSvc)
		m.inAppService = inAppSvc
		m.inAppHandler = notifhandler.New(inAppSvc)
	}

	return m
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers notification API routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.inAppHandler == nil {
		return
	}

	notifications := ctx.Protected.Group("/notifications")
	m.inAppHandler.RegisterRoutes(notifications)

	notifications.GET("/stream", m.sse.Handler(func(c *gin.Context) (uuid.UUID, bool) {
		identity := httpkit.GetIdentity(c)
		if !identity.IsAuthenticated() {
			return uuid.Nil, false
		}
		return identity.UserID(), true
	}))
}

// InAppService exposes the in-app notification service for other modules.
func (m *Module) InAppService() *inapp.Service { return m.inAppService }

// SetNotificationOutbox wires the outbox repository used for durable email delivery.
func (m *Module) SetNotificationOutbox(repo *notificationoutbox.Repository) {
	m.notificationOutbox = repo
}

// Close disconnects all SSE clients.
func (m *Module) Close() {
	if m.sse != nil {
		m.sse.Close()
	}
}

// RegisterHandlers subscribes the module to all events it reacts to.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	// Auth lifecycle
	bus.Subscribe(events.UserSignedUp{}.EventName(), m)
	bus.Subscribe(events.EmailVerificationRequested{}.EventName(), m)
	bus.Subscribe(events.PasswordResetRequested{}.EventName(), m)

	// Linked account lifecycle
	bus.Subscribe(events.AccountLinked{}.EventName(), m)
	bus.Subscribe(events.AccountRevoked{}.EventName(), m)

	// Upload lifecycle
	bus.Subscribe(events.UploadQueued{}.EventName(), m)
	bus.Subscribe(events.UploadPublished{}.EventName(), m)
	bus.Subscribe(events.UploadFailed{}.EventName(), m)

	// Outbox dispatch
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)
}

func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.UserSignedUp:
		return m.handleUserSignedUp(ctx, e)
	case events.EmailVerificationRequested:
		return m.handleEmailVerificationRequested(ctx, e)
	case events.PasswordResetRequested:
		return m.handlePasswordResetRequested(ctx, e)
	case events.AccountLinked:
		return m.handleAccountLinked(ctx, e)
	case events.AccountRevoked:
		return m.handleAccountRevoked(ctx, e)
	case events.UploadQueued:
		return m.handleUploadQueued(ctx, e)
	case events.UploadPublished:
		return m.handleUploadPublished(ctx, e)
	case events.UploadFailed:
		return m.handleUploadFailed(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

// ── Auth event handlers ─────────────────────────────────────────────────

func (m *Module) handleUserSignedUp(ctx context.Context, e events.UserSignedUp) error {
	verifyURL := m.buildURL("/verify-email", e.VerifyToken)
	if err := m.sender.SendVerificationEmail(ctx, e.Email, verifyURL); err != nil {
		m.log.Error("failed to send verification email",
			"userId", e.UserID,
			"email", e.Email,
			"error", err,
		)
		return err
	}
	m.log.Info("verification email sent", "userId", e.UserID, "email", e.Email)
	return nil
}

func (m *Module) handleEmailVerificationRequested(ctx context.Context, e events.EmailVerificationRequested) error {
	verifyURL := m.buildURL("/verify-email", e.VerifyToken)
	if err := m.sender.SendVerificationEmail(ctx, e.Email, verifyURL); err != nil {
		m.log.Error("failed to send verification email",
			"userId", e.UserID,
			"email", e.Email,
			"error", err,
		)
		return err
	}
	m.log.Info("verification email sent", "userId", e.UserID, "email", e.Email)
	return nil
}

func (m *Module) handlePasswordResetRequested(ctx context.Context, e events.PasswordResetRequested) error {
	resetURL := m.buildURL("/reset-password", e.ResetToken)
	if err := m.sender.SendPasswordResetEmail(ctx, e.Email, resetURL); err != nil {
		m.log.Error("failed to send password reset email",
			"userId", e.UserID,
			"email", e.Email,
			"error", err,
		)
		return err
	}
	m.log.Info("password reset email sent", "userId", e.UserID, "email", e.Email)
	return nil
}

// ── Linked account event handlers ───────────────────────────────────────

func (m *Module) handleAccountLinked(ctx context.Context, e events.AccountLinked) error {
	content := "Your Facebook account is now linked."
	if name := strings.TrimSpace(e.DisplayName); name != "" {
		content = fmt.Sprintf("%s is now linked to your account.", name)
	}

	m.sendInApp(ctx, inapp.SendParams{
		UserID:       e.UserID,
		Title:        "Facebook account connected",
		Content:      content,
		ResourceID:   &e.AccountID,
		ResourceType: "account",
		Category:     "success",
	})

	if m.sse != nil {
		m.sse.Publish(e.UserID, sse.Event{
			Type: sse.EventAccountLinked,
			Data: map[string]any{
				"accountId":    e.AccountID,
				"displayName":  e.DisplayName,
				"grantedRead":  e.GrantedRead,
				"grantedWrite": e.GrantedWrite,
			},
		})
	}

	return nil
}

func (m *Module) handleAccountRevoked(ctx context.Context, e events.AccountRevoked) error {
	content := "The link with Facebook was removed. Queued photos can no longer be published."
	if e.Source == "deauthorize_callback" {
		content = "Facebook reported that access for this app was removed. Queued photos can no longer be published."
	}

	m.sendInApp(ctx, inapp.SendParams{
		UserID:       e.UserID,
		Title:        "Facebook account disconnected",
		Content:      content,
		ResourceID:   &e.AccountID,
		ResourceType: "account",
		Category:     "warning",
	})

	if m.sse != nil {
		m.sse.Publish(e.UserID, sse.Event{
			Type: sse.EventAccountRevoked,
			Data: map[string]any{
				"accountId": e.AccountID,
				"source":    e.Source,
			},
		})
	}

	// The user pressed the button themselves; only a platform-side
	// deauthorization warrants an email.
	if e.Source == "deauthorize_callback" {
		m.enqueueAccountRevokedEmail(ctx, e)
	}

	return nil
}

// ── Upload event handlers ───────────────────────────────────────────────

func (m *Module) handleUploadQueued(_ context.Context, e events.UploadQueued) error {
	// Queuing is the user's own action; push it to other open tabs but do
	// not persist a notification for it.
	if m.sse != nil {
		m.sse.Publish(e.UserID, sse.Event{
			Type: sse.EventUploadQueued,
			Data: map[string]any{
				"uploadId": e.UploadID,
				"fileName": e.FileName,
				"albumId":  e.AlbumID,
			},
		})
	}
	return nil
}

func (m *Module) handleUploadPublished(ctx context.Context, e events.UploadPublished) error {
	m.sendInApp(ctx, inapp.SendParams{
		UserID:       e.UserID,
		Title:        "Photo published",
		Content:      fmt.Sprintf("%s was published to your Facebook album.", e.FileName),
		ResourceID:   &e.UploadID,
		ResourceType: "upload",
		Category:     "success",
	})

	if m.sse != nil {
		m.sse.Publish(e.UserID, sse.Event{
			Type: sse.EventUploadPublished,
			Data: map[string]any{
				"uploadId":     e.UploadID,
				"fileName":     e.FileName,
				"graphPhotoId": e.GraphPhotoID,
			},
		})
	}

	return nil
}

func (m *Module) handleUploadFailed(ctx context.Context, e events.UploadFailed) error {
	m.sendInApp(ctx, inapp.SendParams{
		UserID:       e.UserID,
		Title:        "Publishing failed",
		Content:      fmt.Sprintf("%s could not be published: %s", e.FileName, e.Reason),
		ResourceID:   &e.UploadID,
		ResourceType: "upload",
		Category:     "error",
	})

	if m.sse != nil {
		m.sse.Publish(e.UserID, sse.Event{
			Type: sse.EventUploadFailed,
			Data: map[string]any{
				"uploadId": e.UploadID,
				"fileName": e.FileName,
				"reason":   e.Reason,
			},
		})
	}

	m.enqueueUploadFailedEmail(ctx, e)

	return nil
}

// sendInApp persists an in-app notification, logging instead of failing the
// surrounding event handler.
func (m *Module) sendInApp(ctx context.Context, p inapp.SendParams) {
	if m.inAppService == nil {
		return
	}
	if err := m.inAppService.Send(ctx, p); err != nil {
		m.log.Warn("failed to store in-app notification", "userId", p.UserID, "title", p.Title, "error", err)
	}
}

// ── Outbox producers ────────────────────────────────────────────────────

type uploadFailedEmailPayload struct {
	ToEmail  string `json:"toEmail"`
	FileName string `json:"fileName"`
	Reason   string `json:"reason"`
}

type accountRevokedEmailPayload struct {
	ToEmail string `json:"toEmail"`
}

func (m *Module) enqueueUploadFailedEmail(ctx context.Context, e events.UploadFailed) {
	if m.notificationOutbox == nil {
		return
	}

	toEmail := m.resolveUserEmail(ctx, e.UserID)
	if toEmail == "" {
		m.log.Warn("no email address for upload failure notification", "userId", e.UserID, "uploadId", e.UploadID)
		return
	}

	outboxID, err := m.notificationOutbox.Insert(ctx, notificationoutbox.InsertParams{
		UserID:   e.UserID,
		Kind:     outboxKindEmail,
		Template: templateUploadFailed,
		Payload: uploadFailedEmailPayload{
			ToEmail:  toEmail,
			FileName: e.FileName,
			Reason:   e.Reason,
		},
		RunAt: time.Now().UTC(),
	})
	if err != nil {
		m.log.Error("failed to enqueue upload failure email", "uploadId", e.UploadID, "userId", e.UserID, "error", err)
		return
	}
	m.log.Info("upload failure email queued", "uploadId", e.UploadID, "outboxId", outboxID)
}

func (m *Module) enqueueAccountRevokedEmail(ctx context.Context, e events.AccountRevoked) {
	if m.notificationOutbox == nil {
		return
	}

	toEmail := strings.TrimSpace(e.Email)
	if toEmail == "" {
		toEmail = m.resolveUserEmail(ctx, e.UserID)
	}
	if toEmail == "" {
		m.log.Warn("no email address for account revoked notification", "userId", e.UserID, "accountId", e.AccountID)
		return
	}

	outboxID, err := m.notificationOutbox.Insert(ctx, notificationoutbox.InsertParams{
		UserID:   e.UserID,
		Kind:     outboxKindEmail,
		Template: templateAccountRevoked,
		Payload:  accountRevokedEmailPayload{ToEmail: toEmail},
		RunAt:    time.Now().UTC(),
	})
	if err != nil {
		m.log.Error("failed to enqueue account revoked email", "accountId", e.AccountID, "userId", e.UserID, "error", err)
		return
	}
	m.log.Info("account revoked email queued", "accountId", e.AccountID, "outboxId", outboxID)
}

// ── Outbox dispatch ─────────────────────────────────────────────────────

func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.notificationOutbox == nil {
		m.log.Debug("notification outbox repository not configured; skipping outbox due event", "outboxId", e.OutboxID, "userId", e.UserID)
		return nil
	}
	m.log.Info("processing outbox due event", "outboxId", e.OutboxID, "userId", e.UserID)
	rec, process, err := m.prepareOutboxRecord(ctx, e.OutboxID)
	if err != nil {
		// A missing record cannot be delivered by retrying the task.
		if apperr.Is(err, apperr.KindNotFound) {
			m.log.Warn("outbox record gone, dropping task", "outboxId", e.OutboxID)
			return nil
		}
		m.log.Error("failed to prepare outbox record", "outboxId", e.OutboxID, "error", err)
		return err
	}
	if !process {
		return nil
	}

	if rec.Kind != outboxKindEmail {
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	var processErr error
	switch rec.Template {
	case templateUploadFailed:
		processErr = m.processUploadFailedOutbox(ctx, rec)
	case templateAccountRevoked:
		processErr = m.processAccountRevokedOutbox(ctx, rec)
	default:
		m.markOutboxUnsupported(ctx, rec)
		return nil
	}

	if processErr != nil {
		m.handleOutboxDeliveryError(ctx, rec, processErr)
		return processErr
	}
	m.log.Info("outbox record processed successfully", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)

	return nil
}

func (m *Module) handleOutboxDeliveryError(ctx context.Context, rec notificationoutbox.Record, deliveryErr error) {
	attempt := rec.Attempts + 1
	if attempt >= maxOutboxRetryAttempts {
		_ = m.notificationOutbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Warn("notification outbox exhausted retries",
			"outboxId", rec.ID.String(),
			"kind", rec.Kind,
			"template", rec.Template,
			"attempt", attempt,
			"maxAttempts", maxOutboxRetryAttempts,
			"error", deliveryErr,
		)
		return
	}

	retryAt := time.Now().UTC().Add(computeOutboxRetryDelay(attempt))
	if err := m.notificationOutbox.ScheduleRetry(ctx, rec.ID, retryAt, deliveryErr.Error()); err != nil {
		_ = m.notificationOutbox.MarkFailed(ctx, rec.ID, deliveryErr.Error())
		m.log.Error("notification outbox retry scheduling failed; marked failed",
			"outboxId", rec.ID.String(),
			"attempt", attempt,
			"error", err,
		)
		return
	}

	m.log.Warn("notification outbox scheduled retry",
		"outboxId", rec.ID.String(),
		"kind", rec.Kind,
		"template", rec.Template,
		"attempt", attempt,
		"maxAttempts", maxOutboxRetryAttempts,
		"retryAt", retryAt,
		"error", deliveryErr,
	)
}

func computeOutboxRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := outboxRetryBaseDelay << (attempt - 1)
	if delay > outboxRetryMaxDelay {
		return outboxRetryMaxDelay
	}
	return delay
}

func (m *Module) prepareOutboxRecord(ctx context.Context, outboxID uuid.UUID) (notificationoutbox.Record, bool, error) {
	rec, err := m.notificationOutbox.GetByID(ctx, outboxID)
	if err != nil {
		return notificationoutbox.Record{}, false, err
	}
	if rec.Status == notificationoutbox.StatusSucceeded {
		m.log.Debug("outbox record already succeeded; skipping", "outboxId", rec.ID.String())
		return rec, false, nil
	}
	if err := m.notificationOutbox.MarkProcessing(ctx, rec.ID); err != nil {
		return notificationoutbox.Record{}, false, err
	}
	m.log.Debug("outbox record marked processing", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
	return rec, true, nil
}

func (m *Module) processUploadFailedOutbox(ctx context.Context, rec notificationoutbox.Record) error {
	var payload uploadFailedEmailPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.notificationOutbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}
	if strings.TrimSpace(payload.ToEmail) == "" {
		m.log.Debug("outbox email payload has no recipient; marking succeeded", "outboxId", rec.ID.String())
		_ = m.notificationOutbox.MarkSucceeded(ctx, rec.ID)
		return nil
	}

	if err := m.sender.SendUploadFailedEmail(ctx, payload.ToEmail, payload.FileName, payload.Reason, m.appPath("/uploads")); err != nil {
		return err
	}

	_ = m.notificationOutbox.MarkSucceeded(ctx, rec.ID)
	m.log.Info("upload failure email delivered", "outboxId", rec.ID.String(), "toEmail", payload.ToEmail)
	return nil
}

func (m *Module) processAccountRevokedOutbox(ctx context.Context, rec notificationoutbox.Record) error {
	var payload accountRevokedEmailPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		_ = m.notificationOutbox.MarkFailed(ctx, rec.ID, invalidOutboxPayloadPrefix+err.Error())
		return nil
	}
	if strings.TrimSpace(payload.ToEmail) == "" {
		m.log.Debug("outbox email payload has no recipient; marking succeeded", "outboxId", rec.ID.String())
		_ = m.notificationOutbox.MarkSucceeded(ctx, rec.ID)
		return nil
	}

	if err := m.sender.SendAccountRevokedEmail(ctx, payload.ToEmail, m.appPath("/connect")); err != nil {
		return err
	}

	_ = m.notificationOutbox.MarkSucceeded(ctx, rec.ID)
	m.log.Info("account revoked email delivered", "outboxId", rec.ID.String(), "toEmail", payload.ToEmail)
	return nil
}

func (m *Module) markOutboxUnsupported(ctx context.Context, rec notificationoutbox.Record) {
	msg := fmt.Sprintf("unsupported outbox kind/template: %s/%s", rec.Kind, rec.Template)
	_ = m.notificationOutbox.MarkFailed(ctx, rec.ID, msg)
	m.log.Warn("unsupported outbox record", "outboxId", rec.ID.String(), "kind", rec.Kind, "template", rec.Template)
}

// ── Helpers ─────────────────────────────────────────────────────────────

func (m *Module) buildURL(path string, tokenValue string) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	return base + path + "?token=" + tokenValue
}

func (m *Module) appPath(path string) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	return base + path
}

// resolveUserEmail fetches the address a user signed up with.
func (m *Module) resolveUserEmail(ctx context.Context, userID uuid.UUID) string {
	if userID == uuid.Nil {
		return ""
	}
	if cached, ok := m.userEmailCache.Load(userID); ok {
		entry := cached.(cachedUserEmail)
		if time.Now().Before(entry.expiresAt) {
			return entry.email
		}
		m.userEmailCache.Delete(userID)
	}
	if m.pool == nil {
		return ""
	}
	var address string
	if err := m.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&address); err != nil {
		return ""
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	m.userEmailCache.Store(userID, cachedUserEmail{email: address, expiresAt: time.Now().Add(10 * time.Minute)})
	return address
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)
