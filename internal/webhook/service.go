package webhook

import (
	"context"
	"encoding/json"
	"strings"

	"photobridge_backend/internal/events"
	"photobridge_backend/platform/config"
	"photobridge_backend/platform/logger"

	"github.com/google/uuid"
)

// AccountRevoker removes linked accounts by their Graph-side user ID.
// Satisfied by the accounts service.
type AccountRevoker interface {
	RevokeByGraphUserID(ctx context.Context, graphUserID string) ([]uuid.UUID, error)
}

// Store is the persistence the webhook service needs. Satisfied by *Repository.
type Store interface {
	LogEvent(ctx context.Context, kind, graphUserID string, payload []byte) error
	CreateDeletionRequest(ctx context.Context, graphUserID, confirmationCode string) (DeletionRequest, error)
	GetDeletionRequestByCode(ctx context.Context, code string) (DeletionRequest, error)
	MarkDeletionCompleted(ctx context.Context, code string) error
}

// Service verifies platform callbacks and applies their effects.
type Service struct {
	store      Store
	revoker    AccountRevoker
	appSecret  string
	appBaseURL string
	eventBus   events.Bus
	log        *logger.Logger
}

// NewService creates a new webhook service.
func NewService(store Store, revoker AccountRevoker, cfg config.WebhookConfig, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:      store,
		revoker:    revoker,
		appSecret:  cfg.GetGraphAppSecret(),
		appBaseURL: cfg.GetAppBaseURL(),
		eventBus:   eventBus,
		log:        log,
	}
}

// Deauthorize processes a deauthorization callback: the user removed the
// app on the platform side, so every link to that profile is revoked.
func (s *Service) Deauthorize(ctx context.Context, signedRequest string) error {
	payload, err := ParseSignedRequest(signedRequest, s.appSecret)
	if err != nil {
		return err
	}

	s.logEvent(ctx, EventKindDeauthorize, payload)

	userIDs, err := s.revoker.RevokeByGraphUserID(ctx, payload.UserID)
	if err != nil {
		s.log.Error("webhook: failed to revoke accounts after deauthorization", "error", err, "graphUserId", payload.UserID)
		return err
	}

	s.log.Info("webhook: deauthorization processed", "graphUserId", payload.UserID, "revoked", len(userIDs))
	return nil
}

// RequestDataDeletion processes a data deletion callback. It records the
// request, purges the platform-sourced data we hold (the linked account
// row with its token and profile) and returns the request so the caller
// can answer with the confirmation code. Upload history is the user's
// own data and stays.
func (s *Service) RequestDataDeletion(ctx context.Context, signedRequest string) (DeletionRequest, error) {
	payload, err := ParseSignedRequest(signedRequest, s.appSecret)
	if err != nil {
		return DeletionRequest{}, err
	}

	s.logEvent(ctx, EventKindDataDeletion, payload)

	code, err := GenerateConfirmationCode()
	if err != nil {
		return DeletionRequest{}, err
	}

	req, err := s.store.CreateDeletionRequest(ctx, payload.UserID, code)
	if err != nil {
		return DeletionRequest{}, err
	}

	s.eventBus.Publish(ctx, events.DataDeletionRequested{
		BaseEvent:        events.NewBaseEvent(),
		GraphUserID:      payload.UserID,
		ConfirmationCode: code,
		ReceivedAt:       req.ReceivedAt,
	})

	if _, err := s.revoker.RevokeByGraphUserID(ctx, payload.UserID); err != nil {
		// Leave the request pending; the status URL keeps reporting it
		// until an operator finishes the purge.
		s.log.Error("webhook: data deletion purge failed", "error", err, "graphUserId", payload.UserID, "confirmationCode", code)
		return req, nil
	}

	if err := s.store.MarkDeletionCompleted(ctx, code); err != nil {
		s.log.Error("webhook: failed to mark deletion request completed", "error", err, "confirmationCode", code)
		return req, nil
	}
	req.Status = DeletionStatusCompleted

	s.log.Info("webhook: data deletion processed", "graphUserId", payload.UserID, "confirmationCode", code)
	return req, nil
}

// DeletionStatus reports the state of a previously received deletion
// request.
func (s *Service) DeletionStatus(ctx context.Context, code string) (DeletionRequest, error) {
	return s.store.GetDeletionRequestByCode(ctx, code)
}

// StatusURL builds the user-facing URL where a deletion request can be
// tracked. The platform shows it to the user next to the confirmation
// code.
func (s *Service) StatusURL(code string) string {
	return strings.TrimRight(s.appBaseURL, "/") + "/data-deletion/" + code
}

func (s *Service) logEvent(ctx context.Context, kind string, payload SignedRequestPayload) {
	raw, _ := json.Marshal(payload)
	if err := s.store.LogEvent(ctx, kind, payload.UserID, raw); err != nil {
		s.log.Error("webhook: failed to log callback event", "error", err, "kind", kind)
		// Non-fatal: the callback is still processed
	}
}
