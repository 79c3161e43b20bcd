package webhook

import (
	"errors"
	"net/http"
	"time"

	"photobridge_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const (
	errMissingSignedRequest = "missing signed_request"
	errInvalidSignedRequest = "invalid signed_request"
)

// Handler handles platform callback HTTP requests.
type Handler struct {
	service *Service
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ---- Platform callbacks (public, signature authenticated) ----

// HandleDeauthorize processes a deauthorization callback.
// POST /api/v1/webhooks/facebook/deauthorize
// The platform sends a form-encoded body with a signed_request field.
func (h *Handler) HandleDeauthorize(c *gin.Context) {
	signedRequest := c.PostForm("signed_request")
	if signedRequest == "" {
		httpkit.Error(c, http.StatusBadRequest, errMissingSignedRequest, nil)
		return
	}

	if err := h.service.Deauthorize(c.Request.Context(), signedRequest); err != nil {
		if isSignedRequestError(err) {
			httpkit.Error(c, http.StatusBadRequest, errInvalidSignedRequest, nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, gin.H{"success": true})
}

// DataDeletionResponse acknowledges a data deletion callback. Field
// names follow the platform contract, not our usual camelCase.
type DataDeletionResponse struct {
	URL              string `json:"url"`
	ConfirmationCode string `json:"confirmation_code"`
}

// HandleDataDeletion processes a data deletion callback.
// POST /api/v1/webhooks/facebook/data-deletion
func (h *Handler) HandleDataDeletion(c *gin.Context) {
	signedRequest := c.PostForm("signed_request")
	if signedRequest == "" {
		httpkit.Error(c, http.StatusBadRequest, errMissingSignedRequest, nil)
		return
	}

	req, err := h.service.RequestDataDeletion(c.Request.Context(), signedRequest)
	if err != nil {
		if isSignedRequestError(err) {
			httpkit.Error(c, http.StatusBadRequest, errInvalidSignedRequest, nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, DataDeletionResponse{
		URL:              h.service.StatusURL(req.ConfirmationCode),
		ConfirmationCode: req.ConfirmationCode,
	})
}

// DeletionStatusResponse reports the state of a deletion request.
type DeletionStatusResponse struct {
	ConfirmationCode string     `json:"confirmationCode"`
	Status           string     `json:"status"`
	ReceivedAt       time.Time  `json:"receivedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// HandleDeletionStatus reports the state of a deletion request.
// GET /api/v1/webhooks/facebook/data-deletion/:code
func (h *Handler) HandleDeletionStatus(c *gin.Context) {
	req, err := h.service.DeletionStatus(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, ErrDeletionRequestNotFound) {
			httpkit.Error(c, http.StatusNotFound, "deletion request not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, DeletionStatusResponse{
		ConfirmationCode: req.ConfirmationCode,
		Status:           req.Status,
		ReceivedAt:       req.ReceivedAt,
		CompletedAt:      req.CompletedAt,
	})
}

func isSignedRequestError(err error) bool {
	return errors.Is(err, ErrMalformedSignedRequest) ||
		errors.Is(err, ErrBadSignature) ||
		errors.Is(err, ErrUnsupportedAlgorithm)
}
