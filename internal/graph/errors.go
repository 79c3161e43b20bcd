package graph

import (
	"errors"
	"fmt"

	"photobridge_backend/platform/apperr"
)

// Error is the error payload returned by the Graph API.
type Error struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("graph: %s (type=%s code=%d)", e.Message, e.Type, e.Code)
}

// IsAuth reports whether the error means the access token is invalid or
// expired. Callers should stop retrying and ask the user to re-link.
func (e *Error) IsAuth() bool {
	return e.Code == 190 || e.Type == "OAuthException"
}

// IsPermission reports whether the error means a required permission is
// missing or was revoked.
func (e *Error) IsPermission() bool {
	return e.Code == 10 || (e.Code >= 200 && e.Code <= 299)
}

// IsRateLimited reports whether the request was throttled. These are
// transient and safe to retry after a backoff.
func (e *Error) IsRateLimited() bool {
	switch e.Code {
	case 4, 17, 32, 613:
		return true
	}
	return false
}

// Temporary reports whether the failure is worth retrying.
func (e *Error) Temporary() bool {
	return e.IsRateLimited() || e.HTTPStatus >= 500
}

// MapError converts a failed Graph call into a typed application error.
// Auth failures surface as 401 so clients know to re-link their account.
func MapError(op string, err error) error {
	var graphErr *Error
	if !errors.As(err, &graphErr) {
		return apperr.Wrap(apperr.KindInternal, "facebook api request failed", err).WithOp(op)
	}

	switch {
	case graphErr.IsAuth():
		return apperr.Wrap(apperr.KindUnauthorized, "facebook access token is invalid or expired", err).WithOp(op)
	case graphErr.IsPermission():
		return apperr.Wrap(apperr.KindForbidden, "facebook permission missing or revoked", err).WithOp(op)
	case graphErr.Temporary():
		return apperr.Wrap(apperr.KindInternal, "facebook api temporarily unavailable", err).WithOp(op)
	default:
		return apperr.Wrap(apperr.KindBadRequest, "facebook api rejected the request", err).WithOp(op)
	}
}
