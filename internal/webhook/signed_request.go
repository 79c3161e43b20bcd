// Package webhook provides the platform callback bounded context.
// It handles Facebook's deauthorization and data deletion callbacks,
// which arrive as HMAC-signed `signed_request` form payloads.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrMalformedSignedRequest = errors.New("malformed signed_request")
	ErrBadSignature           = errors.New("signed_request signature mismatch")
	ErrUnsupportedAlgorithm   = errors.New("unsupported signed_request algorithm")
)

// SignedRequestPayload is the decoded payload of a signed_request.
type SignedRequestPayload struct {
	UserID    string `json:"user_id"`
	Algorithm string `json:"algorithm"`
	IssuedAt  int64  `json:"issued_at"`
}

// ParseSignedRequest verifies and decodes a signed_request value. The
// format is "<base64url signature>.<base64url payload>" where the
// signature is an HMAC-SHA256 over the still-encoded payload segment.
func ParseSignedRequest(signedRequest, appSecret string) (SignedRequestPayload, error) {
	parts := strings.SplitN(signedRequest, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return SignedRequestPayload{}, ErrMalformedSignedRequest
	}

	sig, err := decodeBase64URL(parts[0])
	if err != nil {
		return SignedRequestPayload{}, ErrMalformedSignedRequest
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte(parts[1]))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return SignedRequestPayload{}, ErrBadSignature
	}

	raw, err := decodeBase64URL(parts[1])
	if err != nil {
		return SignedRequestPayload{}, ErrMalformedSignedRequest
	}

	var payload SignedRequestPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return SignedRequestPayload{}, ErrMalformedSignedRequest
	}
	if !strings.EqualFold(payload.Algorithm, "HMAC-SHA256") {
		return SignedRequestPayload{}, ErrUnsupportedAlgorithm
	}
	if payload.UserID == "" {
		return SignedRequestPayload{}, ErrMalformedSignedRequest
	}

	return payload, nil
}

// decodeBase64URL accepts both padded and unpadded base64url segments;
// the platform sends them unpadded.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
