package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// signRequest builds a signed_request the way the platform does: the
// b64url payload, signed with HMAC-SHA256 over the encoded segment.
func signRequest(t *testing.T, secret string, payload SignedRequestPayload) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encoded))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return sig + "." + encoded
}

func TestParseSignedRequest(t *testing.T) {
	signed := signRequest(t, "app-secret", SignedRequestPayload{
		UserID:    "fb-123",
		Algorithm: "HMAC-SHA256",
		IssuedAt:  1700000000,
	})

	payload, err := ParseSignedRequest(signed, "app-secret")
	if err != nil {
		t.Fatalf("ParseSignedRequest returned error: %v", err)
	}
	if payload.UserID != "fb-123" {
		t.Fatalf("expected user fb-123, got %q", payload.UserID)
	}
	if payload.IssuedAt != 1700000000 {
		t.Fatalf("unexpected issued_at: %d", payload.IssuedAt)
	}
}

func TestParseSignedRequestRejectsWrongSecret(t *testing.T) {
	signed := signRequest(t, "app-secret", SignedRequestPayload{
		UserID:    "fb-123",
		Algorithm: "HMAC-SHA256",
	})

	_, err := ParseSignedRequest(signed, "other-secret")
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestParseSignedRequestRejectsTamperedPayload(t *testing.T) {
	signed := signRequest(t, "app-secret", SignedRequestPayload{
		UserID:    "fb-123",
		Algorithm: "HMAC-SHA256",
	})
	forged, err := json.Marshal(SignedRequestPayload{UserID: "fb-evil", Algorithm: "HMAC-SHA256"})
	if err != nil {
		t.Fatal(err)
	}
	sig := strings.SplitN(signed, ".", 2)[0]
	tampered := sig + "." + base64.RawURLEncoding.EncodeToString(forged)

	if _, err := ParseSignedRequest(tampered, "app-secret"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestParseSignedRequestRejectsMalformedInput(t *testing.T) {
	cases := []string{
		"",
		"nodot",
		".payload-without-sig",
		"sig-without-payload.",
		"!!!.!!!",
	}
	for _, signed := range cases {
		if _, err := ParseSignedRequest(signed, "app-secret"); !errors.Is(err, ErrMalformedSignedRequest) {
			t.Fatalf("input %q: expected ErrMalformedSignedRequest, got %v", signed, err)
		}
	}
}

func TestParseSignedRequestRejectsUnknownAlgorithm(t *testing.T) {
	signed := signRequest(t, "app-secret", SignedRequestPayload{
		UserID:    "fb-123",
		Algorithm: "HMAC-MD5",
	})

	if _, err := ParseSignedRequest(signed, "app-secret"); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestParseSignedRequestAcceptsPaddedSegments(t *testing.T) {
	// Some client libraries keep the base64 padding; the platform strips it.
	raw, err := json.Marshal(SignedRequestPayload{UserID: "fb-123", Algorithm: "HMAC-SHA256"})
	if err != nil {
		t.Fatal(err)
	}
	encoded := base64.URLEncoding.EncodeToString(raw)
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write([]byte(encoded))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	payload, err := ParseSignedRequest(sig+"."+encoded, "app-secret")
	if err != nil {
		t.Fatalf("ParseSignedRequest returned error: %v", err)
	}
	if payload.UserID != "fb-123" {
		t.Fatalf("expected user fb-123, got %q", payload.UserID)
	}
}
