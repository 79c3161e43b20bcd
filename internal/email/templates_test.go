package email

import (
	"strings"
	"testing"
)

func TestRenderVerificationTemplateContainsCTA(t *testing.T) {
	content, err := renderEmailTemplate("verification.html", verificationEmailData{
		baseEmailData: baseEmailData{
			Title:    "Verify your email address",
			Heading:  "Verify your email address",
			CTALabel: "Verify email",
			CTAURL:   "https://app.example.com/verify-email?token=abc",
		},
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(content, "https://app.example.com/verify-email?token=abc") {
		t.Fatal("expected rendered email to contain the verify URL")
	}
	if !strings.Contains(content, "Verify email") {
		t.Fatal("expected rendered email to contain the CTA label")
	}
}

func TestRenderUploadFailedTemplateIncludesDetails(t *testing.T) {
	content, err := renderEmailTemplate("upload_failed.html", uploadFailedEmailData{
		baseEmailData: baseEmailData{
			Title:    "Photo could not be published",
			Heading:  "Photo could not be published",
			CTALabel: "View uploads",
			CTAURL:   "https://app.example.com/uploads",
		},
		FileName: "IMG_0042.jpg",
		Reason:   "Invalid parameter",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(content, "IMG_0042.jpg") {
		t.Fatal("expected rendered email to name the photo")
	}
	if !strings.Contains(content, "Invalid parameter") {
		t.Fatal("expected rendered email to include the failure reason")
	}
}

func TestRenderTemplateEscapesFailureReason(t *testing.T) {
	// Failure reasons come from the Graph API; they must never inject markup.
	content, err := renderEmailTemplate("upload_failed.html", uploadFailedEmailData{
		baseEmailData: baseEmailData{Title: "t", Heading: "h"},
		FileName:      "IMG_0001.jpg",
		Reason:        "<script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if strings.Contains(content, "<script>") {
		t.Fatal("expected reason to be HTML-escaped")
	}
	if !strings.Contains(content, "&lt;script&gt;") {
		t.Fatal("expected escaped reason in output")
	}
}

func TestRenderAccountRevokedTemplateRenders(t *testing.T) {
	content, err := renderEmailTemplate("account_revoked.html", accountRevokedEmailData{
		baseEmailData: baseEmailData{
			Title:    "Facebook account disconnected",
			Heading:  "Facebook account disconnected",
			CTALabel: "Reconnect account",
			CTAURL:   "https://app.example.com/connect",
		},
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !strings.Contains(content, "Reconnect account") {
		t.Fatal("expected rendered email to contain the CTA label")
	}
}
