package storage

import (
	"fmt"
	"strings"
)

// allowedContentTypes are the photo MIME types accepted for staging.
// The Graph photo endpoint handles JPEG and PNG; camera raw formats
// (CR2, NEF, ARW) must be converted client-side before upload.
var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ValidateContentType rejects anything that is not an accepted photo
// type. Media type parameters such as charset are ignored.
func (s *MinIOService) ValidateContentType(contentType string) error {
	normalized := strings.Split(contentType, ";")[0]
	normalized = strings.TrimSpace(strings.ToLower(normalized))

	if !allowedContentTypes[normalized] {
		return fmt.Errorf("content type %q is not allowed, expected a JPEG or PNG photo", contentType)
	}
	return nil
}

// ValidateFileSize rejects empty files and files over the configured cap.
func (s *MinIOService) ValidateFileSize(sizeBytes int64) error {
	if sizeBytes <= 0 {
		return fmt.Errorf("file size must be greater than 0")
	}
	if sizeBytes > s.maxFileSize {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size of %d bytes", sizeBytes, s.maxFileSize)
	}
	return nil
}
