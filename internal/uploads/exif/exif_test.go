package exif

import (
	"bytes"
	"strings"
	"testing"
)

func TestExtract_NonJPEGYieldsEmptyMetadata(t *testing.T) {
	meta := Extract(strings.NewReader("not a photo at all"))

	if meta.Latitude != nil || meta.Longitude != nil || meta.TakenAt != nil {
		t.Fatalf("expected empty metadata for non-JPEG input, got %+v", meta)
	}
}

func TestExtract_TruncatedJPEGYieldsEmptyMetadata(t *testing.T) {
	// SOI marker followed by a truncated APP1 segment.
	data := []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x10, 'E', 'x', 'i', 'f', 0x00, 0x00}

	meta := Extract(bytes.NewReader(data))

	if meta.Latitude != nil || meta.Longitude != nil || meta.TakenAt != nil {
		t.Fatalf("expected empty metadata for truncated EXIF, got %+v", meta)
	}
}

func TestExtract_EmptyReader(t *testing.T) {
	meta := Extract(bytes.NewReader(nil))

	if meta.TakenAt != nil {
		t.Fatalf("expected no capture time from empty input, got %v", meta.TakenAt)
	}
}
