// Package storage provides S3-compatible object storage for staged photos.
// Uploads are held here between intake and the background publish to the
// Graph API, then cleaned up by the retention sweep.
package storage

import (
	"context"
	"io"
	"time"
)

// PresignedURL contains the URL and metadata for a presigned download.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// StorageService is the staging surface the upload pipeline depends on.
type StorageService interface {
	// UploadFile stages a file and returns the key it was stored under.
	UploadFile(ctx context.Context, bucket, folder, fileName, contentType string, reader io.Reader, size int64) (string, error)

	// DownloadFile streams a staged file back out of storage.
	// The caller is responsible for closing the returned io.ReadCloser.
	DownloadFile(ctx context.Context, bucket, fileKey string) (io.ReadCloser, error)

	// GenerateDownloadURL creates a presigned URL for previewing a staged file.
	GenerateDownloadURL(ctx context.Context, bucket, fileKey string) (*PresignedURL, error)

	// DeleteObject removes a staged object.
	DeleteObject(ctx context.Context, bucket, fileKey string) error

	// EnsureBucketExists creates the bucket if it doesn't exist.
	EnsureBucketExists(ctx context.Context, bucket string) error

	// ValidateContentType checks that the content type is an accepted photo type.
	ValidateContentType(contentType string) error

	// ValidateFileSize checks that the file size is within limits.
	ValidateFileSize(sizeBytes int64) error
}

// Config carries the connection settings the storage client reads.
type Config interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	IsMinIOEnabled() bool
}
