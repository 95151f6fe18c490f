package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrObjectNotFound is returned by Get when no object exists under the key
var ErrObjectNotFound = errors.New("object not found")

// Storage interface for file storage operations
type Storage interface {
	// Put stores data under key and returns a URL that resolves to it
	Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) (string, error)

	// Get retrieves an object by key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// SignedURL returns a time-limited URL for reading the object
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
	StorageTypeGCS   StorageType = "gcs"
)

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type StorageType

	LocalPath    string // For local storage
	LocalBaseURL string // Prefix for URLs of locally stored files

	S3Bucket     string // For S3 storage
	S3Region     string // For S3 storage
	S3Endpoint   string // Optional S3-compatible endpoint, switches to path-style addressing
	AWSAccessKey string
	AWSSecretKey string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string

	GCSBucket string
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(ctx context.Context, cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeLocal:
		return NewLocalStorage(cfg.LocalPath, cfg.LocalBaseURL)
	case StorageTypeS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET is required for S3 storage")
		}
		return NewS3Storage(ctx, cfg)
	case StorageTypeMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
			return nil, errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required for MinIO storage")
		}
		return NewMinioStorage(cfg)
	case StorageTypeGCS:
		if cfg.GCSBucket == "" {
			return nil, errors.New("GCS_BUCKET is required for GCS storage")
		}
		return NewGCSStorage(ctx, cfg.GCSBucket)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// GenerateKey derives the object key for an upload. The discriminator keeps
// keys unique when one owner uploads the same name within the same millisecond.
func GenerateKey(ownerID uuid.UUID, at time.Time, filename string, discriminator uuid.UUID) string {
	return fmt.Sprintf("%s/%d-%s-%s", ownerID.String(), at.UnixMilli(), discriminator.String(), sanitizeFilename(filename))
}

var filenameReplacer = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", "..", "_")

func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	baseName := filenameReplacer.Replace(strings.TrimSuffix(filename, ext))
	if baseName == "" {
		baseName = "file"
	}
	return baseName + filenameReplacer.Replace(ext)
}

// escapeKey escapes each key segment for use in a URL path. Keys hold
// user-supplied names, so '#', '?' and '%' must not reach the URL raw.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// ContentType determines content type from filename
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
