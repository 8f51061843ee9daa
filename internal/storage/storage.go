// Package storage provides file storage abstraction for report images.
//
// Two implementations are provided:
// - LocalStorage: filesystem storage for development
// - R2Storage: Cloudflare R2 (S3-compatible) object storage for production
//
// Keys are namespaced per report so that a report's images, annotated
// variants, and thumbnail live under one prefix.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Storage defines the interface for file storage operations.
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key with the given options.
	// Returns ErrKeyExists if the key is taken and overwrite is disabled.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the data at the specified key. The caller must close
	// the returned reader. Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at the specified key. Idempotent: deleting
	// a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a URL for accessing the object. With a public bucket this
	// is permanent; otherwise a presigned URL valid for expires.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists reports whether an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is the MIME type of the object. If empty, it is detected
	// from the key's extension or the content itself.
	ContentType string

	// MaxSize caps the object size in bytes; ErrTooLarge is returned when
	// exceeded. Zero means no limit.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool

	// Public marks the object publicly readable (sets the ACL on R2;
	// informational for local storage).
	Public bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where files are stored.
	BasePath string

	// BaseURL is the public URL prefix for accessing files,
	// e.g. "http://localhost:8080/files".
	BaseURL string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the bucket's public URL (custom domain). If empty,
	// presigned URLs are used for all access.
	PublicURL string

	// Region passed to the AWS SDK. R2 accepts "auto".
	Region string
}

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderR2 identifies the Cloudflare R2 storage provider.
	ProviderR2 = "r2"
)

// ImageKey generates a storage key for an uploaded report image.
// Format: reports/{reportID}/images/{uuid}.{ext}
func ImageKey(reportID uuid.UUID, filename string) string {
	ext := filepath.Ext(filename)
	imageID := uuid.New()
	return fmt.Sprintf("reports/%s/images/%s%s", reportID, imageID, ext)
}

// ThumbnailKey generates a storage key for a report's thumbnail.
// Format: reports/{reportID}/thumbnails/{uuid}.jpg
func ThumbnailKey(reportID uuid.UUID) string {
	return fmt.Sprintf("reports/%s/thumbnails/%s.jpg", reportID, uuid.New())
}

// AnnotatedKey generates a storage key for a crack-annotated image variant.
// Format: reports/{reportID}/annotated/{uuid}.{ext}
func AnnotatedKey(reportID uuid.UUID, contentType string) string {
	return fmt.Sprintf("reports/%s/annotated/%s%s", reportID, uuid.New(), extensionForContentType(contentType))
}
