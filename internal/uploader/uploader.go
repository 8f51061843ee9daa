// Package uploader stores report images in object storage.
//
// Uploads fan out across goroutines so a slow file never blocks the rest,
// and each file is retried independently with exponential backoff. A failed
// file produces a per-file error; the batch itself never fails as a whole.
package uploader

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/raahi-app/raahi/internal/domain"
	"github.com/raahi-app/raahi/internal/retry"
	"github.com/raahi-app/raahi/internal/storage"
)

// File is one image to upload, fully buffered in memory. Annotated marks
// machine-generated variants, which are keyed under a separate prefix so
// they never collide with citizen uploads.
type File struct {
	Name        string
	ContentType string
	Data        []byte
	Annotated   bool
}

// Result is the outcome of uploading one file. Exactly one of URL or Err
// is meaningful. Results keep the input order of the files.
type Result struct {
	Key string
	URL string
	Err error
}

// Uploader uploads report images to a storage backend.
type Uploader struct {
	store  storage.Storage
	policy retry.Policy
	logger *slog.Logger
}

// New creates an Uploader with the default per-file retry policy.
func New(store storage.Storage, logger *slog.Logger) *Uploader {
	return &Uploader{
		store:  store,
		policy: retry.DefaultPolicy(),
		logger: logger.With("component", "uploader"),
	}
}

// UploadAll stores every file under the report's key prefix concurrently
// and returns one Result per input file, in input order.
func (u *Uploader) UploadAll(ctx context.Context, reportID uuid.UUID, files []File) []Result {
	results := make([]Result, len(files))

	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f File) {
			defer wg.Done()
			results[i] = u.uploadOne(ctx, reportID, f)
		}(i, f)
	}
	wg.Wait()

	return results
}

func (u *Uploader) uploadOne(ctx context.Context, reportID uuid.UUID, f File) Result {
	key := storage.ImageKey(reportID, f.Name)
	if f.Annotated {
		key = storage.AnnotatedKey(reportID, f.ContentType)
	}

	url, err := retry.Do(ctx, u.policy, func(ctx context.Context) (string, error) {
		// Overwrite is safe: the key is unique to this upload, and a retry
		// may be replacing a partial write.
		err := u.store.Put(ctx, key, bytes.NewReader(f.Data), storage.PutOptions{
			ContentType: f.ContentType,
			MaxSize:     domain.MaxImageSize,
			Overwrite:   true,
			Public:      true,
		})
		if err != nil {
			return "", err
		}
		return u.store.URL(ctx, key, 0)
	})
	if err != nil {
		u.logger.Error("image upload failed",
			"report_id", reportID,
			"file", f.Name,
			"error", err)
		return Result{Key: key, Err: err}
	}

	u.logger.Debug("image uploaded",
		"report_id", reportID,
		"file", f.Name,
		"key", key)

	return Result{Key: key, URL: url}
}

// UploadThumbnail generates a thumbnail from the image data and stores it
// under the report's thumbnail prefix, returning the public URL.
func (u *Uploader) UploadThumbnail(ctx context.Context, reportID uuid.UUID, imageData []byte) (string, error) {
	thumb, err := Thumbnail(imageData, domain.ThumbnailMaxWidth, domain.ThumbnailMaxHeight)
	if err != nil {
		return "", err
	}

	key := storage.ThumbnailKey(reportID)

	return retry.Do(ctx, u.policy, func(ctx context.Context) (string, error) {
		err := u.store.Put(ctx, key, bytes.NewReader(thumb), storage.PutOptions{
			ContentType: "image/jpeg",
			Overwrite:   true,
			Public:      true,
		})
		if err != nil {
			return "", err
		}
		return u.store.URL(ctx, key, 0)
	})
}

// DeleteAll removes the given keys, best effort. Used to clean up uploaded
// assets when report persistence ultimately fails. Returns the keys that
// could not be deleted.
func (u *Uploader) DeleteAll(ctx context.Context, keys []string) []string {
	var failed []string
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := u.store.Delete(ctx, key); err != nil {
			u.logger.Error("failed to delete uploaded asset", "key", key, "error", err)
			failed = append(failed, key)
		}
	}
	return failed
}
