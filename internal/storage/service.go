package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"backend-pilanitrails/internal/identity"
	"backend-pilanitrails/internal/shared/apperr"
	"backend-pilanitrails/internal/store"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

const MaxImageBytes = 5 << 20

var errNotConfigured = errors.New("image storage not configured")

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ObjectStore is the slice of *minio.Client the service needs.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type Upload struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Object      string `json:"object"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Service struct {
	objects ObjectStore
	bucket  string
	baseURL string
	store   store.Store
}

// NewService stores images in bucket. Public URLs are baseURL/bucket/object.
// A nil objects store disables uploads.
func NewService(objects ObjectStore, bucket, baseURL string, s store.Store) *Service {
	return &Service{
		objects: objects,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   s,
	}
}

// BaseURL picks the public address of the object store: the configured
// override, or the endpoint itself.
func BaseURL(endpoint string, useSSL bool, override string) string {
	if override != "" {
		return override
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}

func (s *Service) SaveImage(ctx context.Context, user *identity.User, contentType string, r io.Reader, size int64) (Upload, error) {
	if user == nil {
		return Upload{}, &apperr.AuthorizationError{Action: "upload image"}
	}
	if s.objects == nil {
		return Upload{}, &apperr.StoreUnavailableError{Op: "upload image", Err: errNotConfigured}
	}

	ext, ok := imageExtensions[contentType]
	verr := &apperr.ValidationError{}
	if !ok {
		verr.Add("file", "must be a jpeg, png, webp or gif image")
	}
	if size <= 0 || size > MaxImageBytes {
		verr.Add("file", fmt.Sprintf("must be between 1 byte and %d bytes", MaxImageBytes))
	}
	if err := verr.OrNil(); err != nil {
		return Upload{}, err
	}

	object := path.Join("proposals", user.ID, uuid.NewString()+ext)
	if _, err := s.objects.PutObject(ctx, s.bucket, object, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return Upload{}, &apperr.StoreUnavailableError{Op: "upload image", Err: err}
	}

	up := Upload{
		URL:         s.baseURL + "/" + s.bucket + "/" + object,
		Object:      object,
		ContentType: contentType,
		Size:        size,
	}
	id, err := s.store.Create(ctx, store.Uploads, map[string]any{
		"userId":      user.ID,
		"bucket":      s.bucket,
		"object":      object,
		"url":         up.URL,
		"contentType": contentType,
		"size":        size,
		"createdAt":   store.ServerTimestamp,
	})
	if err != nil {
		return Upload{}, &apperr.StoreUnavailableError{Op: "record upload", Err: err}
	}
	up.ID = id
	return up, nil
}
