// Package blob stores file attachments in S3-compatible object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"taskhub/api/internal/util"
)

// MaxUploadBytes caps attachment size at 4096 KiB.
const MaxUploadBytes = 4096 * 1024

// allowedTypes is the upload MIME allowlist: images, plain text, RTF and PDF.
var allowedTypes = map[string]struct{}{
	"image/png":       {},
	"image/jpeg":      {},
	"image/pjpeg":     {},
	"text/plain":      {},
	"text/rtf":        {},
	"application/pdf": {},
}

var (
	ErrTooLarge        = errors.New("file exceeds the upload size limit")
	ErrUnsupportedType = errors.New("file type is not allowed")
)

// Store wraps a MinIO bucket holding attachment blobs.
type Store struct {
	client *minio.Client
	bucket string
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewStore connects to object storage and ensures the bucket exists.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// ValidateUpload checks an upload's size and declared content type against
// the attachment policy before any bytes are written.
func ValidateUpload(size int64, contentType string) error {
	if size > MaxUploadBytes {
		return ErrTooLarge
	}
	// Strip parameters like "; charset=utf-8".
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	if _, ok := allowedTypes[strings.ToLower(mediaType)]; !ok {
		return ErrUnsupportedType
	}
	return nil
}

// StoredName derives a unique object name for an upload, keeping the
// original extension so downloads carry a sensible filename.
func StoredName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return util.NewID("att") + ext
}

// Put uploads a validated attachment under the given object name.
func (s *Store) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	if err := ValidateUpload(size, contentType); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("store blob %s: %w", objectName, err)
	}
	return nil
}

// Get opens an attachment for reading. The caller must close the reader.
func (s *Store) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch blob %s: %w", objectName, err)
	}
	return obj, nil
}

// Remove deletes an attachment blob. Missing objects are not an error so a
// metadata delete can always proceed.
func (s *Store) Remove(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("remove blob %s: %w", objectName, err)
	}
	return nil
}

// Ping verifies the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("object storage unreachable: %w", err)
	}
	return nil
}
