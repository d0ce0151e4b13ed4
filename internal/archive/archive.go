// Package archive provides S3-compatible storage for run reports and
// pre-signed URL generation. When archiving is not configured (empty
// bucket), the NoopUploader is used and all S3 operations are skipped,
// keeping the system in local-only mode.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/brightline/vantage/internal/config"
	"github.com/brightline/vantage/internal/syncer"
)

// ErrNotConfigured is returned when report archiving is not configured.
var ErrNotConfigured = errors.New("report archive not configured")

// Uploader uploads run reports and generates pre-signed download URLs.
type Uploader interface {
	// Upload uploads the report file for the given run.
	Upload(ctx context.Context, runID string, filePath string) error

	// PresignedURL returns a pre-signed URL for downloading a run's report.
	// Returns ErrNotConfigured when archiving is not configured.
	PresignedURL(ctx context.Context, runID string) (url string, expiry time.Time, err error)
}

// s3Client defines the minimal minio.Client operations used by S3Uploader.
// This interface enables testing with mock implementations.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string, opts interface{}) error
	PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client interface.
// This is necessary because minio.Client methods have concrete option types
// that differ from our simplified interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) FPutObject(ctx context.Context, bucket, objectName, filePath string, opts interface{}) error {
	putOpts := minio.PutObjectOptions{
		ContentType: "application/json",
	}
	_, err := w.client.FPutObject(ctx, bucket, objectName, filePath, putOpts)
	return err
}

func (w *minioClientWrapper) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	return w.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
}

// S3Uploader uploads run reports to S3-compatible storage.
type S3Uploader struct {
	client    s3Client
	bucket    string
	urlExpiry time.Duration
}

// Upload uploads the report file at filePath for the given run.
func (u *S3Uploader) Upload(ctx context.Context, runID string, filePath string) error {
	key := objectKey(runID)
	if err := u.client.FPutObject(ctx, u.bucket, key, filePath, nil); err != nil {
		return fmt.Errorf("upload report to S3: %w", err)
	}
	return nil
}

// PresignedURL returns a pre-signed GET URL for the run's report.
func (u *S3Uploader) PresignedURL(ctx context.Context, runID string) (string, time.Time, error) {
	key := objectKey(runID)
	presigned, err := u.client.PresignedGetObject(ctx, u.bucket, key, u.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	expiry := time.Now().Add(u.urlExpiry)
	return presigned.String(), expiry, nil
}

// NoopUploader is used when report archiving is not configured.
// Upload is a no-op and PresignedURL returns ErrNotConfigured.
type NoopUploader struct{}

// Upload is a no-op when archiving is not configured.
func (u *NoopUploader) Upload(ctx context.Context, runID string, filePath string) error {
	return nil
}

// PresignedURL returns ErrNotConfigured when archiving is not configured.
func (u *NoopUploader) PresignedURL(ctx context.Context, runID string) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

// NewUploader creates the appropriate Uploader based on configuration.
// Returns NoopUploader when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.ArchiveConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client:    &minioClientWrapper{client: client},
		bucket:    cfg.Bucket,
		urlExpiry: time.Duration(cfg.URLExpiry),
	}, nil
}

// StoreReport marshals the run report and uploads it under the run's key.
// The intermediate file lives in the OS temp directory and is removed after
// the upload.
func StoreReport(ctx context.Context, u Uploader, report *syncer.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("vantage-report-%s.json", report.RunID))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	defer os.Remove(path)

	return u.Upload(ctx, report.RunID, path)
}

// objectKey returns the S3 object key for a run's report.
// Convention: runs/{run_id}/report.json
func objectKey(runID string) string {
	return "runs/" + runID + "/report.json"
}
