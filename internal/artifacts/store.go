// Package artifacts optionally uploads a completed batch's captured
// output to an S3-compatible object store for external retrieval. A
// batch's lifecycle never depends on this succeeding: upload happens
// strictly after batch_complete and its result is only ever attached to
// a log line.
package artifacts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store uploads a batch's output bundle and returns the object key it
// was stored under.
type Store interface {
	Upload(ctx context.Context, batchID string, bundle []byte) (key string, err error)
}

// NoopStore is used when ARTIFACTS_ENDPOINT is unset; Upload is a no-op.
type NoopStore struct{}

func (NoopStore) Upload(context.Context, string, []byte) (string, error) { return "", nil }

// Config holds the MinIO connection parameters, owned by internal/config.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore uploads batch output bundles to an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to cfg.Endpoint and ensures the target bucket
// exists.
func NewMinioStore(ctx context.Context, cfg Config) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check artifacts bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create artifacts bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Upload stores bundle under a key derived from batchID and returns it.
func (s *MinioStore) Upload(ctx context.Context, batchID string, bundle []byte) (string, error) {
	key := fmt.Sprintf("batches/%s/output.tar", batchID)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(bundle), int64(len(bundle)),
		minio.PutObjectOptions{ContentType: "application/x-tar"})
	if err != nil {
		return "", fmt.Errorf("upload batch artifact %s: %w", key, err)
	}
	return key, nil
}
