package presign

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/talentbridge/go-apiclient/upload"
)

// MinIOParams ...
type MinIOParams struct {
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Secure          bool
	Expiry          time.Duration
}

// MinIO signs POST policies for a MinIO or other S3 compatible endpoint.
// Signing happens locally; the region is pinned so no bucket location
// lookup is made.
type MinIO struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	now    func() time.Time
}

// NewMinIO ...
func NewMinIO(params MinIOParams) (*MinIO, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}
	if params.Region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	client, err := minio.New(params.Endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(params.AccessKeyID, params.SecretAccessKey, ""),
		Secure: params.Secure,
		Region: params.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	expiry := params.Expiry
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &MinIO{client: client, bucket: params.Bucket, expiry: expiry, now: time.Now}, nil
}

// Presign ...
func (m *MinIO) Presign(ctx context.Context, key, contentType string, maxSize int64) (upload.Descriptor, error) {
	if err := check(key, maxSize); err != nil {
		return upload.Descriptor{}, err
	}

	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(m.bucket); err != nil {
		return upload.Descriptor{}, err
	}
	if err := policy.SetKey(key); err != nil {
		return upload.Descriptor{}, err
	}
	if err := policy.SetExpires(m.now().UTC().Add(m.expiry)); err != nil {
		return upload.Descriptor{}, err
	}
	if contentType != "" {
		if err := policy.SetContentType(contentType); err != nil {
			return upload.Descriptor{}, err
		}
	}
	if err := policy.SetContentLengthRange(1, maxSize); err != nil {
		return upload.Descriptor{}, err
	}

	u, fields, err := m.client.PresignedPostPolicy(ctx, policy)
	if err != nil {
		return upload.Descriptor{}, fmt.Errorf("presign post policy: %w", err)
	}
	return upload.Descriptor{UploadURL: u.String(), FileKey: key, Fields: fields}, nil
}
