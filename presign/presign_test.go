package presign

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testutil "github.com/talentbridge/go-apiclient/internal/testing"
)

func TestStatic(t *testing.T) {
	s := Static{URL: "http://127.0.0.1:9000/uploads"}

	desc, err := s.Presign(context.Background(), "cv/a.pdf", "application/pdf", 1024)

	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/uploads", desc.UploadURL)
	assert.Equal(t, "cv/a.pdf", desc.FileKey)
	assert.Equal(t, map[string]string{"key": "cv/a.pdf", "Content-Type": "application/pdf"}, desc.Fields)
}

func TestStatic_Invalid(t *testing.T) {
	_, err := Static{URL: "http://127.0.0.1"}.Presign(context.Background(), "", "", 1)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = Static{URL: "http://127.0.0.1"}.Presign(context.Background(), "k", "", 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = Static{URL: "not a url"}.Presign(context.Background(), "k", "", 1)
	assert.Error(t, err)
}

func TestMinIO(t *testing.T) {
	// Given
	m, err := NewMinIO(MinIOParams{
		Endpoint:        "127.0.0.1:9000",
		Bucket:          "talent",
		Region:          "us-east-1",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio-secret",
	})
	require.NoError(t, err)

	// When
	desc, err := m.Presign(context.Background(), "photo/me.png", "image/png", 2<<20)

	// Then
	require.NoError(t, err)
	assert.Contains(t, desc.UploadURL, "http://127.0.0.1:9000/talent")
	assert.Equal(t, "photo/me.png", desc.FileKey)
	assert.Equal(t, "photo/me.png", desc.Fields["key"])
	assert.NotEmpty(t, desc.Fields["policy"])
	assert.NotEmpty(t, desc.Fields["x-amz-signature"])
}

func TestNewMinIO_Invalid(t *testing.T) {
	_, err := NewMinIO(MinIOParams{Endpoint: "127.0.0.1:9000", Region: "us-east-1"})
	assert.Error(t, err)

	_, err = NewMinIO(MinIOParams{Endpoint: "127.0.0.1:9000", Bucket: "b"})
	assert.Error(t, err)
}

func TestS3(t *testing.T) {
	// Given
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")

	p, err := NewS3(context.Background(), S3Params{
		Region:          "eu-west-1",
		Bucket:          "talent",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Endpoint:        "http://127.0.0.1:9000",
	}, testutil.NewLogger())
	require.NoError(t, err)

	// When
	desc, err := p.Presign(context.Background(), "cv/a.pdf", "application/pdf", 5<<20)

	// Then
	require.NoError(t, err)
	assert.Contains(t, desc.UploadURL, "127.0.0.1:9000")
	assert.Equal(t, "cv/a.pdf", desc.FileKey)
	assert.Equal(t, "cv/a.pdf", desc.Fields["key"])
	assert.Greater(t, len(desc.Fields), 1)
}

func TestNewS3_RequiresRegion(t *testing.T) {
	_, err := NewS3(context.Background(), S3Params{Bucket: "talent"}, testutil.NewLogger())

	assert.Error(t, err)
}
