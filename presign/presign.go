// Package presign issues storage descriptors for direct uploads.
package presign

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/talentbridge/go-apiclient/upload"
)

// DefaultExpiry is how long an issued descriptor stays valid.
const DefaultExpiry = 15 * time.Minute

// ErrInvalidRequest is returned for a key or size a descriptor cannot be
// issued for.
var ErrInvalidRequest = errors.New("invalid presign request")

// Presigner issues a descriptor that lets a client post one object.
type Presigner interface {
	Presign(ctx context.Context, key, contentType string, maxSize int64) (upload.Descriptor, error)
}

func check(key string, maxSize int64) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidRequest)
	}
	if maxSize <= 0 {
		return fmt.Errorf("%w: max size must be positive", ErrInvalidRequest)
	}
	return nil
}

// Static returns the same URL for every key. Its fields carry the key and
// content type only, there is no signature.
type Static struct {
	URL string
}

// Presign ...
func (s Static) Presign(_ context.Context, key, contentType string, maxSize int64) (upload.Descriptor, error) {
	if err := check(key, maxSize); err != nil {
		return upload.Descriptor{}, err
	}
	if _, err := url.ParseRequestURI(s.URL); err != nil {
		return upload.Descriptor{}, fmt.Errorf("static upload url: %w", err)
	}

	fields := map[string]string{"key": key}
	if contentType != "" {
		fields["Content-Type"] = contentType
	}
	return upload.Descriptor{UploadURL: s.URL, FileKey: key, Fields: fields}, nil
}
