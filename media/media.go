// Package media uploads CVs and profile photos and downloads stored files.
package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/melbahja/got"
	"github.com/talentbridge/go-apiclient/api"
	"github.com/talentbridge/go-apiclient/envelope"
	"github.com/talentbridge/go-apiclient/formdata"
	"github.com/talentbridge/go-apiclient/progress"
	"github.com/talentbridge/go-apiclient/upload"
	"github.com/talentbridge/go-apiclient/validate"
)

const (
	UploadCVPath    = "/user/upload-cv"
	UploadPhotoPath = "/user/upload-photo"

	CategoryCV    = "cv"
	CategoryPhoto = "photo"
)

type category struct {
	name     string
	path     string
	required string
	check    func(name, mimeType string, size int64) *validate.Error
}

var (
	cvCategory    = category{name: CategoryCV, path: UploadCVPath, required: "CV file is required", check: validate.CV}
	photoCategory = category{name: CategoryPhoto, path: UploadPhotoPath, required: "Photo file is required", check: validate.Photo}
)

// Service ...
type Service struct {
	client *api.Client
	direct *upload.Orchestrator
	logger log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDirectUpload sends files straight to storage through o instead of
// through the origin.
func WithDirectUpload(o *upload.Orchestrator) Option {
	return func(s *Service) { s.direct = o }
}

// NewService ...
func NewService(client *api.Client, opts ...Option) *Service {
	s := &Service{client: client, logger: client.Logger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DirectUpload reports whether uploads bypass the origin.
func (s *Service) DirectUpload() bool {
	return s.direct != nil
}

// UploadCV validates and uploads a CV document.
func (s *Service) UploadCV(ctx context.Context, file *upload.File, onProgress progress.Func) (envelope.Envelope[upload.Result], error) {
	return s.upload(ctx, cvCategory, file, onProgress)
}

// UploadPhoto validates and uploads a profile photo.
func (s *Service) UploadPhoto(ctx context.Context, file *upload.File, onProgress progress.Func) (envelope.Envelope[upload.Result], error) {
	return s.upload(ctx, photoCategory, file, onProgress)
}

// Upload dispatches on the category name: "cv" or "photo".
func (s *Service) Upload(ctx context.Context, name string, file *upload.File, onProgress progress.Func) (envelope.Envelope[upload.Result], error) {
	switch name {
	case CategoryCV:
		return s.UploadCV(ctx, file, onProgress)
	case CategoryPhoto:
		return s.UploadPhoto(ctx, file, onProgress)
	}
	return envelope.Validation[upload.Result](fmt.Sprintf("Unknown upload type: %s", name)), nil
}

func (s *Service) upload(ctx context.Context, c category, file *upload.File, onProgress progress.Func) (envelope.Envelope[upload.Result], error) {
	if file == nil || file.Open == nil {
		return envelope.Validation[upload.Result](c.required), nil
	}
	if verr := c.check(file.Name, file.Type, file.Size); verr != nil {
		return envelope.Validation[upload.Result](verr.Message), nil
	}

	if s.direct != nil {
		s.logger.Debugf("Uploading %s directly to storage", file.Name)
		return s.direct.Upload(ctx, c.name, file, onProgress)
	}

	return api.Upload[upload.Result](ctx, s.client, c.path, api.Form{
		Files: []formdata.FilePart{file.FilePart(c.name)},
	}, onProgress)
}

// PresignedURL requests a storage descriptor for file without uploading it.
// It requires direct upload to be enabled.
func (s *Service) PresignedURL(ctx context.Context, name string, file *upload.File) (envelope.Envelope[upload.Descriptor], error) {
	if s.direct == nil {
		return envelope.Fail[upload.Descriptor](envelope.NewError(envelope.KindUnknown, "Direct upload is not enabled")), nil
	}
	return s.direct.Presign(ctx, name, file)
}

// Download stores the file at rawURL in dest. A directory dest keeps the
// remote file name.
func (s *Service) Download(ctx context.Context, rawURL, dest string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid download url: %s", rawURL)
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, path.Base(u.Path))
	}

	client := s.client.Transport().HTTPClient().StandardClient()
	downloader := got.New()
	downloader.Client = client
	dl := got.NewDownload(ctx, rawURL, dest)
	dl.Client = client

	s.logger.Debugf("Downloading %s to %s", u.Redacted(), dest)
	if err := downloader.Do(dl); err != nil {
		return "", fmt.Errorf("download %s: %w", u.Redacted(), err)
	}
	return dest, nil
}
