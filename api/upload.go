package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/talentbridge/go-apiclient/envelope"
	"github.com/talentbridge/go-apiclient/formdata"
	"github.com/talentbridge/go-apiclient/progress"
	"github.com/talentbridge/go-apiclient/transport"
)

const (
	msgUploadAborted   = "Upload aborted"
	msgRequestCanceled = "Request canceled"
)

// Form is a multipart payload. Fields are written before files.
type Form struct {
	Fields []formdata.Field
	Files  []formdata.FilePart
}

// UploadForm posts form as multipart/form-data in a single attempt with
// UploadTimeoutMultiplier times the configured timeout. onProgress receives
// non-decreasing events while the body is sent; the call returns only after
// the server responded.
func (c *Client) UploadForm(ctx context.Context, path string, form Form, onProgress progress.Func, opts ...RequestOption) (envelope.Envelope[json.RawMessage], error) {
	o := c.callOptions(opts)

	body, err := formdata.Build(form.Fields, form.Files...)
	if err != nil {
		return envelope.Envelope[json.RawMessage]{}, fmt.Errorf("build upload form: %w", err)
	}

	if o.requestID == "" {
		o.requestID = uuid.NewString()
	}
	ctx, release := c.inflight.track(ctx, o.requestID)
	defer release()

	if c.cache != nil {
		c.cache.invalidate(path)
	}

	tracker := progress.NewTracker(body.Len(), onProgress)
	timeout := o.timeout * UploadTimeoutMultiplier

	c.logger.Debugf("Uploading %s to %s", units.HumanSizeWithPrecision(float64(body.Len()), 3), path)

	e, err := c.transport.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   path,
		Query:  o.query,
		Header: o.header,
		BodyFunc: func() (io.ReadCloser, error) {
			rc, err := body.NewReader()
			if err != nil {
				return nil, err
			}
			return progress.NewReader(rc, tracker), nil
		},
		ContentLength: body.Len(),
		ContentType:   body.ContentType(),
		Timeout:       timeout,
		Meta:          transport.NewRequestContext(http.MethodPost, o.requestID),
	})
	if err != nil {
		return e, err
	}

	if e.Success {
		tracker.Complete()
		c.logger.Donef("Uploaded %s to %s", units.HumanSizeWithPrecision(float64(body.Len()), 3), path)
		return e, nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return envelope.Fail[json.RawMessage](envelope.NewError(envelope.KindUploadAborted, msgUploadAborted)), nil
	}
	return e, nil
}

// Upload is the typed form of Client.UploadForm.
func Upload[T any](ctx context.Context, c *Client, path string, form Form, onProgress progress.Func, opts ...RequestOption) (envelope.Envelope[T], error) {
	return decoded[T](c.UploadForm(ctx, path, form, onProgress, opts...))
}
