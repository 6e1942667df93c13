package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/talentbridge/go-apiclient/api"
	"github.com/talentbridge/go-apiclient/envelope"
	"github.com/talentbridge/go-apiclient/formdata"
	"github.com/talentbridge/go-apiclient/progress"
)

const (
	msgFileRequired      = "File is required"
	msgInvalidDescriptor = "Invalid presigned upload response"
	msgTransferNetwork   = "Network error during upload"
	msgAborted           = "Upload aborted"
)

var errStalled = errors.New("upload stalled")

// Orchestrator runs presigned uploads. It is safe for concurrent use; every
// upload has its own state machine.
type Orchestrator struct {
	client  *api.Client
	storage *http.Client
	logger  log.Logger
	stall   time.Duration
	hook    StateHook
	stats   *Stats
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStateHook observes every state change of every upload.
func WithStateHook(h StateHook) Option {
	return func(o *Orchestrator) { o.hook = h }
}

// WithLogger ...
func WithLogger(logger log.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New creates an Orchestrator that talks to the origin through client.
func New(client *api.Client, cfg Config, opts ...Option) *Orchestrator {
	storage := cfg.HTTPClient
	if storage == nil {
		storage = DefaultHTTPClient()
	}

	o := &Orchestrator{
		client:  client,
		storage: storage,
		logger:  client.Logger(),
		stall:   cfg.StallThreshold,
		stats:   NewStats(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stats returns the transfer statistics.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// Upload runs all three phases and returns the confirmation envelope. A
// failure of any phase is returned as is and later phases are skipped. The
// error is non-nil only for faults raised by the request facade.
func (o *Orchestrator) Upload(ctx context.Context, category string, file *File, onProgress progress.Func) (envelope.Envelope[Result], error) {
	return o.run(ctx, newMachine(o.hook), category, file, onProgress)
}

// Presign asks the origin for a descriptor for file without transferring it.
func (o *Orchestrator) Presign(ctx context.Context, category string, file *File) (envelope.Envelope[Descriptor], error) {
	if file == nil {
		return envelope.Validation[Descriptor](msgFileRequired), nil
	}
	return api.Post[Descriptor](ctx, o.client, PresignPath, presignRequest{
		FileType:   file.Type,
		FileName:   file.Name,
		FileSize:   file.Size,
		UploadType: category,
	})
}

func (o *Orchestrator) run(ctx context.Context, m *machine, category string, file *File, onProgress progress.Func) (envelope.Envelope[Result], error) {
	if file == nil || file.Open == nil {
		m.fail()
		return envelope.Validation[Result](msgFileRequired), nil
	}

	// Requesting -> Presigned
	presigned, err := o.Presign(ctx, category, file)
	if err != nil {
		m.fail()
		return envelope.Envelope[Result]{}, fmt.Errorf("request presigned url: %w", err)
	}
	if !presigned.Success {
		m.fail()
		if aborted(ctx) {
			return abortedEnvelope(), nil
		}
		return envelope.Retype[Result](presigned), nil
	}
	desc := presigned.Data
	if desc.UploadURL == "" || desc.FileKey == "" {
		m.fail()
		return envelope.Fail[Result](envelope.NewError(envelope.KindUnknown, msgInvalidDescriptor, envelope.WithStatus(presigned.Status))), nil
	}
	if err := m.advance(Presigned); err != nil {
		return envelope.Envelope[Result]{}, err
	}
	o.logger.TDebugf("Presigned %s as %s", file.Name, desc.FileKey)

	// Presigned -> Transferring -> Confirming
	if err := m.advance(Transferring); err != nil {
		return envelope.Envelope[Result]{}, err
	}
	if failure := o.transfer(ctx, desc, file, onProgress); failure != nil {
		m.fail()
		return envelope.Fail[Result](*failure), nil
	}
	if err := m.advance(Confirming); err != nil {
		return envelope.Envelope[Result]{}, err
	}
	o.logger.TDebugf("Confirming %s", desc.FileKey)

	// Confirming -> Confirmed
	confirmed, err := api.Post[Result](ctx, o.client, ConfirmPath, confirmRequest{
		FileKey:    desc.FileKey,
		FileName:   file.Name,
		FileSize:   file.Size,
		MimeType:   file.Type,
		UploadType: category,
	})
	if err != nil {
		m.fail()
		return envelope.Envelope[Result]{}, fmt.Errorf("confirm upload: %w", err)
	}
	if !confirmed.Success {
		m.fail()
		return confirmed, nil
	}
	if err := m.advance(Confirmed); err != nil {
		return envelope.Envelope[Result]{}, err
	}

	o.logger.Donef("Uploaded %s (%s) as %s", file.Name, units.HumanSizeWithPrecision(float64(file.Size), 3), desc.FileKey)
	return confirmed, nil
}

// transfer streams the form to the storage provider. It returns nil when
// the provider answered with a 2xx status.
func (o *Orchestrator) transfer(ctx context.Context, desc Descriptor, file *File, onProgress progress.Func) *envelope.ErrorDetail {
	body, err := formdata.Build(desc.formFields(), file.FilePart(FileField))
	if err != nil {
		detail := envelope.NewError(envelope.KindUnknown, err.Error())
		return &detail
	}

	tctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var lastProgress atomic.Int64
	lastProgress.Store(o.now().UnixNano())
	tracker := progress.NewTracker(body.Len(), func(e progress.Event) {
		lastProgress.Store(o.now().UnixNano())
		if onProgress != nil {
			onProgress(e)
		}
	})

	if o.stall > 0 {
		go o.detectStall(tctx, cancel, &lastProgress)
	}

	rc, err := body.NewReader()
	if err != nil {
		detail := envelope.NewError(envelope.KindUnknown, fmt.Sprintf("open %s: %s", file.Name, err))
		return &detail
	}
	reader := progress.NewReader(rc, tracker)

	req, err := http.NewRequestWithContext(tctx, http.MethodPost, desc.UploadURL, reader)
	if err != nil {
		_ = reader.Close()
		detail := envelope.NewError(envelope.KindUnknown, fmt.Sprintf("create storage request: %s", err))
		return &detail
	}
	req.ContentLength = body.Len()
	req.Header.Set("Content-Type", body.ContentType())

	o.logger.Debugf("Transferring %s (%s) to storage", file.Name, units.HumanSizeWithPrecision(float64(body.Len()), 3))
	start := o.now()

	resp, err := o.storage.Do(req)
	if err != nil {
		switch {
		case errors.Is(context.Cause(tctx), errStalled):
			o.logger.Warnf("Transfer of %s stalled: %s", file.Name, err)
		case aborted(tctx):
			o.logger.Infof("Transfer of %s aborted", file.Name)
			detail := envelope.NewError(envelope.KindUploadAborted, msgAborted)
			return &detail
		default:
			o.logger.Errorf("Transfer of %s failed: %s", file.Name, err)
		}
		detail := envelope.NewError(envelope.KindNetwork, msgTransferNetwork)
		return &detail
	}
	defer func(body io.ReadCloser) {
		_, _ = io.Copy(io.Discard, body)
		if err := body.Close(); err != nil {
			o.logger.Printf("%s", err)
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		o.logger.Errorf("Storage rejected %s with status %d", file.Name, resp.StatusCode)
		detail := envelope.NewError(envelope.KindUpload, fmt.Sprintf("Upload failed with status %d", resp.StatusCode), envelope.WithStatus(resp.StatusCode))
		return &detail
	}

	took := o.now().Sub(start)
	o.stats.Update(body.Len(), took)
	tracker.Complete()
	o.logger.Debugf("Transferred %s in %s", file.Name, took.Round(time.Millisecond))
	return nil
}

func (o *Orchestrator) detectStall(ctx context.Context, cancel context.CancelCauseFunc, lastProgress *atomic.Int64) {
	interval := o.stall / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := o.now().Sub(time.Unix(0, lastProgress.Load()))
			if idle > o.stall {
				o.logger.Warnf("No upload progress for %s, canceling transfer", idle.Round(time.Millisecond))
				cancel(errStalled)
				return
			}
		}
	}
}

func aborted(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled) && !errors.Is(context.Cause(ctx), errStalled)
}

func abortedEnvelope() envelope.Envelope[Result] {
	return envelope.Fail[Result](envelope.NewError(envelope.KindUploadAborted, msgAborted))
}
