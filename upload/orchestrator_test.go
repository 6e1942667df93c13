package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentbridge/go-apiclient/api"
	"github.com/talentbridge/go-apiclient/envelope"
	testutil "github.com/talentbridge/go-apiclient/internal/testing"
	"github.com/talentbridge/go-apiclient/progress"
)

type formPart struct {
	name     string
	filename string
	data     string
}

type fakeOrigin struct {
	server *httptest.Server

	storageURL    string
	presignStatus int
	confirmFails  int32

	presignCalls atomic.Int32
	confirmCalls atomic.Int32

	mu      sync.Mutex
	confirm map[string]interface{}
}

func newFakeOrigin(t *testing.T, storageURL string) *fakeOrigin {
	o := &fakeOrigin{storageURL: storageURL, presignStatus: http.StatusOK}
	o.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PresignPath:
			o.presignCalls.Add(1)
			var req presignRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if o.presignStatus != http.StatusOK {
				w.WriteHeader(o.presignStatus)
				_, _ = w.Write([]byte(`{"message":"File type not allowed","code":"BAD_TYPE"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(Descriptor{
				UploadURL: o.storageURL,
				FileKey:   "uploads/" + req.UploadType + "/" + req.FileName,
				Fields:    map[string]string{"policy": "p0l1cy", "key": "uploads/" + req.UploadType + "/" + req.FileName, "x-amz-signature": "sig"},
			})
		case ConfirmPath:
			n := o.confirmCalls.Add(1)
			if n <= atomic.LoadInt32(&o.confirmFails) {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			o.mu.Lock()
			o.confirm = body
			o.mu.Unlock()
			_ = json.NewEncoder(w).Encode(Result{
				FileURL:  "https://cdn.example.com/" + body["fileKey"].(string),
				FileKey:  body["fileKey"].(string),
				Filename: body["fileName"].(string),
				MimeType: body["mimeType"].(string),
				Size:     int64(body["fileSize"].(float64)),
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return o
}

func (o *fakeOrigin) confirmBody() map[string]interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.confirm
}

func newOrchestrator(t *testing.T, originURL string, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	client, err := api.New(api.DefaultConfig(originURL),
		api.WithLogger(testutil.NewLogger()),
		api.WithWaiter(func(ctx context.Context, d time.Duration) error { return ctx.Err() }))
	require.NoError(t, err)
	return New(client, cfg, opts...)
}

func memFile(name, mimeType string, data []byte) *File {
	return &File{
		Name: name,
		Type: mimeType,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func readParts(t *testing.T, r *http.Request) []formPart {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	require.NoError(t, err)

	var parts []formPart
	mr := multipart.NewReader(r.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return parts
		}
		require.NoError(t, err)
		b, err := io.ReadAll(p)
		require.NoError(t, err)
		parts = append(parts, formPart{name: p.FormName(), filename: p.FileName(), data: string(b)})
	}
}

func TestUpload_Confirmed(t *testing.T) {
	// Given
	data := bytes.Repeat([]byte("%PDF"), 64*1024)
	var parts []formPart
	var contentLength int64
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		contentLength = r.ContentLength
		parts = readParts(t, r)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer storage.Close()
	origin := newFakeOrigin(t, storage.URL)
	defer origin.server.Close()

	var transitions []State
	o := newOrchestrator(t, origin.server.URL, DefaultConfig(), WithStateHook(func(from, to State) {
		transitions = append(transitions, to)
	}))
	var events []progress.Event

	// When
	e, err := o.Upload(context.Background(), "cv", memFile("cv.pdf", "application/pdf", data), func(ev progress.Event) {
		events = append(events, ev)
	})

	// Then
	require.NoError(t, err)
	require.True(t, e.Success, "%v", e.Error)
	assert.Equal(t, Result{
		FileURL:  "https://cdn.example.com/uploads/cv/cv.pdf",
		FileKey:  "uploads/cv/cv.pdf",
		Filename: "cv.pdf",
		MimeType: "application/pdf",
		Size:     int64(len(data)),
	}, e.Data)
	assert.Equal(t, []State{Presigned, Transferring, Confirming, Confirmed}, transitions)

	require.Len(t, parts, 4)
	assert.Equal(t, "key", parts[0].name)
	assert.Equal(t, "policy", parts[1].name)
	assert.Equal(t, "x-amz-signature", parts[2].name)
	assert.Equal(t, FileField, parts[3].name)
	assert.Equal(t, "cv.pdf", parts[3].filename)
	assert.Equal(t, string(data), parts[3].data)
	assert.Greater(t, contentLength, int64(len(data)))

	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.LessOrEqual(t, events[i-1].Loaded, events[i].Loaded)
	}
	assert.Equal(t, 100, events[len(events)-1].Percentage)

	confirm := origin.confirmBody()
	assert.Equal(t, "uploads/cv/cv.pdf", confirm["fileKey"])
	assert.Equal(t, "cv", confirm["uploadType"])
	assert.Equal(t, "application/pdf", confirm["mimeType"])
	assert.Equal(t, int64(1), o.Stats().FinishedCount())
}

func TestUpload_PresignFailureIsResurfaced(t *testing.T) {
	var storageCalls atomic.Int32
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storageCalls.Add(1)
	}))
	defer storage.Close()
	origin := newFakeOrigin(t, storage.URL)
	origin.presignStatus = http.StatusUnprocessableEntity
	defer origin.server.Close()

	var last State
	o := newOrchestrator(t, origin.server.URL, DefaultConfig(), WithStateHook(func(from, to State) { last = to }))

	e, err := o.Upload(context.Background(), "photo", memFile("me.bmp", "image/bmp", []byte("BM")), nil)

	require.NoError(t, err)
	assert.Equal(t, envelope.KindServer, e.Kind())
	assert.Equal(t, "File type not allowed", e.Error.Message)
	assert.Equal(t, "BAD_TYPE", e.Error.Code)
	assert.Equal(t, Failed, last)
	assert.Equal(t, int32(1), origin.presignCalls.Load())
	assert.Equal(t, int32(0), storageCalls.Load())
	assert.Equal(t, int32(0), origin.confirmCalls.Load())
}

func TestUpload_StorageRejects(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<Error><Code>AccessDenied</Code></Error>`))
	}))
	defer storage.Close()
	origin := newFakeOrigin(t, storage.URL)
	defer origin.server.Close()
	o := newOrchestrator(t, origin.server.URL, DefaultConfig())

	e, err := o.Upload(context.Background(), "cv", memFile("cv.pdf", "application/pdf", []byte("%PDF")), nil)

	require.NoError(t, err)
	assert.Equal(t, envelope.KindUpload, e.Kind())
	assert.Equal(t, "Upload failed with status 403", e.Error.Message)
	status, ok := e.Error.StatusCode()
	assert.True(t, ok)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, int32(0), origin.confirmCalls.Load())
}

func TestUpload_StorageConnectionLost(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer storage.Close()
	origin := newFakeOrigin(t, storage.URL)
	defer origin.server.Close()
	o := newOrchestrator(t, origin.server.URL, DefaultConfig())

	e, err := o.Upload(context.Background(), "cv", memFile("cv.pdf", "application/pdf", []byte("%PDF")), nil)

	require.NoError(t, err)
	assert.Equal(t, envelope.KindNetwork, e.Kind())
	assert.Equal(t, "Network error during upload", e.Error.Message)
	assert.Equal(t, int32(0), origin.confirmCalls.Load())
}

func TestTransfer_CancelMidTransmission(t *testing.T) {
	// Given
	received := make(chan struct{})
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 1024)
		_, _ = io.ReadFull(r.Body, buf)
		close(received)
		<-r.Context().Done()
	}))
	defer storage.Close()
	origin := newFakeOrigin(t, storage.URL)
	defer origin.server.Close()
	o := newOrchestrator(t, origin.server.URL, Config{})

	data := bytes.Repeat([]byte{0xff}, 4*1024*1024)
	transfer := o.Start(context.Background(), "photo", memFile("me.jpg", "image/jpeg", data), nil)

	// When
	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("storage never received data")
	}
	assert.Equal(t, Transferring, transfer.State())
	transfer.Cancel()
	transfer.Cancel()

	// Then
	e, err := transfer.Wait()
	require.NoError(t, err)
	assert.Equal(t, envelope.KindUploadAborted, e.Kind())
	assert.Equal(t, "Upload aborted", e.Error.Message)
	assert.Equal(t, Failed, transfer.State())
	assert.Equal(t, int32(0), origin.confirmCalls.Load())
}

func TestTransfer_CancelBeforeStart(t *testing.T) {
	origin := newFakeOrigin(t, "http://127.0.0.1:1/never")
	defer origin.server.Close()
	o := newOrchestrator(t, origin.server.URL, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	transfer := o.Start(ctx, "cv", memFile("cv.pdf", "application/pdf", []byte("%PDF")), nil)

	e, err := transfer.Wait()
	require.NoError(t, err)
	assert.Equal(t, envelope.KindUploadAborted, e.Kind())
	assert.Equal(t, Failed, transfer.State())
}

func TestUpload_StallIsNetworkError(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer storage.Close()
	origin := newFakeOrigin(t, storage.URL)
	defer origin.server.Close()
	o := newOrchestrator(t, origin.server.URL, Config{StallThreshold: 50 * time.Millisecond})

	e, err := o.Upload(context.Background(), "cv", memFile("cv.pdf", "application/pdf", []byte("%PDF")), nil)

	require.NoError(t, err)
	assert.Equal(t, envelope.KindNetwork, e.Kind())
	assert.Equal(t, int32(0), origin.confirmCalls.Load())
}

func TestUpload_ConfirmIsRetried(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
	}))
	defer storage.Close()
	origin := newFakeOrigin(t, storage.URL)
	origin.confirmFails = 1
	defer origin.server.Close()
	o := newOrchestrator(t, origin.server.URL, DefaultConfig())

	e, err := o.Upload(context.Background(), "cv", memFile("cv.pdf", "application/pdf", []byte("%PDF")), nil)

	require.NoError(t, err)
	assert.True(t, e.Success)
	assert.Equal(t, int32(2), origin.confirmCalls.Load())
}

func TestUpload_MissingFile(t *testing.T) {
	origin := newFakeOrigin(t, "http://127.0.0.1:1")
	defer origin.server.Close()
	o := newOrchestrator(t, origin.server.URL, DefaultConfig())

	e, err := o.Upload(context.Background(), "cv", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, envelope.KindValidation, e.Kind())
	assert.Equal(t, "File is required", e.Error.Message)
	assert.Equal(t, int32(0), origin.presignCalls.Load())
}

func TestState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Requesting, Presigned, true},
		{Presigned, Transferring, true},
		{Transferring, Confirming, true},
		{Confirming, Confirmed, true},
		{Requesting, Failed, true},
		{Transferring, Failed, true},
		{Requesting, Transferring, false},
		{Confirming, Transferring, false},
		{Confirmed, Failed, false},
		{Failed, Requesting, false},
		{Failed, Failed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestMachine_RejectsBackwardMoves(t *testing.T) {
	m := newMachine(nil)
	require.NoError(t, m.advance(Presigned))

	err := m.advance(Requesting)

	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, Presigned, m.current())
}

func TestDescriptor_FieldOrder(t *testing.T) {
	d := Descriptor{Fields: map[string]string{"x-amz-date": "d", "Content-Type": "c", "key": "k"}}

	assert.Equal(t, []string{"Content-Type", "key", "x-amz-date"}, d.FieldOrder())
	assert.Empty(t, Descriptor{}.FieldOrder())
}

func TestDescriptor_KeepsResponseFieldOrder(t *testing.T) {
	// Given
	data := []byte(`{"uploadUrl":"https://storage.example.com","fileKey":"cv/a.pdf",` +
		`"fields":{"x-amz-date":"d","key":"cv/a.pdf","policy":"p","Content-Type":"application/pdf"}}`)

	// When
	var d Descriptor
	require.NoError(t, json.Unmarshal(data, &d))
	d.Fields["acl"] = "private"

	// Then
	assert.Equal(t, []string{"x-amz-date", "key", "policy", "Content-Type", "acl"}, d.FieldOrder())
	var names []string
	for _, f := range d.formFields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, d.FieldOrder(), names)
}

func TestFileFromPath(t *testing.T) {
	pth := filepath.Join(t.TempDir(), "resume.pdf")
	require.NoError(t, os.WriteFile(pth, []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"), 0600))

	f, err := FileFromPath(pth)

	require.NoError(t, err)
	assert.Equal(t, "resume.pdf", f.Name)
	assert.Equal(t, "application/pdf", f.Type)
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, f.Size, int64(len(b)))

	_, err = FileFromPath(t.TempDir())
	assert.Error(t, err)
}
