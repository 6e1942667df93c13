//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentbridge/go-apiclient/auth"
	"github.com/talentbridge/go-apiclient/media"
	"github.com/talentbridge/go-apiclient/progress"
	"github.com/talentbridge/go-apiclient/upload"
	"github.com/talentbridge/go-apiclient/user"
)

func TestPresignedUpload(t *testing.T) {
	// Given
	e := setup(t)
	ctx := context.Background()

	session, err := auth.NewService(e.client).Login(ctx, auth.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	require.True(t, session.Success, "%+v", session.Error)

	var states []upload.State
	orchestrator := upload.New(e.client, upload.DefaultConfig(), upload.WithStateHook(func(from, to upload.State) {
		states = append(states, to)
	}))
	svc := media.NewService(e.client, media.WithDirectUpload(orchestrator))

	content := pdf(256 * 1024)
	file := writeTestFile(t, "resume.pdf", content)
	require.Equal(t, "application/pdf", file.Type)

	var last progress.Event

	// When
	result, err := svc.UploadCV(ctx, file, func(ev progress.Event) {
		assert.GreaterOrEqual(t, ev.Loaded, last.Loaded)
		last = ev
	})

	// Then
	require.NoError(t, err)
	require.True(t, result.Success, "%+v", result.Error)
	assert.Equal(t, []upload.State{upload.Presigned, upload.Transferring, upload.Confirming, upload.Confirmed}, states)
	assert.Equal(t, 100, last.Percentage)

	stored, ok := e.origin.Object(result.Data.FileKey)
	require.True(t, ok)
	assert.Equal(t, checksumOf(content), checksumOf(stored))

	profile, err := user.NewService(e.client).Profile(ctx)
	require.NoError(t, err)
	require.True(t, profile.Success)
	assert.Equal(t, result.Data.FileURL, profile.Data.CVURL)
}

func TestPresignedUpload_RequiresSession(t *testing.T) {
	e := setup(t)
	svc := media.NewService(e.client, media.WithDirectUpload(upload.New(e.client, upload.DefaultConfig())))

	result, err := svc.UploadCV(context.Background(), writeTestFile(t, "resume.pdf", pdf(1024)), nil)

	require.NoError(t, err)
	assert.False(t, result.Success)
	status, _ := result.Error.StatusCode()
	assert.Equal(t, 401, status)
	assert.Equal(t, 1, e.nav.Calls())
}

func TestServerMediatedUpload(t *testing.T) {
	// Given
	e := setup(t)
	ctx := context.Background()
	_, err := auth.NewService(e.client).Login(ctx, auth.Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	content := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 2048)...)
	file := writeTestFile(t, "me.png", content)

	// When
	result, err := media.NewService(e.client).UploadPhoto(ctx, file, nil)

	// Then
	require.NoError(t, err)
	require.True(t, result.Success, "%+v", result.Error)
	assert.Equal(t, "me.png", result.Data.Filename)
	assert.Equal(t, int64(len(content)), result.Data.Size)

	stored, ok := e.origin.Object(result.Data.FileKey)
	require.True(t, ok)
	assert.Equal(t, content, stored)
}

func TestUpload_RejectedBeforeNetwork(t *testing.T) {
	e := setup(t)
	big := writeTestFile(t, "big.pdf", pdf(6*1024*1024))

	result, err := media.NewService(e.client).UploadCV(context.Background(), big, nil)

	require.NoError(t, err)
	assert.Equal(t, "File too large. Maximum size is 5MB.", result.Error.Message)
}
