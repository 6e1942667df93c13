package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentbridge/go-apiclient/config"
	"github.com/talentbridge/go-apiclient/internal/devorigin"
	testutil "github.com/talentbridge/go-apiclient/internal/testing"
)

func setupEnv(t *testing.T) *devorigin.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	origin := devorigin.New("http://placeholder", testutil.NewLogger(), devorigin.WithAccount("ada@example.com", "Secret123", "Ada"))
	svr := httptest.NewServer(origin)
	t.Cleanup(svr.Close)
	origin.SetPublicURL(svr.URL)

	for _, keys := range [][]string{config.KeysTimeout, config.KeysRetryAttempts, config.KeysRetryDelay,
		config.KeysRetryMultiplier, config.KeysDirectUpload, config.KeysDebug, config.KeysCacheTTL, config.KeysBreaker} {
		for _, key := range keys {
			t.Setenv(key, "")
		}
	}
	t.Setenv("VUE_APP_API_URL", "")
	t.Setenv("API_URL", svr.URL)
	t.Setenv("API_RETRY_DELAY_MS", "1")
	t.Setenv("APICLIENT_CREDENTIALS_PATH", filepath.Join(t.TempDir(), "credentials.json"))
	t.Setenv("APICLIENT_PASSWORD", "")
	return origin
}

func runCLI(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	args = append([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}, args...)
	code := run(context.Background(), args, &out, env.NewRepository(), testutil.NewLogger())
	return code, out.String()
}

func TestRun_Usage(t *testing.T) {
	code, out := runCLI(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, out, "upload [--category cv|photo] <glob>...")

	code, _ = runCLI(t, "frobnicate")
	assert.Equal(t, exitUsage, code)
}

func TestRun_SessionCommands(t *testing.T) {
	setupEnv(t)

	code, out := runCLI(t, "get", "/user/profile")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, out, `"success": false`)

	code, out = runCLI(t, "login", "--email", "ada@example.com", "--password", "Secret123")
	require.Equal(t, exitOK, code, out)
	assert.Contains(t, out, `"token"`)

	code, out = runCLI(t, "get", "/user/profile")
	require.Equal(t, exitOK, code, out)
	assert.Contains(t, out, "ada@example.com")

	code, _ = runCLI(t, "logout")
	require.Equal(t, exitOK, code)

	code, _ = runCLI(t, "get", "/user/profile")
	assert.Equal(t, exitFailure, code)
}

func TestRun_LoginPasswordFromEnv(t *testing.T) {
	setupEnv(t)
	t.Setenv("APICLIENT_PASSWORD", "Secret123")

	code, out := runCLI(t, "login", "--email", "ada@example.com")

	assert.Equal(t, exitOK, code, out)
}

func TestRun_UploadGlob(t *testing.T) {
	// Given
	setupEnv(t)
	t.Setenv("ENABLE_DIRECT_UPLOAD", "true")
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "nested/b.pdf", "notes.txt"} {
		pth := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(pth), 0o755))
		require.NoError(t, os.WriteFile(pth, []byte("%PDF-1.4\n"+name), 0o600))
	}
	code, out := runCLI(t, "login", "--email", "ada@example.com", "--password", "Secret123")
	require.Equal(t, exitOK, code, out)

	// When
	code, out = runCLI(t, "upload", "--category", "cv", filepath.Join(dir, "**", "*.pdf"))

	// Then
	require.Equal(t, exitOK, code, out)
	assert.Contains(t, out, `"filename": "a.pdf"`)
	assert.Contains(t, out, `"filename": "b.pdf"`)
	assert.NotContains(t, out, "notes.txt")
}

func TestRun_UploadNoMatch(t *testing.T) {
	setupEnv(t)

	code, _ := runCLI(t, "upload", filepath.Join(t.TempDir(), "*.pdf"))

	assert.Equal(t, exitFailure, code)
}

func TestSplitAccount(t *testing.T) {
	email, password, ok := splitAccount("ada@example.com:Secret:123")
	assert.True(t, ok)
	assert.Equal(t, "ada@example.com", email)
	assert.Equal(t, "Secret:123", password)

	_, _, ok = splitAccount("ada@example.com")
	assert.False(t, ok)
}
