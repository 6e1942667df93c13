//go:build integration
// +build integration

package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/talentbridge/go-apiclient/api"
	"github.com/talentbridge/go-apiclient/credential"
	"github.com/talentbridge/go-apiclient/internal/devorigin"
	testutil "github.com/talentbridge/go-apiclient/internal/testing"
	"github.com/talentbridge/go-apiclient/upload"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "Secret123"
)

var logger = log.NewLogger()

func init() {
	gin.SetMode(gin.TestMode)
	logger.EnableDebugLog(true)
}

type env struct {
	origin *devorigin.Server
	url    string
	store  *credential.FileStore
	nav    *testutil.Navigator
	client *api.Client
}

func setup(t *testing.T, opts ...devorigin.Option) *env {
	t.Helper()

	opts = append([]devorigin.Option{devorigin.WithAccount(testEmail, testPassword, "Ada Lovelace")}, opts...)
	origin := devorigin.New("http://placeholder", logger, opts...)
	svr := httptest.NewServer(origin)
	t.Cleanup(svr.Close)
	origin.SetPublicURL(svr.URL)

	store, err := credential.NewFileStore(filepath.Join(t.TempDir(), credential.FileName))
	require.NoError(t, err)

	cfg := api.DefaultConfig(svr.URL)
	cfg.Timeout = 5 * time.Second
	nav := &testutil.Navigator{}
	client, err := api.New(cfg,
		api.WithLogger(logger),
		api.WithCredentials(store),
		api.WithNavigator(nav),
		api.WithWaiter(func(ctx context.Context, d time.Duration) error { return nil }))
	require.NoError(t, err)

	return &env{origin: origin, url: svr.URL, store: store, nav: nav, client: client}
}

func checksumOf(bytes []byte) string {
	hash := sha256.New()
	hash.Write(bytes)
	return hex.EncodeToString(hash.Sum(nil))
}

func checksumOfFile(t *testing.T, pth string) string {
	t.Helper()
	f, err := os.Open(pth)
	require.NoError(t, err)
	defer f.Close()
	hash := sha256.New()
	_, err = io.Copy(hash, f)
	require.NoError(t, err)
	return hex.EncodeToString(hash.Sum(nil))
}

func writeTestFile(t *testing.T, name string, content []byte) *upload.File {
	t.Helper()
	pth := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(pth, content, 0o600))
	file, err := upload.FileFromPath(pth)
	require.NoError(t, err)
	return file
}

// pdf returns a small document that is sniffed as application/pdf.
func pdf(size int) []byte {
	data := make([]byte, size)
	copy(data, "%PDF-1.4\n")
	for i := 9; i < size; i++ {
		data[i] = byte('a' + i%26)
	}
	return data
}
