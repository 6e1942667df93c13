package devorigin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testutil "github.com/talentbridge/go-apiclient/internal/testing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New("http://placeholder", testutil.NewLogger(), WithAccount("ada@example.com", "Secret123", "Ada"))
	svr := httptest.NewServer(s)
	t.Cleanup(svr.Close)
	s.SetPublicURL(svr.URL)
	return s, svr
}

func post(t *testing.T, url, token string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", "req-1")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestLogin(t *testing.T) {
	_, svr := newServer(t)

	resp := post(t, svr.URL+"/auth/login", "", map[string]string{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "req-1", resp.Header.Get("X-Request-Id"))
	var errBody map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
	assert.Equal(t, "UNAUTHORIZED", errBody["code"])
	assert.Equal(t, "Invalid email or password", errBody["message"])

	resp = post(t, svr.URL+"/auth/login", "", map[string]string{"email": "ADA@example.com", "password": "Secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.NotEmpty(t, session.Token)
}

func getProfile(t *testing.T, url, token string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url+"/user/profile", nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestRequireSession(t *testing.T) {
	s, svr := newServer(t)
	resp := post(t, svr.URL+"/auth/login", "", map[string]string{"email": "ada@example.com", "password": "Secret123"})
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))

	assert.Equal(t, http.StatusUnauthorized, getProfile(t, svr.URL, ""))
	assert.Equal(t, http.StatusOK, getProfile(t, svr.URL, session.Token))

	s.RevokeSessions()

	assert.Equal(t, http.StatusUnauthorized, getProfile(t, svr.URL, session.Token))
}

func TestFailNext(t *testing.T) {
	s, svr := newServer(t)
	s.FailNext("/auth/login", 1)

	resp := post(t, svr.URL+"/auth/login", "", map[string]string{"email": "ada@example.com", "password": "Secret123"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = post(t, svr.URL+"/auth/login", "", map[string]string{"email": "ada@example.com", "password": "Secret123"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPresign_RejectsOversizedFile(t *testing.T) {
	_, svr := newServer(t)
	resp := post(t, svr.URL+"/auth/login", "", map[string]string{"email": "ada@example.com", "password": "Secret123"})
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))

	resp = post(t, svr.URL+"/uploads/presigned-url", session.Token, map[string]interface{}{
		"fileType": "image/png", "fileName": "me.png", "fileSize": maxPhotoSize + 1, "uploadType": "photo",
	})

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestStorage_RejectsUnknownKey(t *testing.T) {
	_, svr := newServer(t)
	var buf bytes.Buffer
	buf.WriteString("--b\r\nContent-Disposition: form-data; name=\"key\"\r\n\r\ncv/x.pdf\r\n" +
		"--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"x.pdf\"\r\n\r\ndata\r\n--b--\r\n")

	resp, err := http.Post(svr.URL+StoragePath, "multipart/form-data; boundary=b", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConfirm_IsRepeatable(t *testing.T) {
	_, svr := newServer(t)
	resp := post(t, svr.URL+"/auth/login", "", map[string]string{"email": "ada@example.com", "password": "Secret123"})
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))

	resp = post(t, svr.URL+"/uploads/presigned-url", session.Token, map[string]interface{}{
		"fileType": "application/pdf", "fileName": "cv.pdf", "fileSize": 10, "uploadType": "cv",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var desc struct {
		FileKey string `json:"fileKey"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&desc))

	confirm := map[string]interface{}{"fileKey": desc.FileKey, "fileName": "cv.pdf", "fileSize": 10, "uploadType": "cv"}
	first := post(t, svr.URL+"/uploads/confirm", session.Token, confirm)
	second := post(t, svr.URL+"/uploads/confirm", session.Token, confirm)

	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Equal(t, http.StatusOK, second.StatusCode)

	unknown := post(t, svr.URL+"/uploads/confirm", session.Token, map[string]interface{}{"fileKey": "cv/nope/x.pdf"})
	assert.Equal(t, http.StatusNotFound, unknown.StatusCode)
}
