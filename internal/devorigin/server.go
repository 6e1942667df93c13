// Package devorigin is an in-memory origin server used by the integration
// tests and by `apiclient serve` for local development. It implements the
// auth, profile and upload endpoints and a small object store that accepts
// presigned form posts.
package devorigin

import (
	"net/http"
	"strings"
	"sync"
	"time"

	errenvelope "github.com/blackwell-systems/err-envelope"
	errgin "github.com/blackwell-systems/err-envelope/integrations/gin"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/talentbridge/go-apiclient/auth"
	"github.com/talentbridge/go-apiclient/presign"
	"github.com/talentbridge/go-apiclient/upload"
)

// StoragePath is where the built-in object store accepts form posts.
const StoragePath = "/storage"

const (
	maxCVSize    = 5 << 20
	maxPhotoSize = 2 << 20
)

type account struct {
	password string
	user     auth.User
}

type pending struct {
	desc       upload.Descriptor
	uploadType string
}

// Server ...
type Server struct {
	router    *gin.Engine
	presigner presign.Presigner
	logger    log.Logger
	publicURL string
	now       func() time.Time

	mu       sync.RWMutex
	accounts map[string]*account
	sessions map[string]string
	pending  map[string]pending
	objects  map[string][]byte
	failures map[string]int
}

// Option configures a Server.
type Option func(*Server)

// WithPresigner replaces the built-in object store as the target of
// presigned uploads.
func WithPresigner(p presign.Presigner) Option {
	return func(s *Server) { s.presigner = p }
}

// WithAccount seeds an account.
func WithAccount(email, password, name string) Option {
	return func(s *Server) {
		s.accounts[strings.ToLower(email)] = &account{
			password: password,
			user:     auth.User{ID: uuid.NewString(), Email: email, Name: name},
		}
	}
}

// WithClock ...
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a Server. publicURL is the externally reachable base URL of
// the server and is used for the built-in object store and file URLs.
func New(publicURL string, logger log.Logger, opts ...Option) *Server {
	s := &Server{
		logger:    logger,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
		accounts:  map[string]*account{},
		sessions:  map[string]string{},
		pending:   map[string]pending{},
		objects:   map[string][]byte{},
		failures:  map[string]int{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.presigner == nil {
		s.presigner = presign.Static{URL: s.publicURL + StoragePath}
	}
	s.router = s.routes()
	return s
}

// SetPublicURL updates the base URL once the listener address is known.
// The built-in object store follows it unless a presigner was configured.
func (s *Server) SetPublicURL(publicURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if static, ok := s.presigner.(presign.Static); ok && static.URL == s.publicURL+StoragePath {
		s.presigner = presign.Static{URL: strings.TrimRight(publicURL, "/") + StoragePath}
	}
	s.publicURL = strings.TrimRight(publicURL, "/")
}

// ServeHTTP ...
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailNext makes the next n requests to path answer 503.
func (s *Server) FailNext(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = n
}

// Object returns a stored object.
func (s *Server) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

// RevokeSessions invalidates every issued token.
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = map[string]string{}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), errgin.Trace(), s.injectFailures)
	r.MaxMultipartMemory = 8 << 20

	r.POST("/auth/login", s.login)
	r.POST("/auth/register", s.register)
	r.POST("/auth/validate", s.validateToken)
	r.POST("/auth/reset-password", s.resetPassword)

	r.POST(StoragePath, s.storeObject)
	r.GET(StoragePath+"/*key", s.getObject)

	authed := r.Group("/", s.requireSession)
	authed.GET("/user/profile", s.profile)
	authed.PUT("/user/profile", s.updateProfile)
	authed.POST("/user/upload-cv", s.directUpload("cv", maxCVSize))
	authed.POST("/user/upload-photo", s.directUpload("photo", maxPhotoSize))
	authed.POST(upload.PresignPath, s.presign)
	authed.POST(upload.ConfirmPath, s.confirm)

	r.NoRoute(func(c *gin.Context) {
		errgin.Write(c, errenvelope.NotFound("Route not found"))
	})
	return r
}

func (s *Server) injectFailures(c *gin.Context) {
	s.mu.Lock()
	n := s.failures[c.Request.URL.Path]
	if n > 0 {
		s.failures[c.Request.URL.Path] = n - 1
	}
	s.mu.Unlock()

	if n > 0 {
		errgin.Write(c, errenvelope.Unavailable("Service temporarily unavailable"))
		c.Abort()
		return
	}
	c.Next()
}

func (s *Server) requireSession(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

	s.mu.RLock()
	email, ok := s.sessions[token]
	s.mu.RUnlock()

	if token == "" || !ok {
		errgin.Write(c, errenvelope.Unauthorized("Authentication required"))
		c.Abort()
		return
	}
	c.Set("email", email)
	c.Next()
}

func (s *Server) issueToken(email string) string {
	token := uuid.NewString()
	s.sessions[token] = email
	return token
}

func (s *Server) currentAccount(c *gin.Context) (*account, bool) {
	acc, ok := s.accounts[c.GetString("email")]
	return acc, ok
}

func badRequest(c *gin.Context, msg string) {
	errgin.Write(c, errenvelope.New(errenvelope.CodeBadRequest, http.StatusBadRequest, msg))
}
