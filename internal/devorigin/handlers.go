package devorigin

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	errenvelope "github.com/blackwell-systems/err-envelope"
	errgin "github.com/blackwell-systems/err-envelope/integrations/gin"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/talentbridge/go-apiclient/auth"
	"github.com/talentbridge/go-apiclient/upload"
	"github.com/talentbridge/go-apiclient/user"
)

func (s *Server) login(c *gin.Context) {
	var req auth.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[strings.ToLower(req.Email)]
	if !ok || acc.password != req.Password {
		errgin.Write(c, errenvelope.Unauthorized("Invalid email or password"))
		return
	}
	c.JSON(http.StatusOK, auth.Session{Token: s.issueToken(strings.ToLower(req.Email)), User: acc.user})
}

func (s *Server) register(c *gin.Context) {
	var req auth.Registration
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	missing := errenvelope.FieldErrors{}
	if req.Email == "" {
		missing["email"] = "required"
	}
	if req.Password == "" {
		missing["password"] = "required"
	}
	if req.Name == "" {
		missing["name"] = "required"
	}
	if len(missing) > 0 {
		errgin.Write(c, errenvelope.Validation(missing))
		return
	}

	email := strings.ToLower(req.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[email]; exists {
		errgin.Write(c, errenvelope.Conflict("An account with this email already exists"))
		return
	}

	now := s.now().UTC().Format("2006-01-02T15:04:05Z")
	acc := &account{
		password: req.Password,
		user: auth.User{
			ID:         uuid.NewString(),
			Email:      req.Email,
			Name:       req.Name,
			Phone:      req.Phone,
			Profession: req.Profession,
			Experience: req.Experience,
			Bio:        req.Bio,
			Skills:     req.Skills,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
	s.accounts[email] = acc
	c.JSON(http.StatusCreated, auth.Session{Token: s.issueToken(email), User: acc.user})
}

func (s *Server) validateToken(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		badRequest(c, "Token is required")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	email, ok := s.sessions[req.Token]
	if !ok {
		errgin.Write(c, errenvelope.Unauthorized("Invalid or expired token"))
		return
	}
	c.JSON(http.StatusOK, auth.Validation{User: s.accounts[email].user})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		badRequest(c, "Email is required")
		return
	}
	s.logger.Debugf("Password reset requested for %s", req.Email)
	c.JSON(http.StatusOK, auth.Message{Message: "If the account exists, a reset email has been sent"})
}

func (s *Server) profile(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.currentAccount(c)
	if !ok {
		errgin.Write(c, errenvelope.NotFound("User not found"))
		return
	}
	c.JSON(http.StatusOK, acc.user)
}

func (s *Server) updateProfile(c *gin.Context) {
	var req user.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	if verr := req.Validate(); verr != nil {
		errgin.Write(c, errenvelope.Validation(errenvelope.FieldErrors{verr.Field: verr.Message}))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.currentAccount(c)
	if !ok {
		errgin.Write(c, errenvelope.NotFound("User not found"))
		return
	}
	u := &acc.user
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Phone != nil {
		u.Phone = *req.Phone
	}
	if req.Profession != nil {
		u.Profession = *req.Profession
	}
	if req.Experience != nil {
		exp := *req.Experience
		u.Experience = &exp
	}
	if req.Bio != nil {
		u.Bio = *req.Bio
	}
	if req.Skills != nil {
		u.Skills = req.Skills
	}
	u.UpdatedAt = s.now().UTC().Format("2006-01-02T15:04:05Z")
	c.JSON(http.StatusOK, *u)
}

func (s *Server) directUpload(field string, maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		hdr, err := c.FormFile(field)
		if err != nil {
			badRequest(c, fmt.Sprintf("Missing %s file", field))
			return
		}
		if hdr.Size > maxSize {
			errgin.Write(c, errenvelope.New(errenvelope.CodePayloadTooLarge, http.StatusRequestEntityTooLarge, "File too large"))
			return
		}

		f, err := hdr.Open()
		if err != nil {
			errgin.Write(c, errenvelope.Wrap(errenvelope.CodeInternal, http.StatusInternalServerError, "", err))
			return
		}
		defer func() {
			if err := f.Close(); err != nil {
				s.logger.Printf("%s", err)
			}
		}()
		data, err := io.ReadAll(f)
		if err != nil {
			errgin.Write(c, errenvelope.Wrap(errenvelope.CodeInternal, http.StatusInternalServerError, "", err))
			return
		}

		key := path.Join(field, uuid.NewString(), hdr.Filename)
		mimeType := hdr.Header.Get("Content-Type")

		s.mu.Lock()
		defer s.mu.Unlock()

		s.objects[key] = data
		if acc, ok := s.currentAccount(c); ok {
			s.attach(acc, field, key)
		}
		c.JSON(http.StatusOK, s.result(key, hdr.Filename, mimeType, int64(len(data))))
	}
}

func (s *Server) presign(c *gin.Context) {
	var req struct {
		FileType   string `json:"fileType"`
		FileName   string `json:"fileName"`
		FileSize   int64  `json:"fileSize"`
		UploadType string `json:"uploadType"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	var maxSize int64
	switch req.UploadType {
	case "cv":
		maxSize = maxCVSize
	case "photo":
		maxSize = maxPhotoSize
	default:
		badRequest(c, "Unknown upload type")
		return
	}
	if req.FileName == "" || req.FileSize <= 0 {
		badRequest(c, "File name and size are required")
		return
	}
	if req.FileSize > maxSize {
		errgin.Write(c, errenvelope.New(errenvelope.CodePayloadTooLarge, http.StatusRequestEntityTooLarge, "File too large"))
		return
	}

	key := path.Join(req.UploadType, uuid.NewString(), path.Base(req.FileName))

	s.mu.RLock()
	presigner := s.presigner
	s.mu.RUnlock()

	desc, err := presigner.Presign(c.Request.Context(), key, req.FileType, maxSize)
	if err != nil {
		s.logger.Errorf("Presign %s: %s", key, err)
		errgin.Write(c, errenvelope.Wrap(errenvelope.CodeInternal, http.StatusInternalServerError, "Could not create upload URL", err))
		return
	}

	s.mu.Lock()
	s.pending[desc.FileKey] = pending{desc: desc, uploadType: req.UploadType}
	s.mu.Unlock()

	c.JSON(http.StatusOK, desc)
}

func (s *Server) confirm(c *gin.Context) {
	var req struct {
		FileKey    string `json:"fileKey"`
		FileName   string `json:"fileName"`
		FileSize   int64  `json:"fileSize"`
		MimeType   string `json:"mimeType"`
		UploadType string `json:"uploadType"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.FileKey == "" {
		badRequest(c, "File key is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[req.FileKey]
	if !ok {
		errgin.Write(c, errenvelope.NotFound("Unknown upload"))
		return
	}
	// kept so a repeated confirm answers the same result
	if acc, ok := s.currentAccount(c); ok {
		s.attach(acc, p.uploadType, req.FileKey)
	}

	c.JSON(http.StatusOK, s.result(req.FileKey, req.FileName, req.MimeType, req.FileSize))
}

// storeObject accepts a form post issued by the static presigner. The
// object key is taken from the "key" field.
func (s *Server) storeObject(c *gin.Context) {
	key := c.PostForm("key")
	if key == "" {
		badRequest(c, "Missing key")
		return
	}
	hdr, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "Missing file")
		return
	}
	f, err := hdr.Open()
	if err != nil {
		errgin.Write(c, errenvelope.Wrap(errenvelope.CodeInternal, http.StatusInternalServerError, "", err))
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Printf("%s", err)
		}
	}()
	data, err := io.ReadAll(f)
	if err != nil {
		errgin.Write(c, errenvelope.Wrap(errenvelope.CodeInternal, http.StatusInternalServerError, "", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; !ok {
		errgin.Write(c, errenvelope.Forbidden("Upload not authorized"))
		return
	}
	s.objects[key] = data
	c.Status(http.StatusNoContent)
}

func (s *Server) getObject(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	data, ok := s.Object(key)
	if !ok {
		errgin.Write(c, errenvelope.NotFound("Object not found"))
		return
	}
	http.ServeContent(c.Writer, c.Request, path.Base(key), s.now(), bytes.NewReader(data))
}

func (s *Server) attach(acc *account, uploadType, key string) {
	switch uploadType {
	case "cv":
		acc.user.CVURL = s.fileURL(key)
	case "photo":
		acc.user.Photo = s.fileURL(key)
	}
}

func (s *Server) fileURL(key string) string {
	return s.publicURL + StoragePath + "/" + key
}

func (s *Server) result(key, name, mimeType string, size int64) upload.Result {
	return upload.Result{
		FileURL:  s.fileURL(key),
		FileKey:  key,
		Filename: name,
		MimeType: mimeType,
		Size:     size,
	}
}
