// Package auth signs users in and out and keeps the credential token in the
// client's store.
package auth

import (
	"context"

	"github.com/talentbridge/go-apiclient/api"
	"github.com/talentbridge/go-apiclient/envelope"
	"github.com/talentbridge/go-apiclient/validate"
)

const (
	LoginPath         = "/auth/login"
	RegisterPath      = "/auth/register"
	ValidatePath      = "/auth/validate"
	ResetPasswordPath = "/auth/reset-password"
	CompleteResetPath = "/auth/complete-reset"

	minPasswordLength = 8
)

// Credentials ...
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration ...
type Registration struct {
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"-"`
	Name            string   `json:"name"`
	Phone           string   `json:"phone,omitempty"`
	Profession      string   `json:"profession,omitempty"`
	Experience      *int     `json:"experience,omitempty"`
	Skills          []string `json:"skills,omitempty"`
	Bio             string   `json:"bio,omitempty"`
	TermsAccepted   bool     `json:"termsAccepted"`
}

// Reset completes a password reset.
type Reset struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
}

// User is the profile returned by the auth endpoints.
type User struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	Phone      string   `json:"phone,omitempty"`
	Photo      string   `json:"photo,omitempty"`
	Profession string   `json:"profession,omitempty"`
	Experience *int     `json:"experience,omitempty"`
	Bio        string   `json:"bio,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	CVURL      string   `json:"cvUrl,omitempty"`
	CreatedAt  string   `json:"createdAt,omitempty"`
	UpdatedAt  string   `json:"updatedAt,omitempty"`
}

// Session is returned by login and registration.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Validation is returned by the token check.
type Validation struct {
	User User `json:"user"`
}

// Message is a plain acknowledgement.
type Message struct {
	Message string `json:"message"`
}

// Service ...
type Service struct {
	client *api.Client
}

// NewService ...
func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// Login authenticates and stores the returned token.
func (s *Service) Login(ctx context.Context, c Credentials) (envelope.Envelope[Session], error) {
	if c.Email == "" {
		return envelope.Validation[Session]("Email is required"), nil
	}
	if c.Password == "" {
		return envelope.Validation[Session]("Password is required"), nil
	}
	if !validate.Email(c.Email) {
		return envelope.Validation[Session]("Invalid email format"), nil
	}

	e, err := api.Post[Session](ctx, s.client, LoginPath, c)
	if err != nil {
		return e, err
	}
	s.storeToken(e)
	return e, nil
}

// Register creates an account and stores the returned token.
func (s *Service) Register(ctx context.Context, r Registration) (envelope.Envelope[Session], error) {
	switch {
	case r.Email == "":
		return envelope.Validation[Session]("email is required"), nil
	case r.Password == "":
		return envelope.Validation[Session]("password is required"), nil
	case r.Name == "":
		return envelope.Validation[Session]("name is required"), nil
	case !r.TermsAccepted:
		return envelope.Validation[Session]("termsAccepted is required"), nil
	case !validate.Email(r.Email):
		return envelope.Validation[Session]("Invalid email format"), nil
	case !validate.MinLength(r.Password, minPasswordLength):
		return envelope.Validation[Session]("Password must be at least 8 characters long"), nil
	}

	e, err := api.Post[Session](ctx, s.client, RegisterPath, r)
	if err != nil {
		return e, err
	}
	s.storeToken(e)
	return e, nil
}

// Validate checks token with the origin.
func (s *Service) Validate(ctx context.Context, token string) (envelope.Envelope[Validation], error) {
	if token == "" {
		return envelope.Validation[Validation]("Token is required"), nil
	}
	return api.Post[Validation](ctx, s.client, ValidatePath, map[string]string{"token": token})
}

// RequestPasswordReset ...
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (envelope.Envelope[Message], error) {
	if email == "" {
		return envelope.Validation[Message]("Email is required"), nil
	}
	if !validate.Email(email) {
		return envelope.Validation[Message]("Invalid email format"), nil
	}
	return api.Post[Message](ctx, s.client, ResetPasswordPath, map[string]string{"email": email})
}

// CompletePasswordReset ...
func (s *Service) CompletePasswordReset(ctx context.Context, r Reset) (envelope.Envelope[Message], error) {
	switch {
	case r.Token == "":
		return envelope.Validation[Message]("Reset token is required"), nil
	case r.Password == "":
		return envelope.Validation[Message]("New password is required"), nil
	case !validate.MinLength(r.Password, minPasswordLength):
		return envelope.Validation[Message]("Password must be at least 8 characters long"), nil
	case r.ConfirmPassword != "" && r.Password != r.ConfirmPassword:
		return envelope.Validation[Message]("Passwords do not match"), nil
	}
	return api.Post[Message](ctx, s.client, CompleteResetPath, r)
}

// Logout forgets the stored token and any cached responses.
func (s *Service) Logout() error {
	s.client.ClearCache()
	return s.client.Credentials().Clear()
}

// RestoreSession validates the stored token. An invalid token is cleared.
// The envelope is a ValidationError when no token is stored.
func (s *Service) RestoreSession(ctx context.Context) (envelope.Envelope[Validation], error) {
	token, ok := s.client.Credentials().Get()
	if !ok {
		return envelope.Validation[Validation]("Token is required"), nil
	}

	e, err := s.Validate(ctx, token)
	if err != nil {
		return e, err
	}
	if !e.Success {
		s.client.Logger().Warnf("Stored session is no longer valid: %s", e.Error.Message)
		if e.Error.IsClientError() {
			if err := s.client.Credentials().Clear(); err != nil {
				s.client.Logger().Errorf("Failed to clear credentials: %s", err)
			}
		}
	}
	return e, nil
}

// IsAuthenticated reports whether a token is stored.
func (s *Service) IsAuthenticated() bool {
	_, ok := s.client.Credentials().Get()
	return ok
}

func (s *Service) storeToken(e envelope.Envelope[Session]) {
	if !e.Success || e.Data.Token == "" {
		return
	}
	if err := s.client.Credentials().Set(e.Data.Token); err != nil {
		s.client.Logger().Errorf("Failed to store credentials: %s", err)
	}
}
