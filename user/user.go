// Package user reads and updates the signed-in user's profile, application
// status and events.
package user

import (
	"context"
	"net/url"
	"strings"

	"github.com/talentbridge/go-apiclient/api"
	"github.com/talentbridge/go-apiclient/auth"
	"github.com/talentbridge/go-apiclient/envelope"
	"github.com/talentbridge/go-apiclient/validate"
)

const (
	ProfilePath                 = "/user/profile"
	ApplicationStatusPath       = "/user/application-status"
	EventsPath                  = "/user/events"
	NotificationPreferencesPath = "/user/notification-preferences"
	ProfileCompletionPath       = "/user/profile-completion"

	maxBioLength = 1000
)

// ProfileUpdate holds the fields to change. Nil fields are left untouched.
type ProfileUpdate struct {
	Name       *string  `json:"name,omitempty"`
	Phone      *string  `json:"phone,omitempty"`
	Profession *string  `json:"profession,omitempty"`
	Experience *int     `json:"experience,omitempty"`
	Bio        *string  `json:"bio,omitempty"`
	Skills     []string `json:"skills,omitempty"`
}

func (u ProfileUpdate) empty() bool {
	return u.Name == nil && u.Phone == nil && u.Profession == nil &&
		u.Experience == nil && u.Bio == nil && u.Skills == nil
}

// Validate runs the checks done before an update is sent.
func (u ProfileUpdate) Validate() *validate.Error {
	if u.empty() {
		return validate.Errorf("", "No profile data provided for update")
	}
	if u.Name != nil && !validate.Required(*u.Name) {
		return validate.Errorf("name", "Name cannot be empty")
	}
	if u.Experience != nil && *u.Experience < 0 {
		return validate.Errorf("experience", "Experience cannot be negative")
	}
	if u.Bio != nil && !validate.MaxLength(*u.Bio, maxBioLength) {
		return validate.Errorf("bio", "Bio is too long, maximum 1000 characters")
	}
	for _, skill := range u.Skills {
		if !validate.Required(skill) {
			return validate.Errorf("skills", "Skills cannot contain empty values")
		}
	}
	return nil
}

// TimelineEntry ...
type TimelineEntry struct {
	Date   string `json:"date"`
	Action string `json:"action"`
	Status string `json:"status"`
}

// NextAction ...
type NextAction struct {
	Type        string `json:"type"`
	DueDate     string `json:"dueDate,omitempty"`
	Description string `json:"description,omitempty"`
}

// ApplicationStatus ...
type ApplicationStatus struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	CurrentStage int             `json:"currentStage"`
	TotalStages  int             `json:"totalStages"`
	LastUpdated  string          `json:"lastUpdated"`
	NextAction   *NextAction     `json:"nextAction,omitempty"`
	Timeline     []TimelineEntry `json:"timeline"`
}

// Participant ...
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Event is a scheduled call, interview or meeting.
type Event struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	ScheduledFor string        `json:"scheduledFor"`
	Duration     int           `json:"duration,omitempty"`
	Location     string        `json:"location,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	Status       string        `json:"status"`
}

// NotificationPreferences ...
type NotificationPreferences struct {
	Email                bool `json:"email"`
	Push                 bool `json:"push"`
	SMS                  bool `json:"sms"`
	ApplicationUpdates   bool `json:"applicationUpdates"`
	InterviewReminders   bool `json:"interviewReminders"`
	GeneralAnnouncements bool `json:"generalAnnouncements"`
}

// ProfileCompletion ...
type ProfileCompletion struct {
	CompletionPercentage int      `json:"completionPercentage"`
	MissingFields        []string `json:"missingFields"`
	Recommendations      []string `json:"recommendations"`
}

// EventResponse is the answer to an event invitation.
type EventResponse string

const (
	Confirm EventResponse = "confirm"
	Decline EventResponse = "decline"
)

// Service ...
type Service struct {
	client *api.Client
}

// NewService ...
func NewService(client *api.Client) *Service {
	return &Service{client: client}
}

// Profile ...
func (s *Service) Profile(ctx context.Context) (envelope.Envelope[auth.User], error) {
	return api.Get[auth.User](ctx, s.client, ProfilePath)
}

// UpdateProfile validates u and sends it.
func (s *Service) UpdateProfile(ctx context.Context, u ProfileUpdate) (envelope.Envelope[auth.User], error) {
	if err := u.Validate(); err != nil {
		return envelope.Validation[auth.User](err.Message), nil
	}
	return api.Put[auth.User](ctx, s.client, ProfilePath, u)
}

// ApplicationStatus ...
func (s *Service) ApplicationStatus(ctx context.Context) (envelope.Envelope[ApplicationStatus], error) {
	return api.Get[ApplicationStatus](ctx, s.client, ApplicationStatusPath)
}

// UpcomingEvents ...
func (s *Service) UpcomingEvents(ctx context.Context) (envelope.Envelope[[]Event], error) {
	return api.Get[[]Event](ctx, s.client, EventsPath)
}

// UpdateNotificationPreferences ...
func (s *Service) UpdateNotificationPreferences(ctx context.Context, p *NotificationPreferences) (envelope.Envelope[NotificationPreferences], error) {
	if p == nil {
		return envelope.Validation[NotificationPreferences]("Notification preferences are required"), nil
	}
	return api.Put[NotificationPreferences](ctx, s.client, NotificationPreferencesPath, p)
}

// RespondToEvent confirms or declines an event. comment is optional.
func (s *Service) RespondToEvent(ctx context.Context, eventID string, response EventResponse, comment string) (envelope.Envelope[auth.Message], error) {
	if strings.TrimSpace(eventID) == "" {
		return envelope.Validation[auth.Message]("Event ID is required"), nil
	}
	if response != Confirm && response != Decline {
		return envelope.Validation[auth.Message]("Response must be confirm or decline"), nil
	}

	body := struct {
		Status  EventResponse `json:"status"`
		Comment string        `json:"comment,omitempty"`
	}{Status: response, Comment: comment}
	return api.Post[auth.Message](ctx, s.client, EventsPath+"/"+url.PathEscape(eventID)+"/respond", body)
}

// ProfileCompletion ...
func (s *Service) ProfileCompletion(ctx context.Context) (envelope.Envelope[ProfileCompletion], error) {
	return api.Get[ProfileCompletion](ctx, s.client, ProfileCompletionPath)
}
