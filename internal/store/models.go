package store

import (
	"slices"
	"time"
)

// Calendar event types persisted in calendar_events.event_type.
const (
	EventTypeDefault  = "default"
	EventTypeIntimacy = "intimacy"
)

// User is identified by the subject of the bearer token. PartnerID is the
// linked partner, if any.
type User struct {
	ID        string
	PartnerID *string
	CreatedAt time.Time
}

// CycleEntry is one logged period. Dates carry no time component; EndDate is
// nil while the period is ongoing.
type CycleEntry struct {
	ID        string
	UserID    string
	StartDate time.Time
	EndDate   *time.Time
	CreatedAt time.Time
}

// CyclePreference controls whether a linked partner sees predictions.
type CyclePreference struct {
	UserID           string
	ShareWithPartner bool
	UpdatedAt        time.Time
}

// CalendarEvent is a real (non-predicted) entry on the shared calendar.
type CalendarEvent struct {
	ID          string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Type        string
	UserIDs     []string
	CreatedBy   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasParticipant reports whether userID is listed on the event.
func (e CalendarEvent) HasParticipant(userID string) bool {
	return userID != "" && slices.Contains(e.UserIDs, userID)
}
