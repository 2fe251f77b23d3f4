package store

import "context"

// UserRepository tracks known users and their partner link.
type UserRepository interface {
	Ensure(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*User, error)
	LinkedPartnerID(ctx context.Context, id string) (string, error)
	LinkPartner(ctx context.Context, userID, partnerID string) error
	UnlinkPartner(ctx context.Context, userID string) error
}

// CycleEntryRepository stores logged periods.
type CycleEntryRepository interface {
	// ListByUser returns entries ordered by start date ascending.
	ListByUser(ctx context.Context, userID string) ([]CycleEntry, error)
	Append(ctx context.Context, entry CycleEntry) (*CycleEntry, error)
	// ListUserIDs returns every user with at least one entry.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// PreferenceRepository stores per-user sharing preferences.
type PreferenceRepository interface {
	// Get returns nil without error when the user never saved a preference.
	Get(ctx context.Context, userID string) (*CyclePreference, error)
	Set(ctx context.Context, userID string, shareWithPartner bool) (*CyclePreference, error)
}

// EventRepository handles shared calendar events.
type EventRepository interface {
	// ListForParticipants returns events listing any of the given users,
	// ordered by start then id.
	ListForParticipants(ctx context.Context, userIDs []string) ([]CalendarEvent, error)
	GetByID(ctx context.Context, id string) (*CalendarEvent, error)
	Create(ctx context.Context, event CalendarEvent) (*CalendarEvent, error)
	Update(ctx context.Context, event CalendarEvent) (*CalendarEvent, error)
	Delete(ctx context.Context, id string) error
}
