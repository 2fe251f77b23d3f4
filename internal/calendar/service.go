package calendar

import (
	"context"
	"errors"

	"github.com/jw6ventures/cyclecal/internal/cycle"
	"github.com/jw6ventures/cyclecal/internal/metrics"
	"github.com/jw6ventures/cyclecal/internal/store"
)

// ErrForbidden is returned when a viewer asks for a forecast it may not see.
var ErrForbidden = errors.New("forecast not shared with viewer")

// PartnerResolver finds a user's linked partner; "" means none.
type PartnerResolver interface {
	LinkedPartnerID(ctx context.Context, userID string) (string, error)
}

// EntryLister loads a user's cycle history.
type EntryLister interface {
	ListByUser(ctx context.Context, userID string) ([]store.CycleEntry, error)
}

// PreferenceGetter loads a user's sharing preference.
type PreferenceGetter interface {
	Get(ctx context.Context, userID string) (*store.CyclePreference, error)
}

// EventLister loads calendar events for a set of participants.
type EventLister interface {
	ListForParticipants(ctx context.Context, userIDs []string) ([]store.CalendarEvent, error)
}

// Service loads snapshots from the stores and builds views from them.
type Service struct {
	partners PartnerResolver
	entries  EntryLister
	prefs    PreferenceGetter
	events   EventLister
}

func NewService(partners PartnerResolver, entries EntryLister, prefs PreferenceGetter, events EventLister) *Service {
	return &Service{partners: partners, entries: entries, prefs: prefs, events: events}
}

// Snapshot loads the data needed to render viewerID's calendar. The partner's
// history is only read when the partner shares it. Store errors are returned
// as-is.
func (s *Service) Snapshot(ctx context.Context, viewerID string) (Snapshot, error) {
	snap := Snapshot{ViewerID: viewerID}

	partnerID, err := s.partners.LinkedPartnerID(ctx, viewerID)
	if err != nil {
		return Snapshot{}, err
	}
	snap.PartnerID = partnerID

	participants := []string{viewerID}
	if partnerID != "" {
		participants = append(participants, partnerID)
	}
	if snap.Events, err = s.events.ListForParticipants(ctx, participants); err != nil {
		return Snapshot{}, err
	}
	if snap.ViewerEntries, err = s.entries.ListByUser(ctx, viewerID); err != nil {
		return Snapshot{}, err
	}

	if partnerID == "" {
		return snap, nil
	}
	if snap.PartnerPreference, err = s.prefs.Get(ctx, partnerID); err != nil {
		return Snapshot{}, err
	}
	if snap.PartnerVisible() {
		if snap.PartnerEntries, err = s.entries.ListByUser(ctx, partnerID); err != nil {
			return Snapshot{}, err
		}
	}
	return snap, nil
}

// View returns viewerID's merged calendar.
func (s *Service) View(ctx context.Context, viewerID string) ([]DisplayEvent, error) {
	snap, err := s.Snapshot(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	view := BuildView(snap)
	recordPredictions(snap, view)
	return view, nil
}

// Forecast returns ownerID's forecast as seen by viewerID. The bool is false
// when the owner has no history. ErrForbidden is returned when the owner is
// neither the viewer nor a partner who shares.
func (s *Service) Forecast(ctx context.Context, viewerID, ownerID string) (cycle.Forecast, bool, error) {
	if viewerID != ownerID {
		partnerID, err := s.partners.LinkedPartnerID(ctx, ownerID)
		if err != nil {
			return cycle.Forecast{}, false, err
		}
		pref, err := s.prefs.Get(ctx, ownerID)
		if err != nil {
			return cycle.Forecast{}, false, err
		}
		if !cycle.CanView(viewerID, ownerID, pref, partnerID) {
			metrics.CountPredictions("partner", "hidden", 1)
			return cycle.Forecast{}, false, ErrForbidden
		}
	}

	entries, err := s.entries.ListByUser(ctx, ownerID)
	if err != nil {
		return cycle.Forecast{}, false, err
	}
	f, ok := cycle.Predict(ownerID, entries)
	return f, ok, nil
}

func recordPredictions(snap Snapshot, view []DisplayEvent) {
	var own, partner int
	for _, d := range view {
		if !d.Predicted {
			continue
		}
		if d.OwnerID == snap.ViewerID {
			own++
		} else {
			partner++
		}
	}
	metrics.CountPredictions("own", "shown", own)
	metrics.CountPredictions("partner", "shown", partner)
	if snap.PartnerID != "" && !snap.PartnerVisible() {
		metrics.CountPredictions("partner", "hidden", 1)
	}
}

// Participants returns the user set a new event created by viewerID gets.
func Participants(viewerID, partnerID string) []string {
	ids := []string{viewerID}
	if partnerID != "" && partnerID != viewerID {
		ids = append(ids, partnerID)
	}
	return ids
}
