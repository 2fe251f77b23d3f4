// Package calendar merges real shared events with predicted cycle windows
// into the list a viewer's calendar renders.
package calendar

import (
	"sort"
	"time"

	"github.com/jw6ventures/cyclecal/internal/cycle"
	"github.com/jw6ventures/cyclecal/internal/store"
)

// Kind tags a DisplayEvent for rendering.
type Kind string

const (
	KindDefault    Kind = "default"
	KindIntimacy   Kind = "intimacy"
	KindPrediction Kind = "prediction"
	KindFertile    Kind = "fertile"
)

// DisplayEvent is one row of a rendered calendar. Predicted rows are derived
// on every build and have no backing record.
type DisplayEvent struct {
	ID          string
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Kind        Kind
	OwnerID     string
	Predicted   bool
	AllDay      bool
	UserIDs     []string
}

// Snapshot is everything a view is computed from. PartnerID is empty when the
// viewer has no linked partner; PartnerPreference is nil when the partner
// never saved one.
type Snapshot struct {
	ViewerID          string
	PartnerID         string
	Events            []store.CalendarEvent
	ViewerEntries     []store.CycleEntry
	PartnerEntries    []store.CycleEntry
	PartnerPreference *store.CyclePreference
}

// PartnerVisible reports whether the partner's predictions belong in the view.
func (s Snapshot) PartnerVisible() bool {
	return s.PartnerID != "" && cycle.CanView(s.ViewerID, s.PartnerID, s.PartnerPreference, s.ViewerID)
}

// BuildView returns the snapshot's events and visible predictions sorted by
// start. Entries sharing a start keep their insertion order: real events, then
// the viewer's predictions, then the partner's.
func BuildView(s Snapshot) []DisplayEvent {
	out := make([]DisplayEvent, 0, len(s.Events)+4)

	for _, ev := range s.Events {
		if !eventInView(ev, s.ViewerID, s.PartnerID) {
			continue
		}
		out = append(out, fromEvent(ev))
	}

	if f, ok := cycle.Predict(s.ViewerID, s.ViewerEntries); ok {
		out = append(out, fromForecast(f, "own")...)
	}
	if s.PartnerVisible() {
		if f, ok := cycle.Predict(s.PartnerID, s.PartnerEntries); ok {
			out = append(out, fromForecast(f, "partner")...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// With a partner linked only events shared by both are shown; the viewer's
// solo events stay out of the couple calendar.
func eventInView(ev store.CalendarEvent, viewerID, partnerID string) bool {
	if partnerID == "" {
		return ev.HasParticipant(viewerID)
	}
	return ev.HasParticipant(viewerID) && ev.HasParticipant(partnerID)
}

func fromEvent(ev store.CalendarEvent) DisplayEvent {
	kind := KindDefault
	if ev.Type == store.EventTypeIntimacy {
		kind = KindIntimacy
	}
	return DisplayEvent{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Start:       ev.Start,
		End:         ev.End,
		Kind:        kind,
		OwnerID:     ev.CreatedBy,
		UserIDs:     ev.UserIDs,
	}
}

func fromForecast(f cycle.Forecast, scope string) []DisplayEvent {
	windows := f.Windows()
	out := make([]DisplayEvent, 0, len(windows))
	for _, w := range windows {
		d := DisplayEvent{
			Start:     w.Start,
			End:       w.End,
			OwnerID:   w.OwnerID,
			Predicted: true,
			AllDay:    true,
			UserIDs:   []string{w.OwnerID},
		}
		switch w.Kind {
		case cycle.NextPeriod:
			d.ID = "pred-" + scope + "-period"
			d.Kind = KindPrediction
			d.Title = "Expected period"
		case cycle.FertileWindow:
			d.ID = "pred-" + scope + "-fertile"
			d.Kind = KindFertile
			d.Title = "Fertile window"
		}
		if scope == "partner" {
			d.Title = "Partner: " + d.Title
		}
		out = append(out, d)
	}
	return out
}
