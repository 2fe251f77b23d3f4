package api

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jw6ventures/cyclecal/internal/calendar"
	"github.com/jw6ventures/cyclecal/internal/cycle"
	httperrors "github.com/jw6ventures/cyclecal/internal/http/errors"
	"github.com/jw6ventures/cyclecal/internal/ical"
	"github.com/jw6ventures/cyclecal/internal/store"
)

// Calendar returns the caller's merged calendar. Optional from/to
// (YYYY-MM-DD, inclusive) restrict it to rows overlapping that range.
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	from, to, err := parseRange(r)
	if err != nil {
		writeValidation(w, r, err)
		return
	}

	view, err := h.calendar.View(r.Context(), userID)
	if err != nil {
		storeError(w, r, err, "build calendar")
		return
	}

	out := make([]displayEventResponse, 0, len(view))
	for _, d := range view {
		if overlaps(d, from, to) {
			out = append(out, toDisplayEvent(d))
		}
	}
	httperrors.WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}

// CalendarICS renders the same view as an iCalendar feed.
func (h *Handler) CalendarICS(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	view, err := h.calendar.View(r.Context(), userID)
	if err != nil {
		storeError(w, r, err, "build calendar")
		return
	}

	var buf bytes.Buffer
	if err := ical.Write(&buf, toICal(view), h.now()); err != nil {
		httperrors.InternalError(w, r, err, "failed to render calendar")
		return
	}

	// DTSTAMP changes on every render, so the tag covers the events only.
	var stable bytes.Buffer
	_ = ical.Write(&stable, toICal(view), time.Time{})
	etag := ical.ETag(stable.Bytes())
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cyclecal.ics"`)
	w.Header().Set("ETag", etag)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// CreateEvent adds an event shared between the caller and their partner.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req eventRequest
	if !decode(w, r, &req) {
		return
	}

	partnerID, err := h.store.Users.LinkedPartnerID(r.Context(), userID)
	if err != nil {
		storeError(w, r, err, "load partner")
		return
	}

	now := h.now().UTC()
	ev := store.CalendarEvent{
		ID:          h.newID(),
		Title:       defaultTitle(req.Title, req.Type),
		Description: req.Description,
		Start:       req.Start,
		End:         req.End,
		Type:        eventType(req.Type),
		UserIDs:     calendar.Participants(userID, partnerID),
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	saved, err := h.store.Events.Create(r.Context(), ev)
	if err != nil {
		storeError(w, r, err, "create event")
		return
	}
	httperrors.WriteJSON(w, http.StatusCreated, toEvent(*saved))
}

// UpdateEvent edits an event the caller participates in. Participants are
// left unchanged.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	ev, ok := h.participantEvent(w, r, userID)
	if !ok {
		return
	}

	var req eventRequest
	if !decode(w, r, &req) {
		return
	}

	ev.Title = defaultTitle(req.Title, req.Type)
	ev.Description = req.Description
	ev.Start = req.Start
	ev.End = req.End
	ev.Type = eventType(req.Type)

	saved, err := h.store.Events.Update(r.Context(), *ev)
	if err != nil {
		storeError(w, r, err, "update event")
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, toEvent(*saved))
}

// DeleteEvent removes an event the caller participates in.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	ev, ok := h.participantEvent(w, r, userID)
	if !ok {
		return
	}

	if err := h.store.Events.Delete(r.Context(), ev.ID); err != nil {
		storeError(w, r, err, "delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) participantEvent(w http.ResponseWriter, r *http.Request, userID string) (*store.CalendarEvent, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httperrors.NotFound(w, "event not found")
		return nil, false
	}

	ev, err := h.store.Events.GetByID(r.Context(), id)
	if err != nil {
		storeError(w, r, err, "load event")
		return nil, false
	}
	if !ev.HasParticipant(userID) {
		httperrors.Forbidden(w, "not a participant of this event")
		return nil, false
	}
	return ev, true
}

// defaultTitle fills in a title for events saved without one.
func defaultTitle(title, typ string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if eventType(typ) == store.EventTypeIntimacy {
		return "Intimacy"
	}
	return "Untitled"
}

func eventType(t string) string {
	if t == store.EventTypeIntimacy {
		return store.EventTypeIntimacy
	}
	return store.EventTypeDefault
}

func parseRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if from, err = cycle.ParseDay(v); err != nil {
			return from, to, fieldError("from", "from must be YYYY-MM-DD")
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = cycle.ParseDay(v); err != nil {
			return from, to, fieldError("to", "to must be YYYY-MM-DD")
		}
		// Inclusive end day.
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return from, to, fieldError("to", "to must not be before from")
	}
	return from, to, nil
}

func overlaps(d calendar.DisplayEvent, from, to time.Time) bool {
	if !from.IsZero() && !d.End.After(from) {
		return false
	}
	if !to.IsZero() && !d.Start.Before(to) {
		return false
	}
	return true
}

func toICal(view []calendar.DisplayEvent) ical.Calendar {
	cal := ical.Calendar{Name: "cyclecal", Events: make([]ical.Event, 0, len(view))}
	for _, d := range view {
		ev := ical.Event{
			UID:         d.ID + "@cyclecal",
			Summary:     d.Title,
			Description: d.Description,
			Start:       d.Start,
			End:         d.End,
			AllDay:      d.AllDay,
			Categories:  []string{string(d.Kind)},
			Transparent: d.Predicted,
		}
		if d.Predicted {
			// Prediction ids repeat across owners' feeds; qualify them.
			ev.UID = d.ID + "-" + d.OwnerID + "@cyclecal"
		}
		cal.Events = append(cal.Events, ev)
	}
	return cal
}
