package api

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/jw6ventures/cyclecal/internal/calendar"
	"github.com/jw6ventures/cyclecal/internal/store"
)

type fakeUsers struct {
	partners map[string]string
	known    map[string]bool
}

func (f *fakeUsers) Ensure(ctx context.Context, id string) error {
	f.known[id] = true
	return nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*store.User, error) {
	if !f.known[id] {
		return nil, store.ErrNotFound
	}
	u := &store.User{ID: id}
	if p := f.partners[id]; p != "" {
		u.PartnerID = &p
	}
	return u, nil
}

func (f *fakeUsers) LinkedPartnerID(ctx context.Context, id string) (string, error) {
	return f.partners[id], nil
}

func (f *fakeUsers) LinkPartner(ctx context.Context, userID, partnerID string) error {
	if userID == partnerID {
		return store.ErrConflict
	}
	if !f.known[userID] || !f.known[partnerID] {
		return store.ErrNotFound
	}
	if p := f.partners[userID]; p != "" && p != partnerID {
		return store.ErrConflict
	}
	if p := f.partners[partnerID]; p != "" && p != userID {
		return store.ErrConflict
	}
	f.partners[userID] = partnerID
	f.partners[partnerID] = userID
	return nil
}

func (f *fakeUsers) UnlinkPartner(ctx context.Context, userID string) error {
	if p := f.partners[userID]; p != "" {
		delete(f.partners, p)
	}
	delete(f.partners, userID)
	return nil
}

type fakeEntries struct {
	entries []store.CycleEntry
}

func (f *fakeEntries) ListByUser(ctx context.Context, userID string) ([]store.CycleEntry, error) {
	var out []store.CycleEntry
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (f *fakeEntries) Append(ctx context.Context, entry store.CycleEntry) (*store.CycleEntry, error) {
	f.entries = append(f.entries, entry)
	return &entry, nil
}

func (f *fakeEntries) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for _, e := range f.entries {
		if !slices.Contains(ids, e.UserID) {
			ids = append(ids, e.UserID)
		}
	}
	return ids, nil
}

type fakePrefs map[string]*store.CyclePreference

func (f fakePrefs) Get(ctx context.Context, userID string) (*store.CyclePreference, error) {
	return f[userID], nil
}

func (f fakePrefs) Set(ctx context.Context, userID string, share bool) (*store.CyclePreference, error) {
	p := &store.CyclePreference{UserID: userID, ShareWithPartner: share, UpdatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	f[userID] = p
	return p, nil
}

type fakeEvents struct {
	events map[string]store.CalendarEvent
}

func (f *fakeEvents) ListForParticipants(ctx context.Context, userIDs []string) ([]store.CalendarEvent, error) {
	var out []store.CalendarEvent
	for _, e := range f.events {
		for _, id := range userIDs {
			if e.HasParticipant(id) {
				out = append(out, e)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (f *fakeEvents) GetByID(ctx context.Context, id string) (*store.CalendarEvent, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (f *fakeEvents) Create(ctx context.Context, e store.CalendarEvent) (*store.CalendarEvent, error) {
	if _, ok := f.events[e.ID]; ok {
		return nil, store.ErrConflict
	}
	f.events[e.ID] = e
	return &e, nil
}

func (f *fakeEvents) Update(ctx context.Context, e store.CalendarEvent) (*store.CalendarEvent, error) {
	if _, ok := f.events[e.ID]; !ok {
		return nil, store.ErrNotFound
	}
	f.events[e.ID] = e
	return &e, nil
}

func (f *fakeEvents) Delete(ctx context.Context, id string) error {
	if _, ok := f.events[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.events, id)
	return nil
}

type fixture struct {
	handler *Handler
	users   *fakeUsers
	entries *fakeEntries
	prefs   fakePrefs
	events  *fakeEvents
}

func newFixture() *fixture {
	f := &fixture{
		users:   &fakeUsers{partners: map[string]string{}, known: map[string]bool{}},
		entries: &fakeEntries{},
		prefs:   fakePrefs{},
		events:  &fakeEvents{events: map[string]store.CalendarEvent{}},
	}
	st := &store.Store{Users: f.users, CycleEntries: f.entries, Preferences: f.prefs, Events: f.events}
	svc := calendar.NewService(f.users, f.entries, f.prefs, f.events)
	f.handler = NewHandler(st, svc)
	f.handler.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	seq := 0
	f.handler.newID = func() string {
		seq++
		return fmt.Sprintf("00000000-0000-4000-8000-%012d", seq)
	}
	return f
}

func (f *fixture) link(a, b string) {
	f.users.known[a] = true
	f.users.known[b] = true
	f.users.partners[a] = b
	f.users.partners[b] = a
}
