package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/cyclecal/internal/auth"
	"github.com/jw6ventures/cyclecal/internal/store"
)

func (f *fixture) do(t *testing.T, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != "" {
				req = req.WithContext(auth.WithUserID(req.Context(), userID))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api", f.handler.Routes)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

func addEntry(f *fixture, userID, start, end string) {
	s, _ := time.Parse("2006-01-02", start)
	e := store.CycleEntry{ID: userID + start, UserID: userID, StartDate: s}
	if end != "" {
		d, _ := time.Parse("2006-01-02", end)
		e.EndDate = &d
	}
	f.entries.entries = append(f.entries.entries, e)
}

func TestRequiresUser(t *testing.T) {
	f := newFixture()
	rr := f.do(t, http.MethodGet, "/api/cycles", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestListCyclesIncludesForecast(t *testing.T) {
	f := newFixture()
	addEntry(f, "a", "2024-01-29", "2024-02-02")
	addEntry(f, "a", "2024-01-01", "2024-01-05")

	rr := f.do(t, http.MethodGet, "/api/cycles", "a", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	entries := body["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("entries = %v", entries)
	}
	forecast := body["forecast"].(map[string]any)
	if forecast["next_period_start"] != "2024-02-26" || forecast["next_period_end"] != "2024-03-02" {
		t.Fatalf("forecast = %v", forecast)
	}
	if forecast["average_cycle_length"].(float64) != 28 {
		t.Fatalf("average = %v", forecast["average_cycle_length"])
	}
}

func TestListCyclesWithoutHistory(t *testing.T) {
	f := newFixture()
	rr := f.do(t, http.MethodGet, "/api/cycles", "a", "")
	body := decodeBody(t, rr)
	if body["forecast"] != nil {
		t.Fatalf("expected null forecast, got %v", body["forecast"])
	}
	if entries := body["entries"].([]any); len(entries) != 0 {
		t.Fatalf("entries = %v", entries)
	}
}

func TestCreateCycle(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"ongoing", `{"start_date":"2024-03-01"}`, http.StatusCreated},
		{"completed", `{"start_date":"2024-03-01","end_date":"2024-03-05"}`, http.StatusCreated},
		{"same day", `{"start_date":"2024-03-01","end_date":"2024-03-01"}`, http.StatusCreated},
		{"missing start", `{"end_date":"2024-03-05"}`, http.StatusBadRequest},
		{"bad date", `{"start_date":"03/01/2024"}`, http.StatusBadRequest},
		{"end before start", `{"start_date":"2024-03-05","end_date":"2024-03-01"}`, http.StatusBadRequest},
		{"unknown field", `{"start_date":"2024-03-01","flow":"heavy"}`, http.StatusBadRequest},
		{"not json", `nope`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rr := f.do(t, http.MethodPost, "/api/cycles", "a", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d body=%s", rr.Code, tt.status, rr.Body.String())
			}
			if tt.status == http.StatusCreated {
				if len(f.entries.entries) != 1 || f.entries.entries[0].UserID != "a" {
					t.Fatalf("entries = %+v", f.entries.entries)
				}
				return
			}
			if len(f.entries.entries) != 0 {
				t.Fatal("invalid entry was stored")
			}
			if _, ok := decodeBody(t, rr)["error"]; !ok {
				t.Fatal("missing error field")
			}
		})
	}
}

func TestCreateCycleReportsFieldName(t *testing.T) {
	f := newFixture()
	rr := f.do(t, http.MethodPost, "/api/cycles", "a", `{"start_date":"2024-03-05","end_date":"2024-03-01"}`)
	fields, ok := decodeBody(t, rr)["fields"].(map[string]any)
	if !ok {
		t.Fatalf("missing fields: %s", rr.Body.String())
	}
	if _, ok := fields["end_date"]; !ok {
		t.Fatalf("fields = %v", fields)
	}
}

func TestPreference(t *testing.T) {
	f := newFixture()

	rr := f.do(t, http.MethodGet, "/api/cycles/preference", "a", "")
	if rr.Code != http.StatusOK || decodeBody(t, rr)["share_with_partner"] != false {
		t.Fatalf("default preference: %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPut, "/api/cycles/preference", "a", `{"share_with_partner":true}`)
	if rr.Code != http.StatusOK || decodeBody(t, rr)["share_with_partner"] != true {
		t.Fatalf("put preference: %d %s", rr.Code, rr.Body.String())
	}
	if !f.prefs["a"].ShareWithPartner {
		t.Fatal("preference not stored")
	}

	rr = f.do(t, http.MethodPut, "/api/cycles/preference", "a", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("missing flag accepted: %d", rr.Code)
	}
}

func TestForecastVisibility(t *testing.T) {
	f := newFixture()
	f.link("viewer", "owner")
	addEntry(f, "owner", "2024-01-01", "2024-01-05")

	rr := f.do(t, http.MethodGet, "/api/cycles/forecast?owner=owner", "viewer", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unshared forecast status = %d", rr.Code)
	}

	f.prefs["owner"] = &store.CyclePreference{UserID: "owner", ShareWithPartner: true}
	rr = f.do(t, http.MethodGet, "/api/cycles/forecast?owner=owner", "viewer", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("shared forecast status = %d", rr.Code)
	}
	forecast := decodeBody(t, rr)["forecast"].(map[string]any)
	if forecast["owner_id"] != "owner" || forecast["fertile_start"] != "2024-01-12" {
		t.Fatalf("forecast = %v", forecast)
	}

	rr = f.do(t, http.MethodGet, "/api/cycles/forecast?owner=owner", "stranger", "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("stranger status = %d", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/api/cycles/forecast", "viewer", "")
	if rr.Code != http.StatusOK || decodeBody(t, rr)["forecast"] != nil {
		t.Fatalf("own empty forecast: %d %s", rr.Code, rr.Body.String())
	}
}

func TestPartnerLinking(t *testing.T) {
	f := newFixture()
	f.users.known["a"] = true
	f.users.known["b"] = true
	f.users.known["c"] = true

	if rr := f.do(t, http.MethodPut, "/api/partner", "a", `{"partner_id":"a"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("self link status = %d", rr.Code)
	}
	if rr := f.do(t, http.MethodPut, "/api/partner", "a", `{"partner_id":"zzz"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown partner status = %d", rr.Code)
	}
	if rr := f.do(t, http.MethodPut, "/api/partner", "a", `{"partner_id":"b"}`); rr.Code != http.StatusOK {
		t.Fatalf("link status = %d", rr.Code)
	}
	if rr := f.do(t, http.MethodPut, "/api/partner", "c", `{"partner_id":"b"}`); rr.Code != http.StatusConflict {
		t.Fatalf("taken partner status = %d", rr.Code)
	}

	rr := f.do(t, http.MethodGet, "/api/partner", "b", "")
	if decodeBody(t, rr)["partner_id"] != "a" {
		t.Fatalf("partner of b = %s", rr.Body.String())
	}

	if rr := f.do(t, http.MethodDelete, "/api/partner", "b", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("unlink status = %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/api/partner", "a", "")
	if decodeBody(t, rr)["partner_id"] != nil {
		t.Fatalf("partner of a after unlink = %s", rr.Body.String())
	}
}

func TestCalendarHidesUnsharedPredictions(t *testing.T) {
	f := newFixture()
	f.link("viewer", "owner")
	addEntry(f, "owner", "2024-01-01", "2024-01-05")
	f.events.events["e1"] = store.CalendarEvent{
		ID: "e1", Title: "Dinner", Type: store.EventTypeDefault,
		Start:   time.Date(2024, 2, 10, 18, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 2, 10, 20, 0, 0, 0, time.UTC),
		UserIDs: []string{"owner", "viewer"}, CreatedBy: "owner",
	}

	rr := f.do(t, http.MethodGet, "/api/calendar", "viewer", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	events := decodeBody(t, rr)["events"].([]any)
	if len(events) != 1 || events[0].(map[string]any)["id"] != "e1" {
		t.Fatalf("events = %v", events)
	}

	f.prefs["owner"] = &store.CyclePreference{UserID: "owner", ShareWithPartner: true}
	rr = f.do(t, http.MethodGet, "/api/calendar", "viewer", "")
	events = decodeBody(t, rr)["events"].([]any)
	if len(events) != 3 {
		t.Fatalf("expected event plus two partner windows, got %v", events)
	}
	first := events[0].(map[string]any)
	if first["kind"] != "fertile" || first["owner_id"] != "owner" || first["predicted"] != true {
		t.Fatalf("first row = %v", first)
	}
}

func TestCalendarRange(t *testing.T) {
	f := newFixture()
	addEntry(f, "a", "2024-01-01", "2024-01-05")

	rr := f.do(t, http.MethodGet, "/api/calendar?from=2024-01-14&to=2024-01-20", "a", "")
	events := decodeBody(t, rr)["events"].([]any)
	if len(events) != 1 || events[0].(map[string]any)["kind"] != "fertile" {
		t.Fatalf("events = %v", events)
	}

	rr = f.do(t, http.MethodGet, "/api/calendar?from=2024-02-01&to=2024-01-01", "a", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("inverted range status = %d", rr.Code)
	}
}

func TestCalendarICSHasEventPerRow(t *testing.T) {
	f := newFixture()
	addEntry(f, "a", "2024-01-01", "2024-01-05")
	f.events.events["e1"] = store.CalendarEvent{
		ID: "e1", Title: "Walk", Type: store.EventTypeDefault,
		Start:   time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
		UserIDs: []string{"a"}, CreatedBy: "a",
	}

	rr := f.do(t, http.MethodGet, "/api/calendar.ics", "a", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content type = %q", ct)
	}
	if n := strings.Count(rr.Body.String(), "BEGIN:VEVENT"); n != 3 {
		t.Fatalf("VEVENT count = %d", n)
	}

	etag := rr.Header().Get("ETag")
	req := httptest.NewRequest(http.MethodGet, "/api/calendar.ics", nil)
	req.Header.Set("If-None-Match", etag)
	req = req.WithContext(auth.WithUserID(req.Context(), "a"))
	rr = httptest.NewRecorder()
	f.handler.CalendarICS(rr, req)
	if rr.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d", rr.Code)
	}
}

func TestEventLifecycle(t *testing.T) {
	f := newFixture()
	f.link("a", "b")
	f.users.known["c"] = true

	rr := f.do(t, http.MethodPost, "/api/calendar/events", "a",
		`{"title":"Date night","start":"2024-03-08T19:00:00Z","end":"2024-03-08T22:00:00Z","type":"intimacy"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rr.Code, rr.Body.String())
	}
	created := decodeBody(t, rr)
	id := created["id"].(string)
	users := created["user_ids"].([]any)
	if len(users) != 2 || users[0] != "a" || users[1] != "b" {
		t.Fatalf("participants = %v", users)
	}

	update := `{"title":"Dinner","start":"2024-03-08T19:00:00Z","end":"2024-03-08T21:00:00Z"}`
	if rr := f.do(t, http.MethodPut, "/api/calendar/events/"+id, "c", update); rr.Code != http.StatusForbidden {
		t.Fatalf("outsider update status = %d", rr.Code)
	}
	rr = f.do(t, http.MethodPut, "/api/calendar/events/"+id, "b", update)
	if rr.Code != http.StatusOK {
		t.Fatalf("partner update status = %d body=%s", rr.Code, rr.Body.String())
	}
	if got := f.events.events[id]; got.Title != "Dinner" || got.Type != store.EventTypeDefault || got.CreatedBy != "a" {
		t.Fatalf("stored event = %+v", got)
	}

	if rr := f.do(t, http.MethodDelete, "/api/calendar/events/"+id, "c", ""); rr.Code != http.StatusForbidden {
		t.Fatalf("outsider delete status = %d", rr.Code)
	}
	if rr := f.do(t, http.MethodDelete, "/api/calendar/events/"+id, "a", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr := f.do(t, http.MethodDelete, "/api/calendar/events/"+id, "a", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rr.Code)
	}
}

func TestCreateEventValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"long title", `{"title":"` + strings.Repeat("x", 201) + `","start":"2024-03-08T19:00:00Z","end":"2024-03-08T22:00:00Z"}`},
		{"end before start", `{"title":"x","start":"2024-03-08T19:00:00Z","end":"2024-03-08T18:00:00Z"}`},
		{"bad type", `{"title":"x","start":"2024-03-08T19:00:00Z","end":"2024-03-08T22:00:00Z","type":"party"}`},
		{"missing start", `{"title":"x","end":"2024-03-08T22:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rr := f.do(t, http.MethodPost, "/api/calendar/events", "a", tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
			}
			if len(f.events.events) != 0 {
				t.Fatal("invalid event stored")
			}
		})
	}
}

func TestCreateEventDefaultsTitle(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing default", `{"start":"2024-03-08T19:00:00Z","end":"2024-03-08T22:00:00Z"}`, "Untitled"},
		{"blank intimacy", `{"title":"  ","start":"2024-03-08T19:00:00Z","end":"2024-03-08T22:00:00Z","type":"intimacy"}`, "Intimacy"},
		{"trimmed", `{"title":" Walk ","start":"2024-03-08T19:00:00Z","end":"2024-03-08T22:00:00Z"}`, "Walk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			rr := f.do(t, http.MethodPost, "/api/calendar/events", "a", tt.body)
			if rr.Code != http.StatusCreated {
				t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
			}
			if got := decodeBody(t, rr)["title"]; got != tt.want {
				t.Fatalf("title = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestUpdateEventBlankTitle(t *testing.T) {
	f := newFixture()
	rr := f.do(t, http.MethodPost, "/api/calendar/events", "a",
		`{"title":"Date night","start":"2024-03-08T19:00:00Z","end":"2024-03-08T22:00:00Z","type":"intimacy"}`)
	id := decodeBody(t, rr)["id"].(string)

	rr = f.do(t, http.MethodPut, "/api/calendar/events/"+id, "a",
		`{"title":"","start":"2024-03-08T19:00:00Z","end":"2024-03-08T22:00:00Z","type":"intimacy"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if got := f.events.events[id].Title; got != "Intimacy" {
		t.Fatalf("title = %q", got)
	}
}

func TestEventMalformedID(t *testing.T) {
	f := newFixture()
	update := `{"title":"x","start":"2024-03-08T19:00:00Z","end":"2024-03-08T21:00:00Z"}`
	tests := []struct {
		method string
		body   string
	}{
		{http.MethodPut, update},
		{http.MethodDelete, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			rr := f.do(t, tt.method, "/api/calendar/events/not-a-uuid", "a", tt.body)
			if rr.Code != http.StatusNotFound {
				t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCalendarAllDayEndIsExclusive(t *testing.T) {
	f := newFixture()
	addEntry(f, "a", "2024-01-01", "2024-01-05")

	rr := f.do(t, http.MethodGet, "/api/calendar.ics", "a", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	out := rr.Body.String()
	for _, want := range []string{
		"DTSTART;VALUE=DATE:20240129\r\n",
		"DTEND;VALUE=DATE:20240203\r\n",
		"DTSTART;VALUE=DATE:20240112\r\n",
		"DTEND;VALUE=DATE:20240116\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("feed missing %q", want)
		}
	}

	// Period covers Jan 29 through Feb 2.
	rr = f.do(t, http.MethodGet, "/api/calendar?from=2024-02-02&to=2024-02-10", "a", "")
	if n := len(decodeBody(t, rr)["events"].([]any)); n != 1 {
		t.Fatalf("rows overlapping Feb 2 = %d", n)
	}
	rr = f.do(t, http.MethodGet, "/api/calendar?from=2024-02-03&to=2024-02-10", "a", "")
	if n := len(decodeBody(t, rr)["events"].([]any)); n != 0 {
		t.Fatalf("rows overlapping Feb 3 = %d", n)
	}
}

func TestMe(t *testing.T) {
	f := newFixture()
	f.link("a", "b")

	rr := f.do(t, http.MethodGet, "/api/me", "a", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["id"] != "a" || body["partner_id"] != "b" {
		t.Fatalf("body = %v", body)
	}

	if rr := f.do(t, http.MethodGet, "/api/me", "ghost", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown user status = %d", rr.Code)
	}
}
