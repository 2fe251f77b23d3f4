package api

import (
	"net/http"
	"strings"

	"github.com/jw6ventures/cyclecal/internal/cycle"
	httperrors "github.com/jw6ventures/cyclecal/internal/http/errors"
	"github.com/jw6ventures/cyclecal/internal/store"
)

// ListCycles returns the caller's entries with the forecast derived from them.
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	entries, err := h.store.CycleEntries.ListByUser(r.Context(), userID)
	if err != nil {
		storeError(w, r, err, "list cycle entries")
		return
	}

	out := make([]cycleEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toCycleEntry(e))
	}
	f, has := cycle.Predict(userID, entries)

	httperrors.WriteJSON(w, http.StatusOK, map[string]any{
		"entries":  out,
		"forecast": toForecast(f, has),
	})
}

// CreateCycle logs a period start with an optional end.
func (h *Handler) CreateCycle(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req cycleEntryRequest
	if !decode(w, r, &req) {
		return
	}

	start, err := cycle.ParseDay(req.StartDate)
	if err != nil {
		writeValidation(w, r, fieldError("start_date", "start_date must be YYYY-MM-DD"))
		return
	}
	entry := store.CycleEntry{
		ID:        h.newID(),
		UserID:    userID,
		StartDate: start,
		CreatedAt: h.now().UTC(),
	}
	if req.EndDate != nil && strings.TrimSpace(*req.EndDate) != "" {
		end, err := cycle.ParseDay(*req.EndDate)
		if err != nil {
			writeValidation(w, r, fieldError("end_date", "end_date must be YYYY-MM-DD"))
			return
		}
		if end.Before(start) {
			writeValidation(w, r, fieldError("end_date", "end_date must not be before start_date"))
			return
		}
		entry.EndDate = &end
	}

	saved, err := h.store.CycleEntries.Append(r.Context(), entry)
	if err != nil {
		storeError(w, r, err, "save cycle entry")
		return
	}
	httperrors.WriteJSON(w, http.StatusCreated, toCycleEntry(*saved))
}

// GetPreference returns the caller's sharing preference; unset reads as false.
func (h *Handler) GetPreference(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	pref, err := h.store.Preferences.Get(r.Context(), userID)
	if err != nil {
		storeError(w, r, err, "load preference")
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, toPreference(pref))
}

// PutPreference sets whether the linked partner sees the caller's forecasts.
func (h *Handler) PutPreference(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req preferenceRequest
	if !decode(w, r, &req) {
		return
	}

	pref, err := h.store.Preferences.Set(r.Context(), userID, *req.ShareWithPartner)
	if err != nil {
		storeError(w, r, err, "save preference")
		return
	}
	httperrors.LogInfo(r, "sharing preference updated")
	httperrors.WriteJSON(w, http.StatusOK, toPreference(pref))
}

// Forecast returns the forecast for ?owner= (default: the caller). Another
// user's forecast is only returned when the sharing policy allows it.
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	ownerID := strings.TrimSpace(r.URL.Query().Get("owner"))
	if ownerID == "" {
		ownerID = userID
	}

	f, has, err := h.calendar.Forecast(r.Context(), userID, ownerID)
	if err != nil {
		storeError(w, r, err, "compute forecast")
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, map[string]any{"forecast": toForecast(f, has)})
}

func toPreference(p *store.CyclePreference) preferenceResponse {
	if p == nil {
		return preferenceResponse{}
	}
	updated := p.UpdatedAt
	return preferenceResponse{ShareWithPartner: p.ShareWithPartner, UpdatedAt: &updated}
}
