// Package api serves the JSON endpoints for cycles, partner links and the
// shared calendar.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jw6ventures/cyclecal/internal/auth"
	"github.com/jw6ventures/cyclecal/internal/calendar"
	httperrors "github.com/jw6ventures/cyclecal/internal/http/errors"
	"github.com/jw6ventures/cyclecal/internal/store"
)

const maxBodyBytes = 64 << 10

// Handler implements the API endpoints. All routes expect an authenticated
// user on the request context.
type Handler struct {
	store    *store.Store
	calendar *calendar.Service
	now      func() time.Time
	newID    func() string
}

func NewHandler(st *store.Store, cal *calendar.Service) *Handler {
	return &Handler{store: st, calendar: cal, now: time.Now, newID: newUUID}
}

func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httperrors.WriteError(w, http.StatusUnauthorized, "authentication required")
	}
	return id, ok
}

// decode reads a JSON body into dst and validates it. On failure the error
// response has already been written.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid JSON body")
		return false
	}
	if err := validateStruct(dst); err != nil {
		writeValidation(w, r, err)
		return false
	}
	return true
}

func writeValidation(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validationError
	if !errors.As(err, &verr) {
		httperrors.BadRequestError(w, r, err, "invalid request")
		return
	}
	httperrors.LogWarn(r, "validation failed", err)
	httperrors.WriteJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": verr.fields,
	})
}

// storeError maps repository errors onto responses.
func storeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		httperrors.NotFound(w, "not found")
	case errors.Is(err, store.ErrConflict):
		httperrors.Conflict(w, "conflict")
	case errors.Is(err, calendar.ErrForbidden):
		httperrors.Forbidden(w, "forbidden")
	default:
		httperrors.InternalError(w, r, err, fmt.Sprintf("failed to %s", action))
	}
}
