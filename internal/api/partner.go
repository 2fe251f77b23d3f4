package api

import (
	"errors"
	"net/http"
	"strings"

	httperrors "github.com/jw6ventures/cyclecal/internal/http/errors"
	"github.com/jw6ventures/cyclecal/internal/store"
)

// Me returns the caller's account record.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := h.store.Users.GetByID(r.Context(), userID)
	if err != nil {
		storeError(w, r, err, "load user")
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, toUser(*user))
}

func (h *Handler) GetPartner(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	partnerID, err := h.store.Users.LinkedPartnerID(r.Context(), userID)
	if err != nil {
		storeError(w, r, err, "load partner")
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, toPartner(partnerID))
}

// LinkPartner links the caller and partner_id to each other. Both must be
// known users without another partner.
func (h *Handler) LinkPartner(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req partnerRequest
	if !decode(w, r, &req) {
		return
	}
	partnerID := strings.TrimSpace(req.PartnerID)
	if partnerID == userID {
		writeValidation(w, r, fieldError("partner_id", "cannot link to yourself"))
		return
	}

	err := h.store.Users.LinkPartner(r.Context(), userID, partnerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		httperrors.NotFound(w, "partner not found")
		return
	case errors.Is(err, store.ErrConflict):
		httperrors.Conflict(w, "one of the users is already linked to someone else")
		return
	case err != nil:
		storeError(w, r, err, "link partner")
		return
	}

	httperrors.LogInfo(r, "partner linked")
	httperrors.WriteJSON(w, http.StatusOK, toPartner(partnerID))
}

func (h *Handler) UnlinkPartner(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.store.Users.UnlinkPartner(r.Context(), userID); err != nil {
		storeError(w, r, err, "unlink partner")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toPartner(id string) partnerResponse {
	if id == "" {
		return partnerResponse{}
	}
	return partnerResponse{PartnerID: &id}
}
