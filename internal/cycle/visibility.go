package cycle

import "github.com/jw6ventures/cyclecal/internal/store"

// CanView reports whether viewerID may see ownerID's forecasts. Owners always
// see their own. Anyone else must be the owner's linked partner, and the owner
// must have opted in; a missing preference counts as not shared.
func CanView(viewerID, ownerID string, ownerPref *store.CyclePreference, ownerPartnerID string) bool {
	if viewerID == ownerID {
		return true
	}
	if viewerID == "" || ownerPref == nil || !ownerPref.ShareWithPartner {
		return false
	}
	return ownerPartnerID == viewerID
}
