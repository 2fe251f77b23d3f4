package api

import "github.com/go-chi/chi/v5"

// Routes mounts the API on r. Authentication is applied by the caller.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/cycles", func(r chi.Router) {
		r.Get("/", h.ListCycles)
		r.Post("/", h.CreateCycle)
		r.Get("/preference", h.GetPreference)
		r.Put("/preference", h.PutPreference)
		r.Get("/forecast", h.Forecast)
	})

	r.Get("/me", h.Me)

	r.Get("/partner", h.GetPartner)
	r.Put("/partner", h.LinkPartner)
	r.Delete("/partner", h.UnlinkPartner)

	r.Get("/calendar", h.Calendar)
	r.Get("/calendar.ics", h.CalendarICS)
	r.Post("/calendar/events", h.CreateEvent)
	r.Put("/calendar/events/{id}", h.UpdateEvent)
	r.Delete("/calendar/events/{id}", h.DeleteEvent)
}
