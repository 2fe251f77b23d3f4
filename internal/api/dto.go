package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/jw6ventures/cyclecal/internal/calendar"
	"github.com/jw6ventures/cyclecal/internal/cycle"
	"github.com/jw6ventures/cyclecal/internal/store"
)

func newUUID() string { return uuid.NewString() }

type cycleEntryRequest struct {
	StartDate string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   *string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

type preferenceRequest struct {
	ShareWithPartner *bool `json:"share_with_partner" validate:"required"`
}

type partnerRequest struct {
	PartnerID string `json:"partner_id" validate:"required,max=128"`
}

type eventRequest struct {
	Title       string    `json:"title" validate:"max=200"`
	Description string    `json:"description" validate:"max=2000"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtefield=Start"`
	Type        string    `json:"type" validate:"omitempty,oneof=default intimacy"`
}

type cycleEntryResponse struct {
	ID        string  `json:"id"`
	StartDate string  `json:"start_date"`
	EndDate   *string `json:"end_date"`
	Completed bool    `json:"completed"`
}

type forecastResponse struct {
	OwnerID            string `json:"owner_id"`
	AverageCycleLength int    `json:"average_cycle_length"`
	LastPeriodStart    string `json:"last_period_start"`
	NextPeriodStart    string `json:"next_period_start"`
	NextPeriodEnd      string `json:"next_period_end"`
	Ovulation          string `json:"ovulation"`
	FertileStart       string `json:"fertile_start"`
	FertileEnd         string `json:"fertile_end"`
}

type preferenceResponse struct {
	ShareWithPartner bool       `json:"share_with_partner"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

type userResponse struct {
	ID        string    `json:"id"`
	PartnerID *string   `json:"partner_id"`
	CreatedAt time.Time `json:"created_at"`
}

type partnerResponse struct {
	PartnerID *string `json:"partner_id"`
}

type displayEventResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Kind        string    `json:"kind"`
	OwnerID     string    `json:"owner_id"`
	Predicted   bool      `json:"predicted"`
	AllDay      bool      `json:"all_day"`
	UserIDs     []string  `json:"user_ids"`
}

type eventResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Type        string    `json:"type"`
	UserIDs     []string  `json:"user_ids"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toUser(u store.User) userResponse {
	return userResponse{ID: u.ID, PartnerID: u.PartnerID, CreatedAt: u.CreatedAt}
}

func formatDay(t time.Time) string { return t.Format(cycle.DateLayout) }

func toCycleEntry(e store.CycleEntry) cycleEntryResponse {
	resp := cycleEntryResponse{
		ID:        e.ID,
		StartDate: formatDay(e.StartDate),
		Completed: cycle.Completed(e),
	}
	if e.EndDate != nil {
		end := formatDay(*e.EndDate)
		resp.EndDate = &end
	}
	return resp
}

func toForecast(f cycle.Forecast, ok bool) *forecastResponse {
	if !ok {
		return nil
	}
	return &forecastResponse{
		OwnerID:            f.OwnerID,
		AverageCycleLength: f.AverageCycleLength,
		LastPeriodStart:    formatDay(f.LastPeriodStart),
		NextPeriodStart:    formatDay(f.NextPeriodStart),
		NextPeriodEnd:      formatDay(f.NextPeriodEnd),
		Ovulation:          formatDay(f.Ovulation),
		FertileStart:       formatDay(f.FertileStart),
		FertileEnd:         formatDay(f.FertileEnd),
	}
}

func toDisplayEvent(d calendar.DisplayEvent) displayEventResponse {
	return displayEventResponse{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Start:       d.Start,
		End:         d.End,
		Kind:        string(d.Kind),
		OwnerID:     d.OwnerID,
		Predicted:   d.Predicted,
		AllDay:      d.AllDay,
		UserIDs:     d.UserIDs,
	}
}

func toEvent(e store.CalendarEvent) eventResponse {
	return eventResponse{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Start:       e.Start,
		End:         e.End,
		Type:        e.Type,
		UserIDs:     e.UserIDs,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
