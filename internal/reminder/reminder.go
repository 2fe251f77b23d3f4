// Package reminder sends daily heads-up notices derived from forecasts.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jw6ventures/cyclecal/internal/cycle"
	"github.com/jw6ventures/cyclecal/internal/metrics"
	"github.com/jw6ventures/cyclecal/internal/store"
)

// Kind identifies which forecast milestone a reminder is about.
type Kind string

const (
	FertileWindowStart Kind = "fertile_window_start"
	OvulationDay       Kind = "ovulation"
	PeriodSoon         Kind = "period_soon"
)

// periodLeadDays is how far ahead of the expected period PeriodSoon fires.
const periodLeadDays = 2

// Reminder is one notice for RecipientID about OwnerID's forecast.
type Reminder struct {
	RecipientID string
	OwnerID     string
	Kind        Kind
	Date        time.Time
	Message     string
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// LogNotifier writes reminders to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, r Reminder) error {
	log.Printf("[INFO] reminder %s for %s (owner %s): %s", r.Kind, r.RecipientID, r.OwnerID, r.Message)
	return nil
}

// EntrySource lists users with history and loads it.
type EntrySource interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	ListByUser(ctx context.Context, userID string) ([]store.CycleEntry, error)
}

// PartnerResolver finds a user's linked partner; "" means none.
type PartnerResolver interface {
	LinkedPartnerID(ctx context.Context, userID string) (string, error)
}

// PreferenceGetter loads a user's sharing preference.
type PreferenceGetter interface {
	Get(ctx context.Context, userID string) (*store.CyclePreference, error)
}

// Due returns the milestones of f falling on today.
func Due(f cycle.Forecast, today time.Time) []Kind {
	today = cycle.Day(today)
	var kinds []Kind
	if today.Equal(f.FertileStart) {
		kinds = append(kinds, FertileWindowStart)
	}
	if today.Equal(f.Ovulation) {
		kinds = append(kinds, OvulationDay)
	}
	if today.Equal(cycle.AddDays(f.NextPeriodStart, -periodLeadDays)) {
		kinds = append(kinds, PeriodSoon)
	}
	return kinds
}

// Job computes today's reminders for every user with history.
type Job struct {
	entries  EntrySource
	partners PartnerResolver
	prefs    PreferenceGetter
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

func NewJob(entries EntrySource, partners PartnerResolver, prefs PreferenceGetter, notifier Notifier, loc *time.Location) *Job {
	if loc == nil {
		loc = time.UTC
	}
	return &Job{
		entries:  entries,
		partners: partners,
		prefs:    prefs,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
	}
}

// Run sends today's reminders. A failure for one user does not stop the
// others; all failures are returned joined.
func (j *Job) Run(ctx context.Context) error {
	userIDs, err := j.entries.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	today := cycle.Day(j.now().In(j.loc))
	var errs []error
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := j.runUser(ctx, userID, today); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

func (j *Job) runUser(ctx context.Context, userID string, today time.Time) error {
	entries, err := j.entries.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	f, ok := cycle.Predict(userID, entries)
	if !ok {
		return nil
	}
	kinds := Due(f, today)
	if len(kinds) == 0 {
		return nil
	}

	recipients := []string{userID}
	partnerID, err := j.partners.LinkedPartnerID(ctx, userID)
	if err != nil {
		return err
	}
	if partnerID != "" {
		pref, err := j.prefs.Get(ctx, userID)
		if err != nil {
			return err
		}
		if cycle.CanView(partnerID, userID, pref, partnerID) {
			recipients = append(recipients, partnerID)
		}
	}

	var errs []error
	for _, kind := range kinds {
		for _, recipient := range recipients {
			r := Reminder{
				RecipientID: recipient,
				OwnerID:     userID,
				Kind:        kind,
				Date:        today,
				Message:     message(kind, f, recipient != userID),
			}
			err := j.notifier.Notify(ctx, r)
			metrics.CountReminder(string(kind), err)
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func message(kind Kind, f cycle.Forecast, partner bool) string {
	subject := "Your"
	if partner {
		subject = "Your partner's"
	}
	switch kind {
	case FertileWindowStart:
		return fmt.Sprintf("%s fertile window starts today and runs through %s.", subject, cycle.AddDays(f.FertileEnd, -1).Format("Jan 2"))
	case OvulationDay:
		return fmt.Sprintf("%s predicted ovulation day is today.", subject)
	case PeriodSoon:
		return fmt.Sprintf("%s next period is expected on %s.", subject, f.NextPeriodStart.Format("Jan 2"))
	}
	return ""
}
