package cycle

import (
	"math"
	"slices"
	"time"

	"github.com/jw6ventures/cyclecal/internal/store"
)

const (
	// DefaultCycleLength is used until two completed cycles with a
	// plausible gap exist.
	DefaultCycleLength = 28
	// PeriodLength is the fixed duration of a predicted period.
	PeriodLength = 5
	// LutealPhase is the distance from ovulation to the next period.
	LutealPhase = 14

	// Gaps outside (minGap, maxGap) are treated as data-entry anomalies.
	minGap = 10
	maxGap = 60

	fertileLeadDays  = 3
	fertileTrailDays = 1
)

// WindowKind discriminates predicted windows.
type WindowKind string

const (
	NextPeriod    WindowKind = "next_period"
	FertileWindow WindowKind = "fertile_window"
)

// Window is a predicted date range belonging to OwnerID. End is exclusive.
type Window struct {
	Kind    WindowKind
	OwnerID string
	Start   time.Time
	End     time.Time
}

// Forecast is the full prediction for one user. NextPeriodEnd and FertileEnd
// are exclusive: the period covers five days and the fertile window covers
// the three days before ovulation plus ovulation day.
type Forecast struct {
	OwnerID            string
	AverageCycleLength int
	LastPeriodStart    time.Time
	NextPeriodStart    time.Time
	NextPeriodEnd      time.Time
	Ovulation          time.Time
	FertileStart       time.Time
	FertileEnd         time.Time
}

// Windows returns the next-period window followed by the fertile window.
func (f Forecast) Windows() []Window {
	return []Window{
		{Kind: NextPeriod, OwnerID: f.OwnerID, Start: f.NextPeriodStart, End: f.NextPeriodEnd},
		{Kind: FertileWindow, OwnerID: f.OwnerID, Start: f.FertileStart, End: f.FertileEnd},
	}
}

// Completed reports whether an entry has a usable end date. An end before
// the start makes the entry invalid and it is not counted as completed.
func Completed(e store.CycleEntry) bool {
	return e.EndDate != nil && !Day(*e.EndDate).Before(Day(e.StartDate))
}

// AverageCycleLength averages the gaps between consecutive starts of
// completed entries, in whole days rounded to nearest. Gaps of 10 days or
// less, or 60 days or more, are ignored. Fewer than two completed entries, or
// no usable gap, yields DefaultCycleLength.
func AverageCycleLength(entries []store.CycleEntry) int {
	var starts []time.Time
	for _, e := range entries {
		if Completed(e) {
			starts = append(starts, Day(e.StartDate))
		}
	}
	if len(starts) < 2 {
		return DefaultCycleLength
	}

	slices.SortStableFunc(starts, func(a, b time.Time) int { return a.Compare(b) })

	total, count := 0, 0
	for i := 1; i < len(starts); i++ {
		gap := DaysBetween(starts[i-1], starts[i])
		if gap <= minGap || gap >= maxGap {
			continue
		}
		total += gap
		count++
	}
	if count == 0 {
		return DefaultCycleLength
	}
	return int(math.Round(float64(total) / float64(count)))
}

// Predict forecasts the next period and fertile window for ownerID. It
// returns false when there is no history at all.
//
// The fertile window runs from three days before ovulation up to (not
// including) the day after it.
func Predict(ownerID string, entries []store.CycleEntry) (Forecast, bool) {
	if len(entries) == 0 {
		return Forecast{}, false
	}

	last := Day(entries[0].StartDate)
	for _, e := range entries[1:] {
		if start := Day(e.StartDate); start.After(last) {
			last = start
		}
	}

	avg := AverageCycleLength(entries)
	next := AddDays(last, avg)
	ovulation := AddDays(next, -LutealPhase)

	return Forecast{
		OwnerID:            ownerID,
		AverageCycleLength: avg,
		LastPeriodStart:    last,
		NextPeriodStart:    next,
		NextPeriodEnd:      AddDays(next, PeriodLength),
		Ovulation:          ovulation,
		FertileStart:       AddDays(ovulation, -fertileLeadDays),
		FertileEnd:         AddDays(ovulation, fertileTrailDays),
	}, true
}
