// Package timewindow implements the working-window arithmetic of §4.1: a
// daily [08:00, 22:00) local band, applied to otherwise-UTC instants via a
// caller-supplied offset from UTC.
package timewindow

import "time"

const (
	StartHour = 8
	EndHour   = 22
)

// Window is a [Start, End) instant pair.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns End - Start.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Overlaps reports whether w and other intersect.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// InWorkingWindow reports whether [s, e) lies within the working window when
// expressed in local time (instant + offset), i.e. both ends on the same local
// day with s at or after StartHour and e at or before EndHour.
func InWorkingWindow(s, e time.Time, offset time.Duration) bool {
	localStart := s.Add(offset)
	localEnd := e.Add(offset)
	if localStart.Year() != localEnd.Year() || localStart.YearDay() != localEnd.YearDay() {
		return false
	}
	dayStart := dayStartLocal(localStart)
	dayEnd := dayEndLocal(localStart)
	return !localStart.Before(dayStart) && !localEnd.After(dayEnd)
}

func dayStartLocal(local time.Time) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), StartHour, 0, 0, 0, time.UTC)
}

func dayEndLocal(local time.Time) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), EndHour, 0, 0, 0, time.UTC)
}

// DayWindow returns the absolute-instant working window for the local
// calendar day that the absolute `instant`, once shifted by offset, falls on.
func DayWindow(instant time.Time, offset time.Duration) Window {
	local := instant.Add(offset)
	return Window{
		Start: dayStartLocal(local).Add(-offset),
		End:   dayEndLocal(local).Add(-offset),
	}
}

// NextDayStart returns the absolute instant of the following local day's
// StartHour — used when a candidate walk rolls past EndHour (§4.1).
func NextDayStart(instant time.Time, offset time.Duration) time.Time {
	local := instant.Add(offset)
	nextLocalDay := dayStartLocal(local).AddDate(0, 0, 1)
	return nextLocalDay.Add(-offset)
}
