package planner

import (
	"errors"
	"time"

	"github.com/diaguru/scheduler/internal/capture/timewindow"
)

// SearchIncrement is the candidate-start step used while walking a day
// (§4.5).
const SearchIncrement = 15 * time.Minute

// SearchHorizonDays bounds how far forward the search walks (§4.5).
const SearchHorizonDays = 7

// DefaultLeadTime is added to `now` for the first candidate start, avoiding
// proposing a slot that has effectively already begun.
const DefaultLeadTime = 5 * time.Minute

// ErrNoSlot is returned when the search exhausts the horizon without
// finding a feasible slot (§7 "no_slot").
var ErrNoSlot = errors.New("planner: no free slot found within horizon")

// ErrSlotExceedsDeadline guards against accepting a slot that violates a
// hard deadline (§4.5, §7 "slot_exceeds_deadline" — a bug-guard).
var ErrSlotExceedsDeadline = errors.New("planner: candidate slot exceeds deadline")

// Slot is a candidate `[Start, End)` placement.
type Slot struct {
	Start time.Time
	End   time.Time
}

// findFirstFree walks day by day up to SearchHorizonDays, proposing
// SearchIncrement-spaced candidate starts inside the working window, and
// returns the first free slot of the given duration (§4.5).
func findFirstFree(duration time.Duration, offset time.Duration, startFrom time.Time, busy []BusyInterval) (Slot, bool) {
	return walkHorizon(startFrom, offset, func(candidate time.Time) (Slot, bool) {
		end := candidate.Add(duration)
		if !timewindow.InWorkingWindow(candidate, end, offset) {
			return Slot{}, false
		}
		if !IsFree(candidate, end, busy) {
			return Slot{}, false
		}
		return Slot{Start: candidate, End: end}, true
	})
}

// findBeforeDeadline walks forward from now, returning the earliest free
// in-window slot whose end does not exceed deadline (§4.5).
func findBeforeDeadline(duration time.Duration, offset time.Duration, startFrom, deadline time.Time, busy []BusyInterval) (Slot, bool) {
	latestStart := deadline.Add(-duration)
	if latestStart.Before(startFrom) {
		return Slot{}, false
	}
	slot, ok := walkHorizon(startFrom, offset, func(candidate time.Time) (Slot, bool) {
		if candidate.After(latestStart) {
			return Slot{}, false
		}
		end := candidate.Add(duration)
		if end.After(deadline) {
			return Slot{}, false
		}
		if !timewindow.InWorkingWindow(candidate, end, offset) {
			return Slot{}, false
		}
		if !IsFree(candidate, end, busy) {
			return Slot{}, false
		}
		return Slot{Start: candidate, End: end}, true
	})
	return slot, ok
}

// findWithinWindow behaves like findFirstFree but restricted to [wStart, wEnd).
func findWithinWindow(duration time.Duration, offset time.Duration, startFrom, wStart, wEnd time.Time, busy []BusyInterval) (Slot, bool) {
	from := startFrom
	if from.Before(wStart) {
		from = wStart
	}
	slot, ok := walkHorizon(from, offset, func(candidate time.Time) (Slot, bool) {
		if candidate.Before(wStart) {
			return Slot{}, false
		}
		end := candidate.Add(duration)
		if end.After(wEnd) {
			return Slot{}, false
		}
		if !timewindow.InWorkingWindow(candidate, end, offset) {
			return Slot{}, false
		}
		if !IsFree(candidate, end, busy) {
			return Slot{}, false
		}
		return Slot{Start: candidate, End: end}, true
	})
	return slot, ok
}

// findNearTarget searches +-tolerance around target for a free in-window
// slot, preferring the target itself, then the closest candidate on either
// side (§4.5 start mode).
func findNearTarget(duration, tolerance time.Duration, offset time.Duration, target, now time.Time, busy []BusyInterval) (Slot, bool) {
	earliest := target.Add(-tolerance)
	if earliest.Before(now) {
		earliest = now
	}
	latest := target.Add(tolerance)

	check := func(candidate time.Time) (Slot, bool) {
		if candidate.Before(earliest) || candidate.After(latest) {
			return Slot{}, false
		}
		end := candidate.Add(duration)
		if !timewindow.InWorkingWindow(candidate, end, offset) {
			return Slot{}, false
		}
		if !IsFree(candidate, end, busy) {
			return Slot{}, false
		}
		return Slot{Start: candidate, End: end}, true
	}

	if slot, ok := check(target); ok {
		return slot, true
	}

	for step := SearchIncrement; step <= tolerance; step += SearchIncrement {
		if slot, ok := check(target.Add(step)); ok {
			return slot, true
		}
		if slot, ok := check(target.Add(-step)); ok {
			return slot, true
		}
	}
	return Slot{}, false
}

// walkHorizon drives the common day-by-day / increment-by-increment walk
// shared by the search variants above, gating each candidate day to its
// local working window and rolling over to the next local day's start
// once a day's window is exhausted (§4.1, §4.5).
func walkHorizon(startFrom time.Time, offset time.Duration, accept func(time.Time) (Slot, bool)) (Slot, bool) {
	horizon := startFrom.Add(SearchHorizonDays * 24 * time.Hour)

	day := timewindow.DayWindow(startFrom, offset)
	candidate := startFrom
	if candidate.Before(day.Start) {
		candidate = day.Start
	}

	for candidate.Before(horizon) {
		if candidate.After(day.End) || candidate.Equal(day.End) {
			candidate = timewindow.NextDayStart(candidate, offset)
			day = timewindow.DayWindow(candidate, offset)
			continue
		}

		if slot, ok := accept(candidate); ok {
			return slot, true
		}

		candidate = candidate.Add(SearchIncrement)
		if candidate.After(day.End) {
			candidate = timewindow.NextDayStart(candidate, offset)
			day = timewindow.DayWindow(candidate, offset)
		}
	}
	return Slot{}, false
}

// startToleranceDefault / startToleranceSoft are the ±1h / ±2h bands used
// for start-mode search (§4.5; widened per DESIGN.md Open Question 1).
const (
	startToleranceDefault = time.Hour
	startToleranceSoft    = 2 * time.Hour
)

// ScheduleWithPlan implements `scheduleWithPlan` (§4.5): try the plan's
// preferred slot, then fall back per mode, then fail with ErrNoSlot.
func ScheduleWithPlan(plan Plan, duration time.Duration, offset time.Duration, now time.Time, busy []BusyInterval) (Slot, error) {
	startFrom := now.Add(DefaultLeadTime)

	if plan.PreferredStart != nil && plan.PreferredEnd != nil {
		if IsFree(*plan.PreferredStart, *plan.PreferredEnd, busy) &&
			timewindow.InWorkingWindow(*plan.PreferredStart, *plan.PreferredEnd, offset) {
			return Slot{Start: *plan.PreferredStart, End: *plan.PreferredEnd}, nil
		}
	}

	switch plan.Mode {
	case ModeDeadline:
		if plan.Deadline == nil {
			return Slot{}, ErrNoSlot
		}
		if slot, ok := findBeforeDeadline(duration, offset, startFrom, *plan.Deadline, busy); ok {
			return slot, nil
		}
		return Slot{}, ErrNoSlot

	case ModeWindow:
		if plan.WindowStart == nil || plan.WindowEnd == nil {
			return Slot{}, ErrNoSlot
		}
		if slot, ok := findWithinWindow(duration, offset, startFrom, *plan.WindowStart, *plan.WindowEnd, busy); ok {
			return slot, nil
		}
		return Slot{}, ErrNoSlot

	case ModeStart:
		if plan.PreferredStart == nil {
			return Slot{}, ErrNoSlot
		}
		tolerance := startToleranceDefault
		if plan.IsSoftStart {
			tolerance = startToleranceSoft
		}
		if slot, ok := findNearTarget(duration, tolerance, offset, *plan.PreferredStart, startFrom, busy); ok {
			return slot, nil
		}
		return Slot{}, ErrNoSlot

	default: // ModeFlexible
		if slot, ok := findFirstFree(duration, offset, startFrom, busy); ok {
			return slot, nil
		}
		return Slot{}, ErrNoSlot
	}
}

// ValidateAgainstDeadline hard-checks a returned slot against the plan's
// deadline before it is accepted (§4.5 "hard-checked").
func ValidateAgainstDeadline(slot Slot, plan Plan) error {
	if plan.Deadline != nil && slot.End.After(*plan.Deadline) {
		return ErrSlotExceedsDeadline
	}
	if plan.WindowEnd != nil && slot.End.After(*plan.WindowEnd) {
		return ErrSlotExceedsDeadline
	}
	return nil
}
