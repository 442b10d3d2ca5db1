package domain

import "time"

// ConstraintSpec is the tagged variant representation of a capture's
// constraint, kept in memory during scheduling so mode-selection is an
// exhaustive type switch instead of checking combinations of optional
// timestamp columns (§9 "Polymorphism in constraints").
type ConstraintSpec interface {
	isConstraintSpec()
}

// Flexible has no deadline or preferred start; the planner falls back to
// flexible mode.
type Flexible struct{}

func (Flexible) isConstraintSpec() {}

// DeadlineTime constrains the capture to finish by an absolute instant.
type DeadlineTime struct {
	At time.Time
}

func (DeadlineTime) isConstraintSpec() {}

// DeadlineDate constrains the capture to finish by 23:59 local on a given
// calendar date (resolved to an absolute instant using the caller's offset).
type DeadlineDate struct {
	Date time.Time // normalized to local midnight of the date
}

func (DeadlineDate) isConstraintSpec() {}

// StartTime is a preferred (possibly soft) start instant.
type StartTime struct {
	Target      time.Time
	OriginalTarget time.Time
	IsSoftStart bool
}

func (StartTime) isConstraintSpec() {}

// Window bounds the capture to a `[Start, End)` interval.
type Window struct {
	Start time.Time
	End   time.Time
}

func (Window) isConstraintSpec() {}

// ResolvedDeadline returns the earliest deadline implied by the constraint,
// per §4.2's resolution order, or false if the constraint implies none.
func (c *Capture) ResolvedDeadline(offset time.Duration) (time.Time, bool) {
	switch spec := c.constraint.(type) {
	case DeadlineTime:
		return spec.At, true
	case DeadlineDate:
		return endOfLocalDay(spec.Date, offset), true
	case Window:
		return spec.End, true
	case StartTime:
		return spec.Target, true
	default:
		return time.Time{}, false
	}
}

func endOfLocalDay(date time.Time, offset time.Duration) time.Time {
	local := date.Add(offset)
	eod := time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 0, 0, time.UTC)
	return eod.Add(-offset)
}
