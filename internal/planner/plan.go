package planner

import (
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
)

// Mode is the Constraint Planner's mode selection (§4.4).
type Mode string

const (
	ModeDeadline Mode = "deadline"
	ModeStart    Mode = "start"
	ModeWindow   Mode = "window"
	ModeFlexible Mode = "flexible"
)

// Plan is the Constraint Planner's output for one capture.
type Plan struct {
	Mode           Mode
	PreferredStart *time.Time
	PreferredEnd   *time.Time
	Deadline       *time.Time
	WindowStart    *time.Time
	WindowEnd      *time.Time
	IsSoftStart    bool
}

// BuildPlan converts a capture's constraint into a scheduling plan (§4.4).
func BuildPlan(c *capdomain.Capture, now time.Time, offset time.Duration) Plan {
	duration := c.EstimatedDuration()

	switch spec := c.Constraint().(type) {
	case capdomain.DeadlineTime, capdomain.DeadlineDate:
		deadline, _ := c.ResolvedDeadline(offset)
		return Plan{Mode: ModeDeadline, Deadline: &deadline}

	case capdomain.StartTime:
		target := spec.Target
		if target.Before(now) {
			target = now
		}
		end := target.Add(duration)
		return Plan{Mode: ModeStart, PreferredStart: &target, PreferredEnd: &end, IsSoftStart: spec.IsSoftStart}

	case capdomain.Window:
		if spec.End.After(spec.Start) {
			plan := Plan{Mode: ModeWindow, WindowStart: &spec.Start, WindowEnd: &spec.End}
			if slot, ok := firstFeasibleInWindow(spec.Start, spec.End, duration, now); ok {
				plan.PreferredStart = &slot
				end := slot.Add(duration)
				plan.PreferredEnd = &end
			} else if latest, ok := latestFitInWindow(spec.Start, spec.End, duration); ok {
				plan.PreferredStart = &latest
				end := latest.Add(duration)
				plan.PreferredEnd = &end
			}
			// If neither search finds a candidate, the window is smaller
			// than the duration (latestFitInWindow's only failure mode):
			// no preferred slot is set, and ScheduleWithPlan's ModeWindow
			// fallback (findWithinWindow) will correctly report no_slot
			// rather than opening the search past the window's own bound.
			return plan
		}
		return Plan{Mode: ModeFlexible}

	default:
		return Plan{Mode: ModeFlexible}
	}
}

func firstFeasibleInWindow(start, end time.Time, duration time.Duration, now time.Time) (time.Time, bool) {
	candidate := start
	if candidate.Before(now) {
		candidate = now
	}
	if candidate.Add(duration).After(end) {
		return time.Time{}, false
	}
	return candidate, true
}

func latestFitInWindow(start, end time.Time, duration time.Duration) (time.Time, bool) {
	latest := end.Add(-duration)
	if latest.Before(start) {
		return time.Time{}, false
	}
	return latest, true
}
