package domain

import (
	"math"
	"time"
)

// Default scoring weights (§4.2).
const (
	WeightDeadline  = 4.0
	WeightImportance = 3.0
	WeightExternality = 2.0
	WeightAge       = 1.0
	WeightWindow    = 1.0
	WeightDuration  = 0.75
	WeightResched   = 1.0

	deadlineRampCap     = 10.0
	windowApproachWindow = 6 * time.Hour
	fragmentationK       = 2.0
)

// Priority returns the capture's scheduling priority at `now`: higher
// schedules sooner. Pure function of (capture, now); see §4.2.
func Priority(c *Capture, now time.Time, offset time.Duration) float64 {
	d := deadlineUrgency(c, now, offset)
	w := windowApproach(c, now)
	i := importanceBlend(c)
	e := clamp(c.ExternalityScore()/3, 0, 1)
	a := ageDays(c, now) * 0.15
	h := c.EstimatedDuration().Hours()
	r := float64(c.RescheduleCount())*0.5 + float64(c.ReschedulePenalty())/3

	return WeightDeadline*d + WeightWindow*w + WeightImportance*i + WeightExternality*e +
		WeightAge*a - WeightDuration*h - WeightResched*r
}

// deadlineUrgency computes D: clamp(24h/max(slack,5min), 0, 10), halved when
// the capture has a soft start preference.
func deadlineUrgency(c *Capture, now time.Time, offset time.Duration) float64 {
	deadline, ok := c.ResolvedDeadline(offset)
	if !ok {
		return 0
	}
	slack := deadline.Sub(now)
	if slack < 5*time.Minute {
		slack = 5 * time.Minute
	}
	d := (24 * time.Hour).Seconds() / slack.Seconds()
	d = clamp(d, 0, deadlineRampCap)
	if st, ok := c.Constraint().(StartTime); ok && st.IsSoftStart {
		d /= 2
	}
	return d
}

// windowApproach computes W: a ramp from 0 to 1 over the 6 hours before the
// capture's preferred window/start target, 1 once that instant has passed.
func windowApproach(c *Capture, now time.Time) float64 {
	var target time.Time
	switch spec := c.Constraint().(type) {
	case Window:
		target = spec.Start
	case StartTime:
		target = spec.Target
	default:
		return 0
	}
	until := target.Sub(now)
	if until <= 0 {
		return 1
	}
	if until >= windowApproachWindow {
		return 0
	}
	return 1 - until.Seconds()/windowApproachWindow.Seconds()
}

// importanceBlend computes I: a weighted blend of normalized urgency/impact,
// falling back to the legacy coarse importance scale when both are unset.
func importanceBlend(c *Capture) float64 {
	if c.Urgency() == 0 && c.Impact() == 0 {
		return float64(c.Importance()) / 3
	}
	return 0.6*float64(c.Urgency())/5 + 0.4*float64(c.Impact())/5
}

func ageDays(c *Capture, now time.Time) float64 {
	return now.Sub(c.CreatedAt()).Hours() / 24
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Rigidity weights. The spec names the terms a rigidity score sums over
// (§4.2) without fixing coefficients; these were chosen so that a hard
// deadline or cannot_overlap dominate while urgency/impact contribute a
// smaller tiebreaking signal, and are applied consistently across the
// planner and resolver.
const (
	rigidityReschedulePenalty = 1.5
	rigidityRescheduleCount   = 0.5
	rigidityHardDeadline      = 3.0
	rigidityTightness         = 2.0
	rigidityCannotOverlap     = 2.0
	rigidityFixedDuration     = 1.5
	rigidityHardStart         = 1.5
	rigidityUrgency           = 0.8
	rigidityImpact            = 0.6
	rigidityBlocking          = 1.0
)

// Rigidity returns how hard a capture is to move: higher is harder.
func Rigidity(c *Capture, now time.Time, offset time.Duration) float64 {
	r := rigidityReschedulePenalty*float64(c.ReschedulePenalty()) +
		rigidityRescheduleCount*float64(c.RescheduleCount())

	if _, ok := c.Constraint().(DeadlineTime); ok {
		r += rigidityHardDeadline
	}
	if _, ok := c.Constraint().(DeadlineDate); ok {
		r += rigidityHardDeadline
	}

	if deadline, ok := c.ResolvedDeadline(offset); ok {
		slack := deadline.Sub(now).Hours()
		duration := c.EstimatedDuration().Hours()
		if duration <= 0 {
			duration = 0.5
		}
		tightness := clamp(1-slack/duration, 0, 1)
		r += rigidityTightness * tightness
	}

	if c.CannotOverlap() {
		r += rigidityCannotOverlap
	}
	if c.DurationFlexibility() == DurationFixed {
		r += rigidityFixedDuration
	}
	if c.StartFlexibility() == StartFlexHard {
		r += rigidityHardStart
	}
	r += rigidityUrgency * float64(c.Urgency())
	r += rigidityImpact * float64(c.Impact())
	if c.Blocking() {
		r += rigidityBlocking
	}
	return r
}

// RescheduleCost is the cost of moving capture C by m minutes (§4.2):
// rigidity(C)·m/duration(C) + k·sqrt(max(1,m)).
func RescheduleCost(c *Capture, now time.Time, offset time.Duration, movedMinutes float64) float64 {
	duration := c.EstimatedDuration().Minutes()
	if duration <= 0 {
		duration = 1
	}
	rig := Rigidity(c, now, offset)
	base := rig * movedMinutes / duration
	frag := fragmentationK * math.Sqrt(math.Max(1, movedMinutes))
	return base + frag
}

// PriorityPerMinute is the per-minute benefit rate used in the preemption
// net-gain calculation (§4.6): priority spread over the capture's duration.
func PriorityPerMinute(c *Capture, now time.Time, offset time.Duration) float64 {
	duration := c.EstimatedDuration().Minutes()
	if duration <= 0 {
		duration = 1
	}
	return Priority(c, now, offset) / duration
}
