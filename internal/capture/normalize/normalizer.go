// Package normalize implements the Routine Normalizer (§4.3): rules applied
// once at ingest, before a capture is persisted, that fold recognizable
// routine language into canonical constraints — mirroring the teacher's
// CandidateCollector pattern of turning a domain concept's "preferred time"
// into a scheduling constraint at collection time.
package normalize

import (
	"strings"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
)

const beforeBedDeadlineHour = 23
const beforeBedDeadlineMinute = 30

var sleepKeywords = []string{"sleep", "nap", "bedtime"}
var mealKeywords = []string{"eat", "meal", "breakfast", "lunch", "dinner", "snack"}

// Normalize mutates capture in place, applying the routine rules against its
// content. now and offset are used to anchor relative windows ("today",
// "tomorrow") to absolute instants. Calling Normalize twice with the same
// (capture, now) is idempotent: the second pass sees the already-normalized
// kind/constraint and makes no further change.
func Normalize(c *capdomain.Capture, now time.Time, offset time.Duration) {
	content := strings.ToLower(c.Content())
	beforeSleep := strings.Contains(content, "before sleep") || strings.Contains(content, "before i sleep")

	switch {
	case c.Kind() == capdomain.KindRoutineSleep || (!beforeSleep && containsAny(content, sleepKeywords)):
		applySleep(c, now, offset)
	case c.Kind() == capdomain.KindRoutineMeal || containsAny(content, mealKeywords):
		applyMeal(c, content, now, offset)
	}

	if beforeSleep {
		applyBeforeBedDeadline(c, now, offset)
	}
}

func containsAny(content string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(content, kw) {
			return true
		}
	}
	return false
}

func applySleep(c *capdomain.Capture, now time.Time, offset time.Duration) {
	c.SetKind(capdomain.KindRoutineSleep)
	c.SetFlexibility(true, capdomain.StartFlexSoft, capdomain.DurationFixed, c.MinChunkMinutes(), c.MaxSplits())

	if _, isWindow := c.Constraint().(capdomain.Window); !isWindow {
		local := now.Add(offset)
		start := time.Date(local.Year(), local.Month(), local.Day(), 22, 30, 0, 0, time.UTC).Add(-offset)
		end := start.AddDate(0, 0, 0).Add(9 * time.Hour) // 22:30 -> 07:30 next day
		c.SetConstraint(capdomain.Window{Start: start, End: end})
	}

	urgency := c.Urgency()
	if urgency > 3 {
		urgency = 3
	}
	impact := c.Impact()
	if impact > 3 {
		impact = 3
	}
	penalty := c.ReschedulePenalty()
	if penalty > 1 {
		penalty = 1
	}
	c.SetImportanceFacets(urgency, impact, false, penalty, c.ExternalityScore(), c.Importance())
}

type mealWindow struct {
	startHour, startMin int
	endHour, endMin     int
}

func mealWindowFor(content string) mealWindow {
	switch {
	case strings.Contains(content, "breakfast"):
		return mealWindow{7, 30, 9, 30}
	case strings.Contains(content, "lunch"):
		return mealWindow{12, 0, 14, 0}
	case strings.Contains(content, "dinner"):
		return mealWindow{18, 0, 20, 0}
	default:
		return mealWindow{12, 0, 13, 0}
	}
}

func applyMeal(c *capdomain.Capture, content string, now time.Time, offset time.Duration) {
	c.SetKind(capdomain.KindRoutineMeal)
	c.SetFlexibility(false, capdomain.StartFlexSoft, capdomain.DurationFixed, c.MinChunkMinutes(), c.MaxSplits())

	if _, isWindow := c.Constraint().(capdomain.Window); !isWindow {
		mw := mealWindowFor(content)
		local := now.Add(offset)
		start := time.Date(local.Year(), local.Month(), local.Day(), mw.startHour, mw.startMin, 0, 0, time.UTC).Add(-offset)
		end := time.Date(local.Year(), local.Month(), local.Day(), mw.endHour, mw.endMin, 0, 0, time.UTC).Add(-offset)
		c.SetConstraint(capdomain.Window{Start: start, End: end})
	}
}

func applyBeforeBedDeadline(c *capdomain.Capture, now time.Time, offset time.Duration) {
	if _, hasDeadline := c.Constraint().(capdomain.DeadlineTime); hasDeadline {
		return
	}
	if _, hasWindow := c.Constraint().(capdomain.Window); hasWindow {
		return
	}
	local := now.Add(offset)
	deadline := time.Date(local.Year(), local.Month(), local.Day(), beforeBedDeadlineHour, beforeBedDeadlineMinute, 0, 0, time.UTC).Add(-offset)
	c.SetConstraint(capdomain.DeadlineTime{At: deadline})
}
