package planner

import (
	"context"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
	"github.com/diaguru/scheduler/internal/calendargw"
	"github.com/diaguru/scheduler/internal/planner/advisor"
	"github.com/google/uuid"
)

// Preemption thresholds (§4.6, §9 "a product decision, not a theoretical
// bound" — kept exactly as specified).
const (
	BaseThreshold           = 12.0
	MovePenalty             = 4.0
	GainPerMinuteThreshold  = 0.08
	MaxMovedTasksPerRun     = 5
	MaxTotalMinutesShifted  = 240
	MaxRippleDepth          = 2
	StabilityWindow         = 30 * time.Minute
	overlapSoftCostPerMin   = 0.03
	maxSubsetSize           = 4
	maxCombosPerSize        = 64
)

// ConflictKind classifies a conflicting event.
type ConflictKind string

const (
	ConflictExternal ConflictKind = "external"
	ConflictManaged  ConflictKind = "managed"
)

// ManagedConflict pairs a conflicting managed event with its owning
// capture, pre-loaded by the caller (the Orchestrator) so this package
// stays free of persistence dependencies and is easy to test in isolation.
type ManagedConflict struct {
	Event   calendargw.Event
	Capture *capdomain.Capture
}

// Conflict is one event intersecting the proposed slot.
type Conflict struct {
	Event calendargw.Event
	Kind  ConflictKind
}

// DetectConflicts classifies every busy interval intersecting slot as
// external or managed (§4.6.1).
func DetectConflicts(slot Slot, busy []BusyInterval) []Conflict {
	var out []Conflict
	for _, b := range busy {
		if slot.Start.Before(b.End) && b.Start.Before(slot.End) {
			kind := ConflictExternal
			if b.Event.IsManaged() {
				kind = ConflictManaged
			}
			out = append(out, Conflict{Event: b.Event, Kind: kind})
		}
	}
	return out
}

// OutcomeKind distinguishes what the resolver decided.
type OutcomeKind string

const (
	OutcomePlaced     OutcomeKind = "placed"
	OutcomePreempted  OutcomeKind = "preempted"
	OutcomeAdvisory   OutcomeKind = "advisory"
)

// ConflictSummary is surfaced in the public decision body (§6).
type ConflictSummary struct {
	ID        string
	Summary   string
	Start     time.Time
	End       time.Time
	DiaGuru   bool
	CaptureID *uuid.UUID
}

// Decision is the structured advisory returned when preemption fails or is
// disallowed (§4.6.5, §6).
type Decision struct {
	Type       string
	Preferred  Slot
	Conflicts  []ConflictSummary
	Suggestion *Slot
	Advisor    *advisor.Recommendation
}

// Outcome is the resolver's decision for one scheduling attempt.
type Outcome struct {
	Kind      OutcomeKind
	Slot      Slot
	Displaced []*capdomain.Capture // captures to run through cascade reschedule
	Decision  *Decision
}

// Movable reports whether a managed conflict may be displaced (§4.6.4.a):
// not frozen, and outside its 30-minute stability window unless the target
// mode is deadline.
func Movable(c *capdomain.Capture, now time.Time, targetMode Mode) bool {
	if c.IsFrozen(now) {
		return false
	}
	if targetMode == ModeDeadline {
		return true
	}
	if c.PlannedStart() == nil {
		return true
	}
	stabilityStart := c.PlannedStart().Add(-StabilityWindow)
	return now.Before(stabilityStart) || !now.Before(*c.PlannedStart())
}

// eligibleToPreempt checks §4.6.4.b: mode != flexible, all conflicts are
// managed, and target priority strictly exceeds every movable conflict's.
func eligibleToPreempt(targetMode Mode, conflicts []Conflict, managed map[string]ManagedConflict, targetPriority float64, now time.Time, offset time.Duration) bool {
	if targetMode == ModeFlexible {
		return false
	}
	for _, cf := range conflicts {
		if cf.Kind != ConflictManaged {
			return false
		}
		mc, ok := managed[cf.Event.ID]
		if !ok || mc.Capture == nil {
			return false
		}
		if !Movable(mc.Capture, now, targetMode) {
			continue // immovable conflicts are handled by subset search failing to cover them
		}
		conflictPriority := capdomain.Priority(mc.Capture, now, offset)
		if targetPriority <= conflictPriority {
			return false
		}
	}
	return true
}

// Resolve implements §4.6: detect conflicts, honor explicit overlap
// permission, and otherwise attempt minimal preemption before falling back
// to an advisory decision.
func Resolve(
	ctx context.Context,
	target *capdomain.Capture,
	targetPlan Plan,
	preferred Slot,
	busyStandard, busyCompressed []BusyInterval,
	managed map[string]ManagedConflict,
	allowOverlap bool,
	now time.Time,
	offset time.Duration,
	advisorSvc advisor.Service,
) (Outcome, error) {
	conflicts := DetectConflicts(preferred, busyStandard)

	if allowOverlap && overlapPermitted(target, preferred, conflicts, managed, offset) {
		conflicts = nil
	}

	if len(conflicts) == 0 {
		return Outcome{Kind: OutcomePlaced, Slot: preferred}, nil
	}

	if targetPriority := capdomain.Priority(target, now, offset); eligibleToPreempt(targetPlan.Mode, conflicts, managed, targetPriority, now, offset) {
		if outcome, ok := tryPreemption(target, targetPlan, preferred, conflicts, busyStandard, managed, now, offset); ok {
			return outcome, nil
		}
		if targetPlan.Mode == ModeDeadline {
			compressedConflicts := DetectConflicts(preferred, busyCompressed)
			if outcome, ok := tryPreemption(target, targetPlan, preferred, compressedConflicts, busyCompressed, managed, now, offset); ok {
				return outcome, nil
			}
		}
	}

	return buildAdvisory(ctx, target, preferred, conflicts, busyStandard, offset, now, advisorSvc)
}

func overlapPermitted(target *capdomain.Capture, slot Slot, conflicts []Conflict, managed map[string]ManagedConflict, offset time.Duration) bool {
	_ = offset
	for _, cf := range conflicts {
		if cf.Kind == ConflictExternal {
			return false
		}
		if target.CannotOverlap() {
			return false
		}
		if mc, ok := managed[cf.Event.ID]; ok && mc.Capture != nil && mc.Capture.CannotOverlap() {
			return false
		}
	}
	return true
}

// tryPreemption enumerates minimal subsets of conflict ids (§4.6.c) and
// returns the first subset whose removal makes the slot feasible and whose
// net gain clears the thresholds (§4.6.d).
func tryPreemption(
	target *capdomain.Capture,
	targetPlan Plan,
	preferred Slot,
	conflicts []Conflict,
	busy []BusyInterval,
	managed map[string]ManagedConflict,
	now time.Time,
	offset time.Duration,
) (Outcome, bool) {
	if len(conflicts) == 0 || len(conflicts) > 20 {
		return Outcome{}, false
	}

	claimedMinutes := preferred.End.Sub(preferred.Start).Minutes()
	benefitPerMinute := capdomain.PriorityPerMinute(target, now, offset)

	for size := 1; size <= maxSubsetSize && size <= len(conflicts); size++ {
		combos := combinations(len(conflicts), size, maxCombosPerSize)
		for _, combo := range combos {
			subsetEvents := make(map[string]bool, size)
			var displaced []*capdomain.Capture
			ok := true
			for _, idx := range combo {
				cf := conflicts[idx]
				mc, found := managed[cf.Event.ID]
				if !found || mc.Capture == nil || !Movable(mc.Capture, now, targetPlan.Mode) {
					ok = false
					break
				}
				subsetEvents[cf.Event.ID] = true
				displaced = append(displaced, mc.Capture)
			}
			if !ok || len(displaced) == 0 {
				continue
			}

			remaining := filterBusy(busy, subsetEvents)
			if !IsFree(preferred.Start, preferred.End, remaining) {
				continue
			}

			if len(displaced) > MaxMovedTasksPerRun {
				continue
			}

			cost := 0.0
			totalMoved := 0.0
			for _, d := range displaced {
				moved := overlapMinutes(d, preferred)
				totalMoved += moved
				cost += capdomain.RescheduleCost(d, now, offset, moved)
			}
			if totalMoved > MaxTotalMinutesShifted {
				continue
			}

			benefit := benefitPerMinute * claimedMinutes
			net := benefit - cost - overlapSoftCostPerMin*0
			if net < BaseThreshold+MovePenalty*float64(len(displaced)) {
				continue
			}
			if net/claimedMinutes < GainPerMinuteThreshold {
				continue
			}

			return Outcome{Kind: OutcomePreempted, Slot: preferred, Displaced: displaced}, true
		}
	}
	return Outcome{}, false
}

func filterBusy(busy []BusyInterval, excludeEventIDs map[string]bool) []BusyInterval {
	out := make([]BusyInterval, 0, len(busy))
	for _, b := range busy {
		if excludeEventIDs[b.Event.ID] {
			continue
		}
		out = append(out, b)
	}
	return out
}

func overlapMinutes(c *capdomain.Capture, slot Slot) float64 {
	if c.PlannedStart() == nil || c.PlannedEnd() == nil {
		return c.EstimatedDuration().Minutes()
	}
	start := *c.PlannedStart()
	end := *c.PlannedEnd()
	if start.Before(slot.Start) {
		start = slot.Start
	}
	if end.After(slot.End) {
		end = slot.End
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start).Minutes()
}

// combinations returns up to `limit` index combinations of size `size`
// chosen from [0, n), generated breadth-first in index order (§9 "bounded
// to size 4 with a 64-item cap per size").
func combinations(n, size, limit int) [][]int {
	var out [][]int
	var combo []int
	var rec func(start int)
	rec = func(start int) {
		if len(out) >= limit {
			return
		}
		if len(combo) == size {
			chosen := make([]int, len(combo))
			copy(chosen, combo)
			out = append(out, chosen)
			return
		}
		for i := start; i < n && len(out) < limit; i++ {
			combo = append(combo, i)
			rec(i + 1)
			combo = combo[:len(combo)-1]
		}
	}
	rec(0)
	return out
}

// buildAdvisory builds the structured preferred_conflict decision (§4.6.5,
// §6), consulting the advisor and re-validating any slot it proposes.
func buildAdvisory(
	ctx context.Context,
	target *capdomain.Capture,
	preferred Slot,
	conflicts []Conflict,
	busy []BusyInterval,
	offset time.Duration,
	now time.Time,
	advisorSvc advisor.Service,
) (Outcome, error) {
	suggestion, hasSuggestion := findFirstFree(target.EstimatedDuration(), offset, preferred.End, busy)

	summaries := make([]ConflictSummary, 0, len(conflicts))
	for _, cf := range conflicts {
		s := ConflictSummary{
			ID:      cf.Event.ID,
			Summary: cf.Event.Summary,
			Start:   cf.Event.Start,
			End:     cf.Event.End,
			DiaGuru: cf.Kind == ConflictManaged,
		}
		if id, ok := cf.Event.CaptureID(); ok {
			s.CaptureID = &id
		}
		summaries = append(summaries, s)
	}

	decision := &Decision{
		Type:      "preferred_conflict",
		Preferred: preferred,
		Conflicts: summaries,
	}
	if hasSuggestion {
		decision.Suggestion = &suggestion
	}

	if advisorSvc != nil {
		advCtx := advisor.Context{
			TargetSummary:  target.Content(),
			PreferredStart: preferred.Start,
			PreferredEnd:   preferred.End,
		}
		if hasSuggestion {
			advCtx.Suggestion = &advisor.Slot{Start: suggestion.Start, End: suggestion.End}
		}
		for _, s := range summaries {
			cid := ""
			if s.CaptureID != nil {
				cid = s.CaptureID.String()
			}
			advCtx.Conflicts = append(advCtx.Conflicts, advisor.ConflictSummary{
				ID: s.ID, Summary: s.Summary, Start: s.Start, End: s.End, DiaGuru: s.DiaGuru, CaptureID: cid,
			})
		}

		rec, err := advisorSvc.Advise(ctx, advCtx)
		if err == nil {
			if rec.Slot != nil {
				candidate := Slot{Start: rec.Slot.Start, End: rec.Slot.End}
				if validateAdvisorSlot(candidate, busy, offset) {
					decision.Suggestion = &candidate
				}
			}
			decision.Advisor = &rec
		}
	}

	return Outcome{Kind: OutcomeAdvisory, Slot: preferred, Decision: decision}, nil
}

func validateAdvisorSlot(slot Slot, busy []BusyInterval, offset time.Duration) bool {
	return slot.End.After(slot.Start) && IsFree(slot.Start, slot.End, busy)
}
