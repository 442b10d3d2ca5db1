package orchestrator

import (
	"context"
	"errors"
	"time"

	capdomain "github.com/diaguru/scheduler/internal/capture/domain"
	"github.com/diaguru/scheduler/internal/capture/timewindow"
	"github.com/diaguru/scheduler/internal/calendargw"
	journaldomain "github.com/diaguru/scheduler/internal/journal/domain"
	"github.com/diaguru/scheduler/internal/planner"
	"github.com/google/uuid"
)

// Handle dispatches a schedule-capture request to schedule, reschedule, or
// complete (§4.9), serialized by a per-(user_id, capture_id) lock (§5).
func (h *Handler) Handle(ctx context.Context, cmd ScheduleCaptureCommand) (*ScheduleResult, error) {
	handle, err := h.locker.Acquire(ctx, cmd.UserID, cmd.CaptureID, h.lockTTL)
	if err != nil {
		return nil, NewEngineError(CodeInternal, "could not acquire scheduling lock", err)
	}
	defer func() { _ = handle.Release(context.Background()) }()

	capture, err := h.captures.FindByID(ctx, cmd.CaptureID)
	if err != nil {
		return nil, NewEngineError(CodeCaptureNotFound, "capture not found", err)
	}
	if capture.OwnerID() != cmd.UserID {
		return nil, NewEngineError(CodeForbidden, "capture belongs to another user", nil)
	}

	gw, err := h.gateways.Resolve(ctx, cmd.UserID)
	if err != nil {
		return nil, mapGatewayError(err)
	}

	plan := journaldomain.NewPlan(cmd.UserID)

	switch cmd.Action {
	case ActionComplete:
		return h.complete(ctx, cmd, gw, plan, capture)
	case ActionReschedule:
		if err := h.unscheduleForReschedule(ctx, cmd, gw, plan, capture); err != nil {
			return nil, err
		}
		return h.place(ctx, cmd, gw, plan, capture)
	case ActionSchedule:
		return h.place(ctx, cmd, gw, plan, capture)
	default:
		return nil, NewEngineError(CodeInternal, "unknown action: "+string(cmd.Action), nil)
	}
}

func mapGatewayError(err error) error {
	if errors.Is(err, calendargw.ErrNotLinked) {
		return NewEngineError(CodeNotLinked, "calendar account not linked", err)
	}
	return NewEngineError(CodeProviderError, "calendar provider error", err)
}

func (h *Handler) deleteRemoteEvent(ctx context.Context, gw calendargw.Gateway, userID uuid.UUID, eventID, etag string) error {
	if eventID == "" {
		return nil
	}
	if err := gw.DeleteEvent(ctx, userID, calendargw.DeleteEventParams{EventID: eventID, ETag: etag}); err != nil {
		if errors.Is(err, calendargw.ErrNotFound) {
			return nil
		}
		return mapGatewayError(err)
	}
	return nil
}

// complete implements the complete operation (§4.9): delete the remote
// event if one exists and mark the capture completed, preserving the row.
func (h *Handler) complete(ctx context.Context, cmd ScheduleCaptureCommand, gw calendargw.Gateway, plan *journaldomain.Plan, capture *capdomain.Capture) (*ScheduleResult, error) {
	prev := snapshotOf(capture)
	if err := h.deleteRemoteEvent(ctx, gw, cmd.UserID, capture.CalendarEventID(), capture.CalendarEventETag()); err != nil {
		return nil, err
	}
	if err := capture.MarkCompleted(); err != nil {
		return nil, NewEngineError(CodeInternal, "capture cannot be completed from its current status", err)
	}
	plan.AppendAction(capture.ID(), capture.Content(), journaldomain.ActionUnscheduled, prev, snapshotOf(capture))
	plan.Finalize()
	if err := h.commitMutation(ctx, cmd.UserID, plan, capture); err != nil {
		return nil, NewEngineError(CodeInternal, "failed to persist completion", err)
	}
	return &ScheduleResult{Capture: capture, PlanSummary: planSummaryView(plan)}, nil
}

// unscheduleForReschedule is the first step of an explicit reschedule
// (§4.9): delete any existing remote event and reset the capture to
// pending before the normal placement flow runs. Committed on its own so
// the reset survives even if placement subsequently fails.
func (h *Handler) unscheduleForReschedule(ctx context.Context, cmd ScheduleCaptureCommand, gw calendargw.Gateway, plan *journaldomain.Plan, capture *capdomain.Capture) error {
	prev := snapshotOf(capture)
	if err := h.deleteRemoteEvent(ctx, gw, cmd.UserID, capture.CalendarEventID(), capture.CalendarEventETag()); err != nil {
		return err
	}
	capture.MarkUnscheduled(plan.ID(), "")
	plan.AppendAction(capture.ID(), capture.Content(), journaldomain.ActionUnscheduled, prev, snapshotOf(capture))
	return h.commitMutation(ctx, cmd.UserID, plan, capture)
}

// place runs the schedule operation (§4.9): build a plan, resolve a slot
// against the account's calendar (honoring conflicts and preemption), bind
// the result to a remote event, and cascade-reschedule anything displaced.
func (h *Handler) place(ctx context.Context, cmd ScheduleCaptureCommand, gw calendargw.Gateway, plan *journaldomain.Plan, capture *capdomain.Capture) (*ScheduleResult, error) {
	now := time.Now().UTC()
	offset := cmd.Offset()
	duration := capture.EstimatedDuration()

	if spec, ok := capture.Constraint().(capdomain.Window); ok && spec.End.Sub(spec.Start) < duration {
		return nil, h.noSlotError(capture, "window", now, &spec.End)
	}

	horizonEnd := now.Add(planner.SearchHorizonDays * 24 * time.Hour)
	events, err := gw.ListEvents(ctx, cmd.UserID, now, horizonEnd)
	if err != nil {
		return nil, mapGatewayError(err)
	}
	busyStandard := planner.InflateBusy(events, planner.StandardBuffer)
	busyCompressed := planner.InflateBusy(events, planner.CompressedBuffer)

	managed, err := h.loadManagedConflicts(ctx, events)
	if err != nil {
		return nil, NewEngineError(CodeInternal, "failed to resolve managed conflicts", err)
	}

	schedPlan := planner.BuildPlan(capture, now, offset)
	preferred := naturalPreferred(schedPlan, now, offset, duration, cmd)

	outcome, err := planner.Resolve(ctx, capture, schedPlan, preferred, busyStandard, busyCompressed, managed, cmd.AllowOverlap, now, offset, h.advisorSvc)
	if err != nil {
		return nil, NewEngineError(CodeInternal, "conflict resolution failed", err)
	}

	if outcome.Kind == planner.OutcomeAdvisory {
		return &ScheduleResult{Capture: capture, Decision: decisionView(outcome.Decision)}, nil
	}

	slot := outcome.Slot
	displaced := outcome.Displaced
	if !timewindow.InWorkingWindow(slot.Start, slot.End, offset) || planner.ValidateAgainstDeadline(slot, schedPlan) != nil {
		fallback, ferr := planner.ScheduleWithPlan(schedPlan, duration, offset, now, busyStandard)
		if ferr != nil {
			return nil, h.noSlotError(capture, string(schedPlan.Mode), now, schedPlan.Deadline)
		}
		if verr := planner.ValidateAgainstDeadline(fallback, schedPlan); verr != nil {
			deadlineErr := NewEngineError(CodeSlotExceedsDeadline, "candidate slot exceeds deadline", verr)
			deadlineErr.Details = NoSlotDetail{
				CaptureID:       capture.ID(),
				Mode:            string(schedPlan.Mode),
				DurationMinutes: capture.EstimatedMinutes(),
				Deadline:        schedPlan.Deadline,
				ReferenceNow:    now,
			}
			return nil, deadlineErr
		}
		slot = fallback
		displaced = nil
	}

	// Step 1 (§5 ordering): delete displaced events' remote bindings and
	// commit their local pending state before the target event is created,
	// since an external delete cannot be rolled back by a failed step 2.
	for _, d := range displaced {
		notes := "displaced by higher-priority capture " + capture.ID().String()
		if err := h.unscheduleDisplaced(ctx, cmd.UserID, gw, plan, d, notes); err != nil {
			return nil, err
		}
	}

	// Step 2: create the target's remote event.
	prev := snapshotOf(capture)
	event, err := gw.CreateEvent(ctx, cmd.UserID, calendargw.CreateEventParams{
		CaptureID:     capture.ID(),
		PlanID:        plan.ID(),
		ActionID:      uuid.New(),
		Summary:       capture.Content(),
		Start:         slot.Start,
		End:           slot.End,
		PriorityScore: capdomain.Priority(capture, now, offset),
	})
	if err != nil {
		return nil, mapGatewayError(err)
	}

	// Step 3: local row update of the target.
	actionType := journaldomain.ActionScheduled
	if prev.Status == string(capdomain.StatusScheduled) || cmd.Action == ActionReschedule || len(displaced) > 0 {
		actionType = journaldomain.ActionRescheduled
	}
	bumpReschedule := actionType == journaldomain.ActionRescheduled
	if err := capture.MarkScheduled(slot.Start, slot.End, event.ID, event.ETag, plan.ID(), bumpReschedule); err != nil {
		return nil, NewEngineError(CodeInternal, "failed to mark capture scheduled", err)
	}
	plan.AppendAction(capture.ID(), capture.Content(), actionType, prev, snapshotOf(capture))
	if err := h.commitMutation(ctx, cmd.UserID, plan, capture); err != nil {
		return nil, NewEngineError(CodeInternal, "failed to persist placement", err)
	}

	// Step 4: cascade-reschedule every displaced capture.
	if len(displaced) > 0 {
		working := cascadeBusySet(busyStandard, displaced, slot)
		for _, result := range planner.Cascade(displaced, working, now, offset) {
			if err := h.applyCascadeResult(ctx, cmd.UserID, gw, plan, result, now, offset); err != nil {
				return nil, err
			}
		}
	}

	// Step 5: finalize the plan's summary.
	plan.Finalize()
	if err := h.commitMutation(ctx, cmd.UserID, plan, capture); err != nil {
		return nil, NewEngineError(CodeInternal, "failed to finalize plan", err)
	}

	return &ScheduleResult{Capture: capture, PlanSummary: planSummaryView(plan)}, nil
}

func cascadeBusySet(busyStandard []planner.BusyInterval, displaced []*capdomain.Capture, targetSlot planner.Slot) []planner.BusyInterval {
	displacedIDs := make(map[string]bool, len(displaced))
	for _, d := range displaced {
		if d.CalendarEventID() != "" {
			displacedIDs[d.CalendarEventID()] = true
		}
	}
	out := make([]planner.BusyInterval, 0, len(busyStandard)+1)
	for _, b := range busyStandard {
		if displacedIDs[b.Event.ID] {
			continue
		}
		out = append(out, b)
	}
	out = append(out, planner.BusyInterval{
		Start: targetSlot.Start.Add(-planner.StandardBuffer),
		End:   targetSlot.End.Add(planner.StandardBuffer),
	})
	return out
}

func (h *Handler) unscheduleDisplaced(ctx context.Context, userID uuid.UUID, gw calendargw.Gateway, plan *journaldomain.Plan, capture *capdomain.Capture, notes string) error {
	prev := snapshotOf(capture)
	if err := h.deleteRemoteEvent(ctx, gw, userID, capture.CalendarEventID(), capture.CalendarEventETag()); err != nil {
		return err
	}
	capture.MarkUnscheduled(plan.ID(), notes)
	plan.AppendAction(capture.ID(), capture.Content(), journaldomain.ActionUnscheduled, prev, snapshotOf(capture))
	return h.commitMutation(ctx, userID, plan, capture)
}

// applyCascadeResult binds one cascade-replanned capture to a new remote
// event, or leaves it pending with a breadcrumb when no slot was found or
// the remote create failed (§4.6 "Cascade Reschedule").
func (h *Handler) applyCascadeResult(ctx context.Context, userID uuid.UUID, gw calendargw.Gateway, plan *journaldomain.Plan, result planner.CascadeResult, now time.Time, offset time.Duration) error {
	capture := result.Capture
	prev := snapshotOf(capture)

	if !result.Placed {
		capture.MarkUnscheduled(plan.ID(), result.Reason)
		plan.AppendAction(capture.ID(), capture.Content(), journaldomain.ActionUnscheduled, prev, snapshotOf(capture))
		return h.commitMutation(ctx, userID, plan, capture)
	}

	event, err := gw.CreateEvent(ctx, userID, calendargw.CreateEventParams{
		CaptureID:     capture.ID(),
		PlanID:        plan.ID(),
		ActionID:      uuid.New(),
		Summary:       capture.Content(),
		Start:         result.Slot.Start,
		End:           result.Slot.End,
		PriorityScore: capdomain.Priority(capture, now, offset),
	})
	if err != nil {
		capture.MarkUnscheduled(plan.ID(), "cascade reschedule failed to create remote event: "+err.Error())
		plan.AppendAction(capture.ID(), capture.Content(), journaldomain.ActionUnscheduled, prev, snapshotOf(capture))
		return h.commitMutation(ctx, userID, plan, capture)
	}

	if err := capture.MarkScheduled(result.Slot.Start, result.Slot.End, event.ID, event.ETag, plan.ID(), true); err != nil {
		return NewEngineError(CodeInternal, "failed to mark cascaded capture scheduled", err)
	}
	plan.AppendAction(capture.ID(), capture.Content(), journaldomain.ActionRescheduled, prev, snapshotOf(capture))
	return h.commitMutation(ctx, userID, plan, capture)
}

func (h *Handler) loadManagedConflicts(ctx context.Context, events []calendargw.Event) (map[string]planner.ManagedConflict, error) {
	out := make(map[string]planner.ManagedConflict)
	for _, e := range events {
		if !e.IsManaged() {
			continue
		}
		captureID, ok := e.CaptureID()
		if !ok {
			continue
		}
		c, err := h.captures.FindByID(ctx, captureID)
		if err != nil {
			// The managed event's originating capture row no longer
			// exists (e.g. deleted out of band): treat it as an
			// unmanaged, unmovable conflict rather than failing the
			// whole request.
			continue
		}
		out[e.ID] = planner.ManagedConflict{Event: e, Capture: c}
	}
	return out, nil
}

// naturalPreferred derives the slot handed to planner.Resolve when the
// caller did not supply an explicit preferred window: deadline mode aims
// for the slot immediately preceding the deadline, start/window modes use
// the plan's own computed preference, and flexible mode aims just past
// now (§4.4, §4.6 "preferred slot").
func naturalPreferred(plan planner.Plan, now time.Time, offset, duration time.Duration, cmd ScheduleCaptureCommand) planner.Slot {
	if cmd.PreferredStart != nil && cmd.PreferredEnd != nil {
		return planner.Slot{Start: *cmd.PreferredStart, End: *cmd.PreferredEnd}
	}
	switch plan.Mode {
	case planner.ModeDeadline:
		if plan.Deadline != nil {
			return planner.Slot{Start: plan.Deadline.Add(-duration), End: *plan.Deadline}
		}
	case planner.ModeStart, planner.ModeWindow:
		if plan.PreferredStart != nil && plan.PreferredEnd != nil {
			return planner.Slot{Start: *plan.PreferredStart, End: *plan.PreferredEnd}
		}
	}
	start := now.Add(planner.DefaultLeadTime)
	return planner.Slot{Start: start, End: start.Add(duration)}
}

// NoSlotDetail carries the structured fields a no_slot/slot_exceeds_deadline
// response needs beyond the bare error code (§6, §7).
type NoSlotDetail struct {
	CaptureID       uuid.UUID
	Mode            string
	DurationMinutes int
	Deadline        *time.Time
	ReferenceNow    time.Time
}

func (h *Handler) noSlotError(capture *capdomain.Capture, mode string, now time.Time, deadline *time.Time) *EngineError {
	err := NewEngineError(CodeNoSlot, "no feasible slot found for this capture", planner.ErrNoSlot)
	err.Details = NoSlotDetail{
		CaptureID:       capture.ID(),
		Mode:            mode,
		DurationMinutes: capture.EstimatedMinutes(),
		Deadline:        deadline,
		ReferenceNow:    now,
	}
	return err
}

func decisionView(d *planner.Decision) *DecisionView {
	if d == nil {
		return nil
	}
	conflicts := make([]ConflictView, 0, len(d.Conflicts))
	for _, c := range d.Conflicts {
		conflicts = append(conflicts, ConflictView{
			ID:        c.ID,
			Summary:   c.Summary,
			Start:     c.Start,
			End:       c.End,
			DiaGuru:   c.DiaGuru,
			CaptureID: c.CaptureID,
		})
	}
	view := &DecisionView{
		Type:      d.Type,
		Preferred: SlotView{Start: d.Preferred.Start, End: d.Preferred.End},
		Conflicts: conflicts,
	}
	if d.Suggestion != nil {
		view.Suggestion = &SlotView{Start: d.Suggestion.Start, End: d.Suggestion.End}
	}
	return view
}
